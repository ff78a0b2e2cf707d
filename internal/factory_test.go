package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderUnconfigured(t *testing.T) {
	tests := []struct {
		provider string
		reason   string
	}{
		{"openai", "OPENAI_API_KEY is not set"},
		{"anthropic", "ANTHROPIC_API_KEY is not set"},
		{"openrouter", "OPENROUTER_API_KEY is not set"},
		{"llamacpp", "LLAMA_MODEL_PATH is not set"},
		{"gemini", `unknown provider "gemini"`},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider = tt.provider

			p := NewProvider(context.Background(), cfg, nil)
			u, ok := p.(*UnconfiguredProvider)
			require.True(t, ok, "expected unconfigured provider, got %T", p)
			assert.Equal(t, tt.reason, u.Reason)

			_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestNewProviderLocalBackends(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Provider = "ollama"
	_, ok := NewProvider(context.Background(), cfg, nil).(*OllamaProvider)
	assert.True(t, ok)

	cfg.Provider = "llamacpp"
	cfg.Llama.ModelPath = "/models/llava.gguf"
	p, ok := NewProvider(context.Background(), cfg, nil).(*EmbeddedProvider)
	require.True(t, ok)
	assert.Equal(t, "llamacpp", p.Name())
}

func TestDegradeNamesBackend(t *testing.T) {
	err := assert.AnError
	assert.Equal(t, "OpenAI Error: "+err.Error(), Degrade(&UnconfiguredProvider{Backend: "openai"}, err))
	assert.Equal(t, "Llama Error: "+err.Error(), Degrade(&UnconfiguredProvider{Backend: "llamacpp"}, err))
	assert.Equal(t, "Provider Error: "+err.Error(), Degrade(&UnconfiguredProvider{}, err))
}

func TestNewEmbedderErrors(t *testing.T) {
	cfg := DefaultConfig()
	_, err := NewEmbedder(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrNoEmbedder, "openai without a key")

	cfg.Embeddings.Backend = "word2vec"
	_, err = NewEmbedder(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestOpenAIEmbedderAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		// Reverse order to check that Index decides placement.
		for i := range req.Input {
			idx := len(req.Input) - 1 - i
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     idx,
				"embedding": []float32{float32(idx), 1},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-test"}
	cfg.Embeddings.BaseURL = srv.URL

	e, err := NewEmbedder(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, EmbedderIdentity{Backend: "openai", Model: DefaultOpenAIEmbeddingModel, Dimension: 2}, e.Identity())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)
}

func TestEnsureEmbeddingModel(t *testing.T) {
	cache := t.TempDir()
	d := NewDownloader(cache, "")

	local := writeFile(t, t.TempDir(), "custom.gguf", "weights")
	path, err := d.EnsureEmbeddingModel(context.Background(), local, nil)
	require.NoError(t, err)
	assert.Equal(t, local, path)

	cached := writeFile(t, cache, "cached.gguf", "weights")
	path, err = d.EnsureEmbeddingModel(context.Background(), "cached.gguf", nil)
	require.NoError(t, err)
	assert.Equal(t, cached, path)

	_, err = d.EnsureEmbeddingModel(context.Background(), "missing.gguf", nil)
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestDownloaderFetchesWithToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("gguf-bytes"))
	}))
	defer srv.Close()

	cache := t.TempDir()

	_, err := NewDownloader(cache, "").EnsureModel(context.Background(), srv.URL, "m.gguf", nil)
	assert.ErrorContains(t, err, "status 401")

	var last int64
	path, err := NewDownloader(cache, "hf_secret").EnsureModel(context.Background(), srv.URL, "m.gguf", func(written, _ int64) {
		last = written
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len("gguf-bytes")), last)
	assert.FileExists(t, path)
}
