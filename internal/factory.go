package internal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var HostedProviders = []string{"openai", "anthropic", "openrouter"}

func IsHostedProvider(name string) bool {
	for _, p := range HostedProviders {
		if p == name {
			return true
		}
	}
	return false
}

func KnownProvider(name string) bool {
	return IsHostedProvider(name) || name == "ollama" || name == "llamacpp"
}

// NewProvider selects the answering backend once. Missing credentials or model
// files yield an UnconfiguredProvider so callers still get a readable answer.
func NewProvider(ctx context.Context, cfg *Config, logger logrus.FieldLogger) Provider {
	logger = orDiscard(logger)
	name := cfg.Provider

	switch {
	case IsHostedProvider(name):
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			return &UnconfiguredProvider{
				Backend: name,
				Reason:  fmt.Sprintf("%s_API_KEY is not set", strings.ToUpper(name)),
			}
		}

		p, err := NewHostedProvider(ctx, HostedConfig{
			Provider:  name,
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return &UnconfiguredProvider{Backend: name, Reason: err.Error()}
		}
		return p

	case name == "ollama":
		p, err := NewOllamaProvider(OllamaConfig{
			BaseURL:   cfg.Ollama.BaseURL,
			Model:     cfg.Ollama.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return &UnconfiguredProvider{Backend: name, Reason: err.Error()}
		}
		return p

	case name == "llamacpp":
		if cfg.Llama.ModelPath == "" {
			return &UnconfiguredProvider{Backend: name, Reason: "LLAMA_MODEL_PATH is not set"}
		}
		if cfg.Llama.ClipPath != "" {
			logger.Warn("LLAMA_CLIP_PATH is set but vision projectors are not supported, images will be ignored")
		}
		return NewEmbeddedProvider(LlamaConfig{
			ModelPath:   cfg.Llama.ModelPath,
			ClipPath:    cfg.Llama.ClipPath,
			GPULayers:   cfg.Llama.GPULayers,
			ContextSize: cfg.Llama.ContextSize,
			MaxTokens:   cfg.MaxTokens,
		}, nil, logger)

	default:
		return &UnconfiguredProvider{Backend: name, Reason: fmt.Sprintf("unknown provider %q", name)}
	}
}

// NewEmbedder builds the embedder for the configured backend and probes it, so
// a model that cannot embed is reported here and not on first ingestion.
func NewEmbedder(ctx context.Context, cfg *Config, logger logrus.FieldLogger) (Embedder, error) {
	logger = orDiscard(logger)
	backend := cfg.EmbeddingsBackend()

	switch backend {
	case "openai":
		pc := cfg.Providers["openai"]
		baseURL := cfg.Embeddings.BaseURL
		if baseURL == "" {
			baseURL = pc.BaseURL
		}
		return NewOpenAIEmbedder(ctx, pc.APIKey, baseURL, cfg.Embeddings.Model)

	case "ollama":
		baseURL := cfg.Embeddings.BaseURL
		if baseURL == "" {
			baseURL = cfg.Ollama.BaseURL
		}
		return NewOllamaEmbedder(ctx, OllamaConfig{BaseURL: baseURL, Model: cfg.Embeddings.Model})

	case "gollama":
		cacheDir, err := DefaultCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}

		downloader := NewDownloader(cacheDir, os.Getenv("HF_TOKEN"))
		path, err := downloader.EnsureEmbeddingModel(ctx, cfg.Embeddings.Model, func(written, total int64) {
			logger.WithFields(logrus.Fields{"written": written, "total": total}).Trace("downloading embedding model")
		})
		if err != nil {
			return nil, err
		}

		e, err := NewLocalEmbedder(path, cfg.Embeddings.Dimension,
			WithEmbedderGPULayers(LlamaConfig{GPULayers: cfg.Llama.GPULayers}.gpuLayers()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoEmbedder, err)
		}
		logger.WithField("device", e.Device()).Debug("local embedder ready")
		return e, nil

	default:
		return nil, fmt.Errorf("%w: unknown embeddings backend %q", ErrNoEmbedder, backend)
	}
}
