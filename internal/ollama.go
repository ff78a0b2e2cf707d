package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultOllamaURL            = "http://localhost:11434"
	DefaultOllamaModel          = "llava"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

type OllamaConfig struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

func newOllamaClient(baseURL string, timeout time.Duration) (*api.Client, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return api.NewClient(parsed, &http.Client{Timeout: timeout}), nil
}

var _ Provider = (*OllamaProvider)(nil)

type OllamaProvider struct {
	client    *api.Client
	model     string
	maxTokens int
}

func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	client, err := newOllamaClient(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OllamaProvider{client: client, model: model, maxTokens: maxTokens}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: toOllamaMessages(BuildMessages(req)),
		Stream:   &stream,
		Options:  map[string]any{"num_predict": p.maxTokens},
	}

	var sb strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w. Ensure Ollama is running (`ollama serve`)", err)
	}

	return sb.String(), nil
}

func toOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{Role: m.Role, Content: m.Text()}
		for _, img := range m.Images() {
			msg.Images = append(msg.Images, api.ImageData(img.Data))
		}
		out = append(out, msg)
	}
	return out
}

var _ Embedder = (*OllamaEmbedder)(nil)

type OllamaEmbedder struct {
	client    *api.Client
	model     string
	dimension int
}

// NewOllamaEmbedder probes the model once so a chat-only model (llava and
// friends) is reported up front instead of failing on the first ingestion.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	client, err := newOllamaClient(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOllamaEmbeddingModel
	}

	e := &OllamaEmbedder{client: client, model: model}

	probe, err := e.Embed(ctx, "probe")
	if err != nil {
		return nil, fmt.Errorf("%w: ollama model %q cannot produce embeddings: %v", ErrNoEmbedder, model, err)
	}
	e.dimension = len(probe)

	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return resp.Embeddings[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) Identity() EmbedderIdentity {
	return EmbedderIdentity{Backend: "ollama", Model: e.model, Dimension: e.dimension}
}

func (e *OllamaEmbedder) Close() error {
	return nil
}
