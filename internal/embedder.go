package internal

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

const DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

// EmbedderIdentity names the vector space an index was built in. Two
// identities are compatible only when all three fields match.
type EmbedderIdentity struct {
	Backend   string `json:"backend"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (id EmbedderIdentity) String() string {
	return fmt.Sprintf("%s/%s (%d dims)", id.Backend, id.Model, id.Dimension)
}

func (id EmbedderIdentity) Compatible(other EmbedderIdentity) bool {
	return id == other
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(ctx context.Context, apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not configured", ErrNoEmbedder)
	}
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	e := &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}

	probe, err := e.Embed(ctx, "probe")
	if err != nil {
		return nil, fmt.Errorf("%w: openai model %q cannot produce embeddings: %v", ErrNoEmbedder, model, err)
	}
	e.dimension = len(probe)

	return e, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	// The API documents Data as ordered, but Index is authoritative.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}

	return vecs, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Identity() EmbedderIdentity {
	return EmbedderIdentity{Backend: "openai", Model: e.model, Dimension: e.dimension}
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}
