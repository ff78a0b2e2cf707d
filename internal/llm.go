package internal

import (
	"context"
	"fmt"
)

const DefaultMaxTokens = 500

type Image struct {
	Data      []byte
	MediaType string
}

func NewPNGImage(data []byte) *Image {
	return &Image{Data: data, MediaType: "image/png"}
}

type GenerateRequest struct {
	System        string
	Prompt        string
	OCRText       string
	ManualContext string
	Image         *Image
	History       History
	// TextOnly strips the image before it reaches the backend.
	TextOnly bool
	// RequireImage makes backends without vision fail with
	// ErrVisionUnsupported instead of answering from the text alone.
	RequireImage bool
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Identity() EmbedderIdentity
	Close() error
}

type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Name() string
}

var _ Provider = (*UnconfiguredProvider)(nil)

// UnconfiguredProvider stands in for a backend whose credentials or model
// files are missing so the rest of the pipeline keeps working.
type UnconfiguredProvider struct {
	Backend string
	Reason  string
}

func (p *UnconfiguredProvider) Generate(context.Context, GenerateRequest) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNotConfigured, p.Reason)
}

func (p *UnconfiguredProvider) Name() string {
	return p.Backend
}

// Degrade turns a backend failure into the string shown to the user.
func Degrade(p Provider, err error) string {
	return fmt.Sprintf("%s Error: %v", displayName(p.Name()), err)
}

func displayName(backend string) string {
	switch backend {
	case "openai":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	case "openrouter":
		return "OpenRouter"
	case "ollama":
		return "Ollama"
	case "llamacpp":
		return "Llama"
	case "":
		return "Provider"
	default:
		return backend
	}
}
