package internal

import (
	"context"
	"fmt"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

const DefaultHostedModel = "gpt-4o"

type HostedConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

var _ Provider = (*HostedProvider)(nil)

type HostedProvider struct {
	model     fantasy.LanguageModel
	name      string
	maxTokens int64
}

func NewHostedProvider(ctx context.Context, cfg HostedConfig) (*HostedProvider, error) {
	var provider fantasy.Provider
	var err error

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)

	case "openrouter":
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		provider, err = openrouter.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultHostedModel
	}

	model, err := provider.LanguageModel(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &HostedProvider{
		model:     model,
		name:      cfg.Provider,
		maxTokens: int64(maxTokens),
	}, nil
}

func (p *HostedProvider) Name() string {
	return p.name
}

func (p *HostedProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	maxTokens := p.maxTokens

	resp, err := p.model.Generate(ctx, fantasy.Call{
		Prompt:          toFantasyPrompt(BuildMessages(req)),
		MaxOutputTokens: &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return resp.Content.Text(), nil
}

func toFantasyPrompt(messages []Message) fantasy.Prompt {
	prompt := make(fantasy.Prompt, 0, len(messages))

	for _, m := range messages {
		parts := make([]fantasy.MessagePart, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch part.Type {
			case PartText:
				parts = append(parts, fantasy.TextPart{Text: part.Text})
			case PartImage:
				parts = append(parts, fantasy.FilePart{
					Filename:  "screen.png",
					Data:      part.Image.Data,
					MediaType: part.Image.MediaType,
				})
			}
		}

		prompt = append(prompt, fantasy.Message{
			Role:    fantasyRole(m.Role),
			Content: parts,
		})
	}

	return prompt
}

func fantasyRole(role string) fantasy.MessageRole {
	switch role {
	case "system":
		return fantasy.MessageRoleSystem
	case string(RoleAssistant):
		return fantasy.MessageRoleAssistant
	default:
		return fantasy.MessageRoleUser
	}
}
