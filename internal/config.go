package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultProvider = "openai"

type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

type OllamaSettings struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type LlamaSettings struct {
	ModelPath   string `yaml:"model_path,omitempty"`
	ClipPath    string `yaml:"clip_path,omitempty"`
	GPULayers   *int   `yaml:"gpu_layers,omitempty"` // unset picks by hardware, -1 offloads all
	ContextSize int    `yaml:"context_size"`
}

type EmbeddingsConfig struct {
	Backend   string `yaml:"backend,omitempty"` // openai|ollama|gollama, empty follows the provider
	Model     string `yaml:"model,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

type IndexSettings struct {
	TopK  int `yaml:"top_k"`
	Trees int `yaml:"trees"`
}

type IngestSettings struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	CaptionPrompt string `yaml:"caption_prompt,omitempty"`
}

type CaptureSettings struct {
	Command []string `yaml:"command,omitempty"`
}

type OCRSettings struct {
	Command string `yaml:"command"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Provider   string                    `yaml:"provider"`
	Providers  map[string]ProviderConfig `yaml:"providers,omitempty"`
	Ollama     OllamaSettings            `yaml:"ollama"`
	Llama      LlamaSettings             `yaml:"llama"`
	Embeddings EmbeddingsConfig          `yaml:"embeddings"`
	Index      IndexSettings             `yaml:"index"`
	Ingest     IngestSettings            `yaml:"ingest"`
	Capture    CaptureSettings           `yaml:"capture"`
	OCR        OCRSettings               `yaml:"ocr"`
	MaxTokens  int                       `yaml:"max_tokens"`
	Log        LogSettings               `yaml:"log"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = DefaultOllamaURL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = DefaultOllamaModel
	}
	if c.Llama.ContextSize <= 0 {
		c.Llama.ContextSize = DefaultLlamaContextSize
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = DefaultTopK
	}
	if c.Index.Trees <= 0 {
		c.Index.Trees = DefaultTrees
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = DefaultChunkSize
	}
	if c.Ingest.ChunkOverlap <= 0 {
		c.Ingest.ChunkOverlap = DefaultChunkOverlap
	}
	if c.OCR.Command == "" {
		c.OCR.Command = DefaultTesseractCmd
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// EmbeddingsBackend resolves an empty backend from the answering provider:
// a local server embeds locally, everything else uses the OpenAI API.
func (c *Config) EmbeddingsBackend() string {
	if c.Embeddings.Backend != "" {
		return c.Embeddings.Backend
	}
	switch c.Provider {
	case "ollama":
		return "ollama"
	case "llamacpp":
		return "gollama"
	default:
		return "openai"
	}
}

func LoadConfig(scope Scope) (*Config, error) {
	path := scope.ConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	path := scope.ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadDotEnv reads .env files without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// WithEnv returns a copy of the config with environment overrides applied.
// The copy is meant for running; saving it would persist secrets from the
// environment.
func (c *Config) WithEnv(lookup func(string) (string, bool)) (*Config, error) {
	out := *c
	out.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for k, v := range c.Providers {
		out.Providers[k] = v
	}
	if c.Llama.GPULayers != nil {
		n := *c.Llama.GPULayers
		out.Llama.GPULayers = &n
	}
	out.Capture.Command = append([]string(nil), c.Capture.Command...)

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("AI_PROVIDER"); ok {
		out.Provider = strings.ToLower(v)
	}

	for name, key := range map[string]string{
		"openai":     "OPENAI_API_KEY",
		"anthropic":  "ANTHROPIC_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
	} {
		if v, ok := get(key); ok {
			pc := out.Providers[name]
			pc.APIKey = v
			out.Providers[name] = pc
		}
	}

	if v, ok := get("OLLAMA_BASE_URL"); ok {
		out.Ollama.BaseURL = v
	}
	if v, ok := get("OLLAMA_MODEL"); ok {
		out.Ollama.Model = v
	}
	if v, ok := get("LLAMA_MODEL_PATH"); ok {
		out.Llama.ModelPath = v
	}
	if v, ok := get("LLAMA_CLIP_PATH"); ok {
		out.Llama.ClipPath = v
	}
	if v, ok := get("LLAMA_N_GPU_LAYERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("LLAMA_N_GPU_LAYERS: %w", err)
		}
		out.Llama.GPULayers = &n
	}
	if v, ok := get("TESSERACT_CMD"); ok {
		out.OCR.Command = v
	}
	if v, ok := get("EMBEDDINGS_BACKEND"); ok {
		out.Embeddings.Backend = strings.ToLower(v)
	}
	if v, ok := get("EMBEDDINGS_MODEL"); ok {
		out.Embeddings.Model = v
	}

	return &out, nil
}
