package internal

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dianlight/gollama.cpp"
	"github.com/sirupsen/logrus"
)

const DefaultLlamaContextSize = 2048

type LlamaConfig struct {
	ModelPath   string
	ClipPath    string
	GPULayers   *int // nil picks a default from DetectHardware
	ContextSize int
	MaxTokens   int
}

func (c LlamaConfig) gpuLayers() int {
	switch {
	case c.GPULayers == nil:
		return DefaultGPULayers(DetectHardware())
	case *c.GPULayers < 0:
		return 999
	default:
		return *c.GPULayers
	}
}

// LocalModel is an in-process chat model. Loading the weights is the
// expensive part; Complete may be called many times on one instance.
type LocalModel interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Close() error
}

type LocalModelLoader func(cfg LlamaConfig) (LocalModel, error)

var _ Provider = (*EmbeddedProvider)(nil)

type EmbeddedProvider struct {
	cfg    LlamaConfig
	load   LocalModelLoader
	logger logrus.FieldLogger

	mu    sync.Mutex
	model LocalModel
}

func NewEmbeddedProvider(cfg LlamaConfig, load LocalModelLoader, logger logrus.FieldLogger) *EmbeddedProvider {
	if load == nil {
		load = LoadLlamaModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &EmbeddedProvider{
		cfg:    cfg,
		load:   load,
		logger: orDiscard(logger),
	}
}

func (p *EmbeddedProvider) Name() string {
	return "llamacpp"
}

// instance loads the model on first use. A failed load is not cached so the
// next request tries again; a successful one is reused for the process life.
func (p *EmbeddedProvider) instance() (LocalModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model, nil
	}

	p.logger.WithField("model", p.cfg.ModelPath).Info("loading llama.cpp model")
	m, err := p.load(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("model failed to load: %w", err)
	}

	p.model = m
	return m, nil
}

func (p *EmbeddedProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	// The binding has no vision projector support.
	if req.Image != nil && !req.TextOnly {
		if req.RequireImage {
			return "", ErrVisionUnsupported
		}
		p.logger.Warn("embedded model cannot read images, answering from text only")
		req.TextOnly = true
	}

	m, err := p.instance()
	if err != nil {
		return "", err
	}

	return m.Complete(ctx, renderChatML(BuildMessages(req)), p.cfg.MaxTokens)
}

func (p *EmbeddedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

func renderChatML(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "<|im_start|>%s\n%s<|im_end|>\n", m.Role, m.Text())
	}
	sb.WriteString("<|im_start|>assistant\n")
	return sb.String()
}

type llamaModel struct {
	mu      sync.Mutex
	model   gollama.LlamaModel
	ctx     gollama.LlamaContext
	ctxSize int
}

func LoadLlamaModel(cfg LlamaConfig) (LocalModel, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: llama model path is empty", ErrNotConfigured)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}

	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	var model gollama.LlamaModel
	var lctx gollama.LlamaContext
	var success atomic.Bool

	defer func() {
		if success.Load() {
			return
		}
		if lctx != 0 {
			gollama.Free(lctx)
		}
		if model != 0 {
			gollama.Model_free(model)
		}
		gollama.Backend_free()
	}()

	modelParams := gollama.Model_default_params()
	modelParams.NGpuLayers = int32(cfg.gpuLayers())

	var err error
	model, err = gollama.Model_load_from_file(cfg.ModelPath, modelParams)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	ctxSize := cfg.ContextSize
	if ctxSize <= 0 {
		ctxSize = DefaultLlamaContextSize
	}

	ctxParams := gollama.Context_default_params()
	ctxParams.NCtx = uint32(ctxSize)

	lctx, err = gollama.Init_from_model(model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("init context: %w", err)
	}

	success.Store(true)
	return &llamaModel{model: model, ctx: lctx, ctxSize: ctxSize}, nil
}

func (m *llamaModel) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens, err := gollama.Tokenize(m.model, prompt, true, true)
	if err != nil {
		return "", fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) == 0 {
		return "", nil
	}

	// Keep the tail of the prompt so the reply still fits in the window.
	if budget := m.ctxSize - maxTokens; budget > 0 && len(tokens) > budget {
		tokens = tokens[len(tokens)-budget:]
	}

	gollama.Memory_clear(m.ctx, false)

	if err := m.decode(tokens, 0); err != nil {
		return "", err
	}

	sampler := gollama.Sampler_init_greedy()
	defer gollama.Sampler_free(sampler)

	var sb strings.Builder
	pos := len(tokens)
	for i := 0; i < maxTokens; i++ {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}

		tok := gollama.Sampler_sample(sampler, m.ctx, -1)
		if isStopPiece(gollama.Token_to_piece(m.model, tok, true)) {
			break
		}
		sb.WriteString(gollama.Token_to_piece(m.model, tok, false))

		if err := m.decode([]gollama.LlamaToken{tok}, pos); err != nil {
			return sb.String(), err
		}
		pos++
	}

	return strings.TrimSpace(sb.String()), nil
}

// decode feeds tokens starting at position start and requests logits for the
// last one only.
func (m *llamaModel) decode(tokens []gollama.LlamaToken, start int) error {
	nTokens := int32(len(tokens))
	batch := gollama.Batch_init(nTokens, 0, 1)
	defer gollama.Batch_free(batch)

	batch = fillBatch(batch, tokens, start, false)

	if err := gollama.Decode(m.ctx, batch); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (m *llamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gollama.Free(m.ctx)
	gollama.Model_free(m.model)
	gollama.Backend_free()

	return nil
}

func fillBatch(batch gollama.LlamaBatch, tokens []gollama.LlamaToken, start int, allLogits bool) gollama.LlamaBatch {
	nTokens := int32(len(tokens))

	tokenSlice := unsafe.Slice(batch.Token, nTokens)
	posSlice := unsafe.Slice(batch.Pos, nTokens)
	nSeqSlice := unsafe.Slice(batch.NSeqId, nTokens)
	seqIdSlice := unsafe.Slice(batch.SeqId, nTokens)
	logitsSlice := unsafe.Slice(batch.Logits, nTokens)

	for i := int32(0); i < nTokens; i++ {
		tokenSlice[i] = tokens[i]
		posSlice[i] = gollama.LlamaPos(int32(start) + i)
		nSeqSlice[i] = 1
		*seqIdSlice[i] = 0
		logitsSlice[i] = 0
		if allLogits || i == nTokens-1 {
			logitsSlice[i] = 1
		}
	}
	batch.NTokens = nTokens

	return batch
}

var _ Embedder = (*LocalEmbedder)(nil)

type LocalEmbedder struct {
	mu        sync.Mutex
	model     gollama.LlamaModel
	ctx       gollama.LlamaContext
	dimension int
	device    Device
	modelPath string
}

func NewLocalEmbedder(modelPath string, dimension int, opts ...EmbedderOption) (*LocalEmbedder, error) {
	device := DetectHardware()
	cfg := embedderConfig{gpuLayers: DefaultGPULayers(device)}
	for _, o := range opts {
		o(&cfg)
	}

	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	var model gollama.LlamaModel
	var ctx gollama.LlamaContext
	var success atomic.Bool

	defer func() {
		if success.Load() {
			return
		}
		if ctx != 0 {
			gollama.Free(ctx)
		}
		if model != 0 {
			gollama.Model_free(model)
		}
		gollama.Backend_free()
	}()

	modelParams := gollama.Model_default_params()
	modelParams.NGpuLayers = int32(cfg.gpuLayers)

	var err error
	model, err = gollama.Model_load_from_file(modelPath, modelParams)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	actualDim := int(gollama.Model_n_embd(model))
	if dimension > 0 && dimension != actualDim {
		return nil, fmt.Errorf("dimension mismatch: model has %d, requested %d", actualDim, dimension)
	}
	if dimension == 0 {
		dimension = actualDim
	}

	// Pooling happens in Embed so every token row stays readable.
	ctxParams := gollama.Context_default_params()
	ctxParams.Embeddings = 1
	ctxParams.PoolingType = gollama.LLAMA_POOLING_TYPE_NONE
	ctxParams.NCtx = 2048

	ctx, err = gollama.Init_from_model(model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("init context: %w", err)
	}

	gollama.Set_embeddings(ctx, true)
	success.Store(true)

	return &LocalEmbedder{
		model:     model,
		ctx:       ctx,
		dimension: dimension,
		device:    device,
		modelPath: modelPath,
	}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, err := gollama.Tokenize(e.model, text, true, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	if len(tokens) == 0 {
		return make([]float32, e.dimension), nil
	}

	gollama.Memory_clear(e.ctx, false)

	nTokens := int32(len(tokens))
	batch := gollama.Batch_init(nTokens, 0, 1)
	defer gollama.Batch_free(batch)

	batch = fillBatch(batch, tokens, 0, true)

	if err := gollama.Decode(e.ctx, batch); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	tokenVecs := make([][]float32, nTokens)
	for i := int32(0); i < nTokens; i++ {
		ptr := gollama.Get_embeddings_ith(e.ctx, i)
		if ptr == nil {
			return nil, fmt.Errorf("no embedding returned for token %d", i)
		}
		tokenVecs[i] = ptrToSlice(ptr, e.dimension)
	}

	return l2Normalize(meanPool(tokenVecs, e.dimension)), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}

	return results, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) Device() string {
	return string(e.device)
}

func (e *LocalEmbedder) Identity() EmbedderIdentity {
	return EmbedderIdentity{
		Backend:   "gollama",
		Model:     filepath.Base(e.modelPath),
		Dimension: e.dimension,
	}
}

func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	gollama.Free(e.ctx)
	gollama.Model_free(e.model)
	gollama.Backend_free()

	return nil
}

type embedderConfig struct {
	gpuLayers int
}

type EmbedderOption func(*embedderConfig)

func WithEmbedderGPULayers(layers int) EmbedderOption {
	return func(c *embedderConfig) {
		c.gpuLayers = layers
	}
}

// stopPieces are the rendered end-of-turn tokens of the chat templates the
// embedded model is used with.
var stopPieces = []string{"<|im_end|>", "<|endoftext|>", "<|eot_id|>", "<|end|>", "</s>", "<eos>"}

func isStopPiece(piece string) bool {
	piece = strings.TrimSpace(piece)
	for _, stop := range stopPieces {
		if piece == stop {
			return true
		}
	}
	return false
}

func meanPool(vectors [][]float32, dimension int) []float32 {
	out := make([]float32, dimension)
	if len(vectors) == 0 {
		return out
	}
	for _, vec := range vectors {
		for j := 0; j < dimension && j < len(vec); j++ {
			out[j] += vec[j]
		}
	}
	for j := range out {
		out[j] /= float32(len(vectors))
	}
	return out
}

func ptrToSlice(ptr *float32, size int) []float32 {
	if ptr == nil {
		return nil
	}

	src := unsafe.Slice(ptr, size)
	dst := make([]float32, size)
	copy(dst, src)

	return dst
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}

	return result
}
