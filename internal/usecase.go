package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Use case input/output DTOs

type CaptureMode int

const (
	CaptureAuto   CaptureMode = iota // capture when the question asks about the screen
	CaptureAlways                    // always capture
	CaptureNever                     // never call the capturer
)

type AskInput struct {
	Text    string
	Capture CaptureMode
	Image   *Image // explicit screenshot; the capturer is not called
	History History
}

type AskOutput struct {
	Answer   string
	Flagged  bool
	Captured bool
	OCRText  string
	Context  string
}

type IngestInput struct {
	Path     string
	Include  []string
	Exclude  []string
	Progress func(done, total int, path string)
	Replace  bool
}

type IngestOutput struct {
	Results []FileResult
}

func (o *IngestOutput) Chunks() int {
	n := 0
	for _, r := range o.Results {
		n += r.Report.Chunks
	}
	return n
}

type SearchInput struct {
	Query string
	Limit int
}

type SearchOutput struct {
	Results []SearchResultOutput
}

type SearchResultOutput struct {
	Label   string
	Source  string
	Page    int
	Kind    Kind
	Content string
	Score   float32
}

type IndexStatusOutput struct {
	Dir      string
	Chunks   int
	Identity *EmbedderIdentity
	Sources  []SourceCount
}

type SourceCount struct {
	Source string
	Chunks int
}

type ProviderInput struct {
	Name   string
	Scope  string
	Config ProviderConfig
}

// Use cases

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (string, error)
}

type AskUseCase struct {
	orchestrator *Orchestrator
	retriever    Retriever
	capturer     Capturer
	ocr          OCR
	topK         int
	logger       logrus.FieldLogger
}

func NewAskUseCase(
	orchestrator *Orchestrator,
	retriever Retriever,
	capturer Capturer,
	ocr OCR,
	topK int,
	logger logrus.FieldLogger,
) *AskUseCase {
	if ocr == nil {
		ocr = NopOCR{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &AskUseCase{
		orchestrator: orchestrator,
		retriever:    retriever,
		capturer:     capturer,
		ocr:          ocr,
		topK:         topK,
		logger:       orDiscard(logger),
	}
}

// Execute gathers screen, OCR and knowledge-base context and runs the
// orchestrator. Context sources that fail are logged and left out; only an
// empty question is an error.
func (uc *AskUseCase) Execute(ctx context.Context, input AskInput) (*AskOutput, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.New("question is empty")
	}

	out := &AskOutput{}

	img := input.Image
	if img == nil && uc.capturer != nil && wantsCapture(input.Capture, text) {
		captured, err := uc.capturer.Capture(ctx)
		if err != nil {
			uc.logger.WithError(err).Warn("capture failed, continuing without screenshot")
		} else {
			img = captured
			out.Captured = true
		}
	}

	if img != nil {
		out.OCRText = uc.ocr.ExtractText(ctx, img)
	}

	if uc.retriever != nil {
		manual, err := uc.retriever.Retrieve(ctx, text, uc.topK)
		if err != nil {
			uc.logger.WithError(err).Warn("retrieval failed, continuing without manual context")
		}
		out.Context = manual
	}

	result := uc.orchestrator.Answer(ctx, QueryRequest{
		Text:          text,
		Image:         img,
		OCRText:       out.OCRText,
		ManualContext: out.Context,
		History:       input.History,
	})

	out.Answer = result.Answer
	out.Flagged = result.Flagged
	return out, nil
}

func wantsCapture(mode CaptureMode, text string) bool {
	switch mode {
	case CaptureAlways:
		return true
	case CaptureNever:
		return false
	default:
		return ShouldCapture(text)
	}
}

type IngestUseCase struct {
	ingestor *Ingestor
}

func NewIngestUseCase(ingestor *Ingestor) *IngestUseCase {
	return &IngestUseCase{ingestor: ingestor}
}

// Execute ingests a file or, for a directory, every supported file below it.
func (uc *IngestUseCase) Execute(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	info, err := os.Stat(input.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", input.Path, err)
	}

	if !info.IsDir() {
		ingest := uc.ingestor.Ingest
		if input.Replace {
			ingest = uc.ingestor.Reingest
		}
		report, err := ingest(ctx, input.Path)
		return &IngestOutput{Results: []FileResult{{Path: input.Path, Report: report, Err: err}}}, nil
	}

	ignore, err := NewIgnoreMatcher(input.Path, input.Exclude...)
	if err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}

	results, err := uc.ingestor.IngestDirectory(ctx, input.Path, DirectoryOptions{
		Include:  input.Include,
		Ignore:   ignore,
		Progress: input.Progress,
		Replace:  input.Replace,
	})
	if err != nil {
		return nil, err
	}

	return &IngestOutput{Results: results}, nil
}

// Forget drops the chunks of a file that no longer exists.
func (uc *IngestUseCase) Forget(ctx context.Context, path string) error {
	return uc.ingestor.Forget(ctx, path)
}

// IngestSummary renders one file's outcome the way the user sees it.
func IngestSummary(r FileResult) string {
	switch {
	case r.Err == nil:
		return r.Report.Summary()
	case errors.Is(r.Err, ErrUnsupportedFormat), errors.Is(r.Err, ErrNoContent):
		return NoContentSummary
	default:
		return fmt.Sprintf("Ingestion failed: %v", r.Err)
	}
}

type SearchUseCase struct {
	index *VectorIndex
}

func NewSearchUseCase(index *VectorIndex) *SearchUseCase {
	return &SearchUseCase{index: index}
}

func (uc *SearchUseCase) Execute(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	results, err := uc.index.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := &SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			Label:   r.Chunk.Label(),
			Source:  r.Chunk.Metadata.Source,
			Page:    r.Chunk.Metadata.Page,
			Kind:    r.Chunk.Metadata.Kind,
			Content: r.Chunk.Content,
			Score:   r.Score,
		})
	}

	return out, nil
}

type IndexStatusUseCase struct {
	index *VectorIndex
}

func NewIndexStatusUseCase(index *VectorIndex) *IndexStatusUseCase {
	return &IndexStatusUseCase{index: index}
}

func (uc *IndexStatusUseCase) Execute() *IndexStatusOutput {
	stats := uc.index.Stats()

	out := &IndexStatusOutput{
		Dir:      stats.Dir,
		Chunks:   stats.Chunks,
		Identity: stats.Identity,
	}
	for src, n := range stats.Sources {
		out.Sources = append(out.Sources, SourceCount{Source: src, Chunks: n})
	}
	sort.Slice(out.Sources, func(i, j int) bool { return out.Sources[i].Source < out.Sources[j].Source })

	return out
}

type RebuildIndexUseCase struct {
	index *VectorIndex
}

func NewRebuildIndexUseCase(index *VectorIndex) *RebuildIndexUseCase {
	return &RebuildIndexUseCase{index: index}
}

func (uc *RebuildIndexUseCase) Execute(ctx context.Context) (int, error) {
	n, err := uc.index.Rebuild(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	return n, nil
}

const (
	IndexClearedMessage = "Index cleared successfully."
	NoIndexMessage      = "No index found to clear."
)

type ClearIndexUseCase struct {
	index *VectorIndex
}

func NewClearIndexUseCase(index *VectorIndex) *ClearIndexUseCase {
	return &ClearIndexUseCase{index: index}
}

func (uc *ClearIndexUseCase) Execute(ctx context.Context) (string, error) {
	existed, err := uc.index.Clear(ctx)
	if err != nil {
		return "", fmt.Errorf("clear index: %w", err)
	}
	if !existed {
		return NoIndexMessage, nil
	}
	return IndexClearedMessage, nil
}

type ProviderListUseCase struct {
	resolver *ScopeResolver
}

func NewProviderListUseCase(resolver *ScopeResolver) *ProviderListUseCase {
	return &ProviderListUseCase{resolver: resolver}
}

type ProviderListOutput struct {
	Default   string
	Providers []string
}

func (uc *ProviderListUseCase) Execute(input ProviderInput) (*ProviderListOutput, error) {
	cfg, err := LoadConfig(uc.resolver.Resolve(input.Scope))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return &ProviderListOutput{Default: cfg.Provider, Providers: names}, nil
}

type ProviderAddUseCase struct {
	resolver *ScopeResolver
}

func NewProviderAddUseCase(resolver *ScopeResolver) *ProviderAddUseCase {
	return &ProviderAddUseCase{resolver: resolver}
}

func (uc *ProviderAddUseCase) Execute(input ProviderInput) error {
	if !IsHostedProvider(input.Name) {
		return fmt.Errorf("unsupported provider %q (want one of %s)", input.Name, strings.Join(HostedProviders, ", "))
	}

	scope := uc.resolver.Resolve(input.Scope)
	cfg, err := LoadConfig(scope)
	if err != nil {
		return err
	}

	cfg.Providers[input.Name] = input.Config
	return SaveConfig(scope, cfg)
}

type ProviderRemoveUseCase struct {
	resolver *ScopeResolver
}

func NewProviderRemoveUseCase(resolver *ScopeResolver) *ProviderRemoveUseCase {
	return &ProviderRemoveUseCase{resolver: resolver}
}

func (uc *ProviderRemoveUseCase) Execute(input ProviderInput) error {
	scope := uc.resolver.Resolve(input.Scope)
	cfg, err := LoadConfig(scope)
	if err != nil {
		return err
	}

	if _, ok := cfg.Providers[input.Name]; !ok {
		return fmt.Errorf("provider %q not found", input.Name)
	}

	delete(cfg.Providers, input.Name)
	return SaveConfig(scope, cfg)
}

type ProviderSetDefaultUseCase struct {
	resolver *ScopeResolver
}

func NewProviderSetDefaultUseCase(resolver *ScopeResolver) *ProviderSetDefaultUseCase {
	return &ProviderSetDefaultUseCase{resolver: resolver}
}

func (uc *ProviderSetDefaultUseCase) Execute(input ProviderInput) error {
	if !KnownProvider(input.Name) {
		return fmt.Errorf("unknown provider %q", input.Name)
	}

	scope := uc.resolver.Resolve(input.Scope)
	cfg, err := LoadConfig(scope)
	if err != nil {
		return err
	}

	cfg.Provider = input.Name
	return SaveConfig(scope, cfg)
}

type ProviderTestUseCase struct {
	resolver *ScopeResolver
	lookup   func(string) (string, bool)
}

func NewProviderTestUseCase(resolver *ScopeResolver) *ProviderTestUseCase {
	return &ProviderTestUseCase{resolver: resolver, lookup: os.LookupEnv}
}

// Execute sends one short prompt through the named backend with the
// environment applied, exactly as `ask` would build it.
func (uc *ProviderTestUseCase) Execute(ctx context.Context, input ProviderInput) (string, error) {
	if !KnownProvider(input.Name) {
		return "", fmt.Errorf("unknown provider %q", input.Name)
	}

	fileCfg, err := LoadConfig(uc.resolver.Resolve(input.Scope))
	if err != nil {
		return "", err
	}

	cfg, err := fileCfg.WithEnv(uc.lookup)
	if err != nil {
		return "", err
	}
	cfg.Provider = input.Name

	provider := NewProvider(ctx, cfg, nil)
	if closer, ok := provider.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	return provider.Generate(ctx, GenerateRequest{Prompt: "Say hello", TextOnly: true})
}
