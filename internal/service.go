package internal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type ServiceOptions struct {
	Scope  Scope
	Config *Config // already resolved against the environment
	Logger logrus.FieldLogger

	// Optional overrides; nil values are built from Config.
	Provider Provider
	Embedder Embedder
	Capturer Capturer
	OCR      OCR
	PDF      PDFExtractor
}

// Services is the assembled pipeline for one scope. Every component is built
// once; the provider is selected here and never again.
type Services struct {
	Scope    Scope
	Config   *Config
	Provider Provider
	Index    *VectorIndex

	Orchestrator *Orchestrator
	Ingestor     *Ingestor

	Ask     *AskUseCase
	Ingest  *IngestUseCase
	Search  *SearchUseCase
	Status  *IndexStatusUseCase
	Rebuild *RebuildIndexUseCase
	Clear   *ClearIndexUseCase

	logger logrus.FieldLogger
}

func NewServices(ctx context.Context, opts ServiceOptions) (*Services, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := orDiscard(opts.Logger)

	provider := opts.Provider
	if provider == nil {
		provider = NewProvider(ctx, cfg, logger)
	}
	if u, ok := provider.(*UnconfiguredProvider); ok {
		logger.WithField("provider", u.Backend).Warn(u.Reason)
	}

	indexOpts := []IndexOption{
		WithTrees(cfg.Index.Trees),
		WithIndexLogger(logger),
	}
	if opts.Embedder == nil {
		indexOpts = append(indexOpts, WithEmbedderLoader(func(ctx context.Context) (Embedder, error) {
			return NewEmbedder(ctx, cfg, logger)
		}))
	}
	index := NewVectorIndex(opts.Scope.IndexPath(), opts.Embedder, indexOpts...)

	if err := index.Load(ctx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	orchestrator := NewOrchestrator(provider,
		WithCaptionPrompt(cfg.Ingest.CaptionPrompt),
		WithOrchestratorLogger(logger),
	)

	ingestOpts := []IngestorOption{
		WithSplitter(NewRecursiveSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)),
		WithCaptioner(orchestrator),
		WithIngestLogger(logger),
	}
	if opts.PDF != nil {
		ingestOpts = append(ingestOpts, WithPDFExtractor(opts.PDF))
	}
	ingestor := NewIngestor(index, ingestOpts...)

	capturer := opts.Capturer
	if capturer == nil && len(cfg.Capture.Command) > 0 {
		capturer = &CommandCapturer{Command: cfg.Capture.Command}
	}

	ocr := opts.OCR
	if ocr == nil {
		ocr = NewTesseractOCR(cfg.OCR.Command, logger)
	}

	return &Services{
		Scope:        opts.Scope,
		Config:       cfg,
		Provider:     provider,
		Index:        index,
		Orchestrator: orchestrator,
		Ingestor:     ingestor,
		Ask:          NewAskUseCase(orchestrator, index, capturer, ocr, cfg.Index.TopK, logger),
		Ingest:       NewIngestUseCase(ingestor),
		Search:       NewSearchUseCase(index),
		Status:       NewIndexStatusUseCase(index),
		Rebuild:      NewRebuildIndexUseCase(index),
		Clear:        NewClearIndexUseCase(index),
		logger:       logger,
	}, nil
}

func (s *Services) Logger() logrus.FieldLogger {
	return s.logger
}

func (s *Services) NewSession() *Session {
	return NewSession(s.Ask)
}

func (s *Services) Close() error {
	if closer, ok := s.Provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.WithError(err).Warn("close provider")
		}
	}
	return s.Index.Close()
}
