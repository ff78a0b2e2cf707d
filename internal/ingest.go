package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

const (
	NoContentSummary = "No content found or unsupported format."
)

type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
)

var extensionFormats = map[string]Format{
	".txt":  FormatText,
	".text": FormatText,
	".md":   FormatText,
	".log":  FormatText,
	".pdf":  FormatPDF,
}

// DetectFormat picks a reader by extension and falls back to content
// sniffing for unknown extensions.
func DetectFormat(path string) (Format, error) {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect format: %w", err)
	}

	switch {
	case mt.Is("application/pdf"):
		return FormatPDF, nil
	case mt.Is("text/plain"):
		return FormatText, nil
	}

	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filepath.Base(path), mt.String())
}

type Captioner interface {
	Describe(ctx context.Context, img *Image) (string, error)
}

type ChunkStore interface {
	Add(ctx context.Context, chunks []Chunk) (int, error)
}

// SourceReplacer is a ChunkStore that can swap every chunk of one source in a
// single commit.
type SourceReplacer interface {
	Replace(ctx context.Context, source string, chunks []Chunk) (int, error)
}

// IsSupportedFile reports whether path has an extension the ingestor reads.
func IsSupportedFile(path string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

type IngestReport struct {
	Source        string
	Documents     int
	Captions      int
	ImagesSkipped int
	PagesSkipped  int
	Chunks        int
}

func (r IngestReport) Summary() string {
	if r.Chunks == 0 {
		return NoContentSummary
	}
	return fmt.Sprintf("Ingested %d chunks from %s.", r.Chunks, filepath.Base(r.Source))
}

type Ingestor struct {
	store     ChunkStore
	splitter  *RecursiveSplitter
	pdf       PDFExtractor
	captioner Captioner
	logger    logrus.FieldLogger
}

type IngestorOption func(*Ingestor)

func WithSplitter(s *RecursiveSplitter) IngestorOption {
	return func(i *Ingestor) {
		i.splitter = s
	}
}

func WithPDFExtractor(p PDFExtractor) IngestorOption {
	return func(i *Ingestor) {
		i.pdf = p
	}
}

func WithCaptioner(c Captioner) IngestorOption {
	return func(i *Ingestor) {
		i.captioner = c
	}
}

func WithIngestLogger(logger logrus.FieldLogger) IngestorOption {
	return func(i *Ingestor) {
		i.logger = orDiscard(logger)
	}
}

func NewIngestor(store ChunkStore, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		store:    store,
		splitter: NewRecursiveSplitter(DefaultChunkSize, DefaultChunkOverlap),
		logger:   DiscardLogger(),
	}
	for _, o := range opts {
		o(i)
	}
	if i.pdf == nil {
		i.pdf = NewPDFReader(i.logger)
	}
	return i
}

// Ingest reads one file into the store. Unsupported or empty files return
// ErrUnsupportedFormat or ErrNoContent and leave the store untouched.
func (i *Ingestor) Ingest(ctx context.Context, path string) (IngestReport, error) {
	return i.ingest(ctx, path, false)
}

// Reingest is Ingest for a file that may already be indexed: stores that
// implement SourceReplacer drop the old chunks in the same commit.
func (i *Ingestor) Reingest(ctx context.Context, path string) (IngestReport, error) {
	return i.ingest(ctx, path, true)
}

// Forget removes every chunk ingested from path.
func (i *Ingestor) Forget(ctx context.Context, path string) error {
	r, ok := i.store.(SourceReplacer)
	if !ok {
		return errors.New("store cannot remove sources")
	}
	if _, err := r.Replace(ctx, absPath(path), nil); err != nil {
		return fmt.Errorf("forget %s: %w", filepath.Base(path), err)
	}
	return nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (i *Ingestor) ingest(ctx context.Context, path string, replace bool) (IngestReport, error) {
	path = absPath(path)
	report := IngestReport{Source: path}

	format, err := DetectFormat(path)
	if err != nil {
		return report, err
	}

	var docs []Document
	switch format {
	case FormatText:
		docs, err = i.readText(path)
	case FormatPDF:
		docs, err = i.readPDF(ctx, path, &report)
	}
	if err != nil {
		return report, err
	}

	report.Documents = len(docs)
	if len(docs) == 0 {
		return report, ErrNoContent
	}

	chunks := i.splitter.SplitDocuments(docs)
	if len(chunks) == 0 {
		return report, ErrNoContent
	}

	var n int
	if r, ok := i.store.(SourceReplacer); ok && replace {
		n, err = r.Replace(ctx, path, chunks)
	} else {
		n, err = i.store.Add(ctx, chunks)
	}
	if err != nil {
		return report, fmt.Errorf("index chunks: %w", err)
	}
	report.Chunks = n

	i.logger.WithFields(logrus.Fields{
		"source":   filepath.Base(path),
		"chunks":   n,
		"captions": report.Captions,
	}).Info("ingested")

	return report, nil
}

func (i *Ingestor) readText(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	content := strings.ToValidUTF8(string(data), "�")
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	return []Document{NewTextDocument(path, content)}, nil
}

func (i *Ingestor) readPDF(ctx context.Context, path string, report *IngestReport) ([]Document, error) {
	pages, err := i.pdf.Pages(ctx, path)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, page := range pages {
		log := i.logger.WithFields(logrus.Fields{
			"source": filepath.Base(path),
			"page":   page.Number,
		})

		if page.Err != nil {
			log.WithError(page.Err).Warn("skipping page text")
			report.PagesSkipped++
		}
		if page.Text != "" {
			docs = append(docs, NewPageDocument(path, page.Number, page.Text))
		}

		for _, raw := range page.Images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			caption, err := i.caption(ctx, raw)
			if err != nil {
				log.WithError(err).WithField("image", raw.Name).Warn("skipping image")
				report.ImagesSkipped++
				continue
			}

			docs = append(docs, NewCaptionDocument(path, page.Number, caption))
			report.Captions++
		}
	}

	return docs, nil
}

func (i *Ingestor) caption(ctx context.Context, raw RawImage) (string, error) {
	if i.captioner == nil {
		return "", errors.New("no captioner configured")
	}

	img, err := DecodeImage(raw.Data)
	if err != nil {
		return "", err
	}

	return i.captioner.Describe(ctx, img)
}

type DirectoryOptions struct {
	Include  []string // doublestar patterns relative to the root; empty means all
	Ignore   *IgnoreMatcher
	Progress func(done, total int, path string)
	Replace  bool // re-ingest files that may already be indexed
}

type FileResult struct {
	Path   string
	Report IngestReport
	Err    error
}

// IngestDirectory ingests every supported file under root. Per-file failures
// are recorded in the results and do not stop the walk.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, opts DirectoryOptions) ([]FileResult, error) {
	files, err := CollectFiles(root, opts.Include, opts.Ignore)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(files))
	for n, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		report, err := i.ingest(ctx, path, opts.Replace)
		results = append(results, FileResult{Path: path, Report: report, Err: err})

		if opts.Progress != nil {
			opts.Progress(n+1, len(files), path)
		}
	}

	return results, nil
}

// CollectFiles lists files under root with a known extension, honouring
// include globs and the ignore file. Hidden directories are skipped.
func CollectFiles(root string, include []string, ignore *IgnoreMatcher) ([]string, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if ignore != nil && path != root && ignore.MatchDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsSupportedFile(path) {
			return nil
		}
		if ignore != nil && ignore.Match(path) {
			return nil
		}
		if len(include) > 0 && !matchesAny(root, path, include) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return files, nil
}

func matchesAny(root, path string, patterns []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
