package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	chunks []Chunk
	err    error
}

func (s *memoryStore) Add(_ context.Context, chunks []Chunk) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.chunks = append(s.chunks, chunks...)
	return len(chunks), nil
}

type stubPDF struct {
	pages []PDFPage
	err   error
}

func (p stubPDF) Pages(context.Context, string) ([]PDFPage, error) {
	return p.pages, p.err
}

type captionFunc func(*Image) (string, error)

func (f captionFunc) Describe(_ context.Context, img *Image) (string, error) {
	return f(img)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestPlainText(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "notes.txt", strings.Repeat("a", 2600))

	report, err := NewIngestor(store).Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, "Ingested 3 chunks from notes.txt.", report.Summary())
	require.Len(t, store.chunks, 3)
	for _, c := range store.chunks {
		assert.Equal(t, path, c.Metadata.Source)
		assert.Equal(t, KindText, c.Metadata.Kind)
	}
}

func TestIngestEmptyTextIsNoContent(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "empty.txt", "  \n\n ")

	report, err := NewIngestor(store).Ingest(context.Background(), path)

	assert.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, NoContentSummary, report.Summary())
	assert.Empty(t, store.chunks)
}

func TestIngestUnsupportedFormatLeavesStoreUntouched(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "photo.bin", string([]byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00}))

	_, err := NewIngestor(store).Ingest(context.Background(), path)

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, store.chunks)
}

func TestIngestPDFCaptionsImagesAndIsolatesFailures(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "manual.pdf", "%PDF-1.4")

	pdf := stubPDF{pages: []PDFPage{
		{Number: 1, Text: "Page one describes the power switch."},
		{
			Number: 2,
			Text:   "Page two shows the wiring.",
			Images: []RawImage{
				{Name: "broken", FileType: "jpg", Data: []byte("not an image")},
				{Name: "diagram", FileType: "png", Data: testPNG(t)},
			},
		},
		{Number: 3, Err: errors.New("malformed content stream")},
	}}

	var described int
	captioner := captionFunc(func(img *Image) (string, error) {
		described++
		assert.Equal(t, "image/png", img.MediaType)
		return "a wiring diagram", nil
	})

	report, err := NewIngestor(store, WithPDFExtractor(pdf), WithCaptioner(captioner)).
		Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, described)
	assert.Equal(t, 1, report.Captions)
	assert.Equal(t, 1, report.ImagesSkipped)
	assert.Equal(t, 1, report.PagesSkipped)
	assert.Equal(t, 3, report.Chunks)

	var captions []Chunk
	for _, c := range store.chunks {
		if c.Metadata.Kind == KindImageCaption {
			captions = append(captions, c)
		}
	}
	require.Len(t, captions, 1)
	assert.Equal(t, "[IMAGE ON PAGE 2]: a wiring diagram", captions[0].Content)
	assert.Equal(t, 2, captions[0].Metadata.Page)
}

func TestIngestPDFCaptionFailureSkipsImage(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "manual.pdf", "%PDF-1.4")

	pdf := stubPDF{pages: []PDFPage{{
		Number: 1,
		Text:   "Some text.",
		Images: []RawImage{{Name: "img", FileType: "png", Data: testPNG(t)}},
	}}}
	captioner := captionFunc(func(*Image) (string, error) {
		return "", errors.New("rate limited")
	})

	report, err := NewIngestor(store, WithPDFExtractor(pdf), WithCaptioner(captioner)).
		Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Captions)
	assert.Equal(t, 1, report.ImagesSkipped)
	assert.Equal(t, 1, report.Chunks)
}

func TestIngestPDFWithoutCaptionerKeepsText(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "manual.pdf", "%PDF-1.4")

	pdf := stubPDF{pages: []PDFPage{{
		Number: 1,
		Text:   "Only text survives.",
		Images: []RawImage{{Name: "img", FileType: "png", Data: testPNG(t)}},
	}}}

	report, err := NewIngestor(store, WithPDFExtractor(pdf)).Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, 1, report.ImagesSkipped)
}

func TestIngestPDFOpenFailure(t *testing.T) {
	store := &memoryStore{}
	path := writeFile(t, t.TempDir(), "broken.pdf", "garbage")

	_, err := NewIngestor(store, WithPDFExtractor(stubPDF{err: errors.New("not a pdf")})).
		Ingest(context.Background(), path)

	assert.ErrorContains(t, err, "not a pdf")
	assert.Empty(t, store.chunks)
}

func TestIngestStoreFailure(t *testing.T) {
	store := &memoryStore{err: ErrEmbedderMismatch}
	path := writeFile(t, t.TempDir(), "notes.md", "# Title\n\nbody")

	_, err := NewIngestor(store).Ingest(context.Background(), path)
	assert.ErrorIs(t, err, ErrEmbedderMismatch)
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    Format
		wantErr error
	}{
		{"guide.md", "# guide", FormatText, nil},
		{"report.PDF", "", FormatPDF, nil},
		{"README", "plain words here", FormatText, nil},
		{"scan.dat", "%PDF-1.7\n%\xe2\xe3\xcf\xd3\n", FormatPDF, nil},
		{"blob.bin", "\x00\x01\x02\xff\xfe\x00", "", ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.content)
			got, err := DetectFormat(path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "docs/b.md", "b")
	writeFile(t, root, "docs/c.pdf", "%PDF")
	writeFile(t, root, "docs/skip.go", "package x")
	writeFile(t, root, ".hidden/d.txt", "d")
	writeFile(t, root, "build/e.txt", "e")
	writeFile(t, root, IgnoreFilename, "build/\n")

	rel := func(files []string) []string {
		out := make([]string, len(files))
		for i, f := range files {
			r, err := filepath.Rel(root, f)
			require.NoError(t, err)
			out[i] = filepath.ToSlash(r)
		}
		sort.Strings(out)
		return out
	}

	ignore, err := NewIgnoreMatcher(root)
	require.NoError(t, err)

	files, err := CollectFiles(root, nil, ignore)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "docs/b.md", "docs/c.pdf"}, rel(files))

	files, err = CollectFiles(root, []string{"docs/**"}, ignore)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/b.md", "docs/c.pdf"}, rel(files))

	_, err = CollectFiles(root, []string{"docs/["}, ignore)
	assert.Error(t, err)
}

func TestIngestDirectoryContinuesPastFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.txt", "useful content")
	writeFile(t, root, "empty.txt", "   ")

	var progress []int
	store := &memoryStore{}

	results, err := NewIngestor(store).IngestDirectory(context.Background(), root, DirectoryOptions{
		Progress: func(done, total int, _ string) {
			assert.Equal(t, 2, total)
			progress = append(progress, done)
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []int{1, 2}, progress)

	summaries := map[string]string{}
	for _, r := range results {
		summaries[filepath.Base(r.Path)] = IngestSummary(r)
	}
	assert.Equal(t, "Ingested 1 chunks from good.txt.", summaries["good.txt"])
	assert.Equal(t, NoContentSummary, summaries["empty.txt"])
}

func TestReingestReplacesPreviousChunks(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, newFakeEmbedder())
	ingestor := NewIngestor(idx)

	path := writeFile(t, t.TempDir(), "notes.txt", strings.Repeat("a", 2600))
	_, err := ingestor.Ingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Stats().Sources[path])

	require.NoError(t, os.WriteFile(path, []byte("short now"), 0644))
	report, err := ingestor.Reingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, 1, idx.Stats().Sources[path])

	require.NoError(t, ingestor.Forget(ctx, path))
	assert.Zero(t, idx.Stats().Chunks)
}

func TestForgetNeedsReplacingStore(t *testing.T) {
	err := NewIngestor(&memoryStore{}).Forget(context.Background(), "x.txt")
	assert.Error(t, err)
}

func TestIngestShortFileIntoIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, newFakeEmbedder())

	path := writeFile(t, t.TempDir(), "note.txt", "Press Ctrl+S to save.")
	report, err := NewIngestor(idx).Ingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)

	text, err := idx.Retrieve(ctx, "how do I save", 3)
	require.NoError(t, err)
	assert.Equal(t, "Press Ctrl+S to save.", text)

	require.NoError(t, idx.Persist(ctx))
	require.NoError(t, idx.Load(ctx))
	assert.Equal(t, 1, idx.Stats().Chunks)
}
