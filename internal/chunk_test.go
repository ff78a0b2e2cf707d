package internal

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitUnbrokenTextChunkCount(t *testing.T) {
	s := NewRecursiveSplitter(1000, 200)

	for _, tt := range []struct {
		length int
		chunks int
	}{
		{500, 1},
		{1000, 1},
		{1001, 2},
		{1800, 2},
		{2600, 3},
		{4200, 5},
	} {
		chunks := s.Split(strings.Repeat("a", tt.length))
		assert.Len(t, chunks, tt.chunks, "length %d", tt.length)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
		}
	}
}

func TestSplitOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2600; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	text := sb.String()

	chunks := NewRecursiveSplitter(1000, 200).Split(text)
	require.Len(t, chunks, 3)

	assert.Equal(t, text[0:1000], chunks[0])
	assert.Equal(t, text[800:1800], chunks[1])
	assert.Equal(t, text[1600:2600], chunks[2])
}

func TestSplitPrefersParagraphs(t *testing.T) {
	para1 := strings.Repeat("word ", 120) // 600 runes
	para2 := strings.Repeat("text ", 120)
	text := para1 + "\n\n" + para2

	chunks := NewRecursiveSplitter(1000, 200).Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.TrimSpace(para1), chunks[0])
	assert.Equal(t, strings.TrimSpace(para2), chunks[1])
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ü", 1000)

	chunks := NewRecursiveSplitter(1000, 200).Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitDropsWhitespaceChunks(t *testing.T) {
	assert.Empty(t, NewRecursiveSplitter(1000, 200).Split("  \n\n  \n "))
}

func TestSplitDocumentsKeepsMetadata(t *testing.T) {
	docs := []Document{
		NewPageDocument("manual.pdf", 2, strings.Repeat("b", 1500)),
		NewCaptionDocument("manual.pdf", 3, "a diagram"),
	}

	chunks := NewRecursiveSplitter(1000, 200).SplitDocuments(docs)
	require.Len(t, chunks, 3)

	assert.Equal(t, Metadata{Source: "manual.pdf", Page: 2, Kind: KindText}, chunks[0].Metadata)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)

	assert.Equal(t, KindImageCaption, chunks[2].Metadata.Kind)
	assert.Equal(t, "[IMAGE ON PAGE 3]: a diagram", chunks[2].Content)
	assert.Equal(t, 0, chunks[2].Index)
}

func TestNewRecursiveSplitterDefaults(t *testing.T) {
	s := NewRecursiveSplitter(0, -1)
	assert.Equal(t, DefaultChunkSize, s.Size)
	assert.Equal(t, DefaultChunkOverlap, s.Overlap)

	s = NewRecursiveSplitter(100, 500)
	assert.Less(t, s.Overlap, s.Size)
}
