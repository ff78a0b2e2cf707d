package internal

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter cuts text at the coarsest separator that yields pieces
// under Size, falling back to finer separators and finally to single runes.
// Adjacent pieces are merged back up to Size with roughly Overlap runes
// carried over between consecutive chunks. Separators stay attached to the
// start of the piece that follows them.
type RecursiveSplitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/5)
	}
	return &RecursiveSplitter{
		Size:       size,
		Overlap:    overlap,
		Separators: defaultSeparators,
	}
}

func (s *RecursiveSplitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

// SplitDocuments chunks every document and numbers chunks per document.
func (s *RecursiveSplitter) SplitDocuments(docs []Document) []Chunk {
	var chunks []Chunk
	for _, d := range docs {
		for i, text := range s.Split(d.Content) {
			chunks = append(chunks, Chunk{
				Content:  text,
				Metadata: d.Metadata,
				Index:    i,
			})
		}
	}
	return chunks
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string

	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.Size {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}

		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}

	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}

	return out
}

// merge joins pieces into chunks no longer than Size, starting each new chunk
// with the tail of the previous one up to Overlap runes.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var chunks, current []string
	total := 0

	for _, p := range pieces {
		n := runeLen(p)

		if total+n > s.Size && len(current) > 0 {
			if chunk := joinChunk(current); chunk != "" {
				chunks = append(chunks, chunk)
			}

			for total > s.Overlap || (total > 0 && total+n > s.Size) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}

		current = append(current, p)
		total += n
	}

	if chunk := joinChunk(current); chunk != "" {
		chunks = append(chunks, chunk)
	}

	return chunks
}

func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func joinChunk(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
