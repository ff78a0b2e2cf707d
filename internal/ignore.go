package internal

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const IgnoreFilename = ".glanceignore"

// IgnoreMatcher applies gitignore-style rules from a root's .glanceignore to
// paths considered for ingestion.
type IgnoreMatcher struct {
	patterns []gitignore.Pattern
	root     string
}

// NewIgnoreMatcher reads root/.glanceignore if present. Extra patterns, e.g.
// from --exclude flags, are applied after the file's.
func NewIgnoreMatcher(root string, extra ...string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{root: root}

	patterns, err := parseIgnoreFile(filepath.Join(root, IgnoreFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, line := range extra {
		if p := parseIgnoreLine(line); p != nil {
			patterns = append(patterns, p)
		}
	}

	m.patterns = patterns
	return m, nil
}

func (m *IgnoreMatcher) Match(path string) bool {
	return m.match(path, false)
}

func (m *IgnoreMatcher) MatchDir(path string) bool {
	return m.match(path, true)
}

// match lets later patterns override earlier ones, so a trailing "!keep.md"
// re-includes a file excluded above it.
func (m *IgnoreMatcher) match(path string, isDir bool) bool {
	relPath, err := filepath.Rel(m.root, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return false
	}

	parts := strings.Split(relPath, string(filepath.Separator))

	excluded := false
	for _, p := range m.patterns {
		switch p.Match(parts, isDir) {
		case gitignore.Exclude:
			excluded = true
		case gitignore.Include:
			excluded = false
		}
	}
	return excluded
}

func parseIgnoreLine(line string) gitignore.Pattern {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	return gitignore.ParsePattern(line, nil)
}

func parseIgnoreFile(path string) ([]gitignore.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		if p := parseIgnoreLine(scanner.Text()); p != nil {
			patterns = append(patterns, p)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}
