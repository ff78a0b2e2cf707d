package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func newMatcher(t *testing.T, content string, extra ...string) (*IgnoreMatcher, string) {
	t.Helper()
	root := t.TempDir()
	if content != "" {
		if err := os.WriteFile(filepath.Join(root, IgnoreFilename), []byte(content), 0644); err != nil {
			t.Fatalf("write ignore file: %v", err)
		}
	}

	m, err := NewIgnoreMatcher(root, extra...)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return m, root
}

func TestIgnoreMatcherEmpty(t *testing.T) {
	m, root := newMatcher(t, "")

	if m.Match(filepath.Join(root, "anything", "goes.txt")) {
		t.Error("empty ignore should not match anything")
	}
}

func TestIgnoreMatcherExactPattern(t *testing.T) {
	m, root := newMatcher(t, "secret.txt\n")

	if !m.Match(filepath.Join(root, "secret.txt")) {
		t.Error("expected 'secret.txt' to be ignored")
	}
	if m.Match(filepath.Join(root, "public.txt")) {
		t.Error("expected 'public.txt' to not be ignored")
	}
}

func TestIgnoreMatcherGlobPattern(t *testing.T) {
	m, root := newMatcher(t, "*.log\n")

	if !m.Match(filepath.Join(root, "deep", "debug.log")) {
		t.Error("expected nested .log file to be ignored")
	}
	if m.Match(filepath.Join(root, "manual.pdf")) {
		t.Error("expected pdf to not be ignored")
	}
}

func TestIgnoreMatcherDirectory(t *testing.T) {
	m, root := newMatcher(t, "drafts/\n")

	if !m.MatchDir(filepath.Join(root, "drafts")) {
		t.Error("expected drafts directory to be ignored")
	}
	if m.Match(filepath.Join(root, "drafts.txt")) {
		t.Error("directory pattern should not match a file of the same stem")
	}
}

func TestIgnoreMatcherNegation(t *testing.T) {
	m, root := newMatcher(t, "*.md\n!README.md\n")

	if !m.Match(filepath.Join(root, "notes.md")) {
		t.Error("expected notes.md to be ignored")
	}
	if m.Match(filepath.Join(root, "README.md")) {
		t.Error("expected README.md to be re-included")
	}
}

func TestIgnoreMatcherComments(t *testing.T) {
	m, root := newMatcher(t, "# comment\n\n   \nbuild\n")

	if !m.MatchDir(filepath.Join(root, "build")) {
		t.Error("expected 'build' to be ignored")
	}
	if m.Match(filepath.Join(root, "# comment")) {
		t.Error("comment line should not become a pattern")
	}
}

func TestIgnoreMatcherExtraPatterns(t *testing.T) {
	m, root := newMatcher(t, "*.log\n", "*.txt")

	if !m.Match(filepath.Join(root, "a.txt")) {
		t.Error("expected extra pattern to apply")
	}
	if !m.Match(filepath.Join(root, "a.log")) {
		t.Error("expected file pattern to still apply")
	}
}

func TestIgnoreMatcherOutsideRoot(t *testing.T) {
	m, _ := newMatcher(t, "*\n")

	if m.Match("/somewhere/else.txt") {
		t.Error("paths outside the root are never ignored")
	}
}
