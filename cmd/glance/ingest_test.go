package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/4thel00z/glance/internal"
)

func TestIngestSearchStatusClear(t *testing.T) {
	a, _, work := newTestApp(t)
	writeFile(t, work, "docs/manual.txt", "The reset button is on the back of the device.")
	writeFile(t, work, "docs/notes.md", "Zebras eat grass.")

	out, err := execute(a, "", "ingest", "docs/manual.txt")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if out != "Ingested 1 chunks from manual.txt.\n" {
		t.Errorf("unexpected ingest output %q", out)
	}

	out, err = execute(a, "", "ingest", "docs", "--exclude", "manual.txt")
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}
	if !strings.Contains(out, "Ingested 1 chunks from notes.md.") {
		t.Errorf("expected notes.md summary, got %q", out)
	}

	out, err = execute(a, "", "search", "--json", "-n", "1", "reset", "button")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var results []searchResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(results) != 1 || results[0].Label != "manual.txt #0" {
		t.Errorf("expected manual.txt first, got %+v", results)
	}

	out, err = execute(a, "", "index", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status indexStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if status.Chunks != 2 || status.Embedder == "" {
		t.Errorf("unexpected status %+v", status)
	}

	out, err = execute(a, "", "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if strings.TrimSpace(out) != internal.IndexClearedMessage {
		t.Errorf("unexpected clear output %q", out)
	}

	out, err = execute(a, "", "index", "clear")
	if err != nil {
		t.Fatalf("clear again: %v", err)
	}
	if strings.TrimSpace(out) != internal.NoIndexMessage {
		t.Errorf("unexpected second clear output %q", out)
	}
}

func TestIngestCmdNoContent(t *testing.T) {
	a, _, work := newTestApp(t)
	writeFile(t, work, "empty.txt", "   ")

	out, err := execute(a, "", "ingest", "empty.txt")
	if err != nil {
		t.Fatalf("no content is not a failure: %v", err)
	}
	if strings.TrimSpace(out) != internal.NoContentSummary {
		t.Errorf("unexpected output %q", out)
	}
}

func TestIngestCmdMissingPath(t *testing.T) {
	a, _, _ := newTestApp(t)

	if _, err := execute(a, "", "ingest", "nope.pdf"); err == nil {
		t.Error("expected error for a missing path")
	}
}

func TestIngestedContextReachesAnswer(t *testing.T) {
	a, provider, work := newTestApp(t, "Hold it for five seconds.", "PASS")
	writeFile(t, work, "manual.txt", "Hold the reset button for five seconds.")

	if _, err := execute(a, "", "ingest", "manual.txt"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := execute(a, "", "ask", "how long do I hold reset?"); err != nil {
		t.Fatalf("ask: %v", err)
	}

	draft := provider.Requests()[0]
	if !strings.Contains(draft.ManualContext, "five seconds") {
		t.Errorf("expected manual context in draft, got %q", draft.ManualContext)
	}
}

func TestSearchCmdNoMatches(t *testing.T) {
	a, _, _ := newTestApp(t)

	out, err := execute(a, "", "search", "anything")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.TrimSpace(out) != "No matches." {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a\n  b\tc", 10); got != "a b c" {
		t.Errorf("expected flattened text, got %q", got)
	}
	if got := preview("ü"+strings.Repeat("x", 20), 5); got != "üxxxx..." {
		t.Errorf("expected rune cut, got %q", got)
	}
}
