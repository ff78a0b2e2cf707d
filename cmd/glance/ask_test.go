package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/glance/internal"
)

func TestAskCmdPrintsVerifiedAnswer(t *testing.T) {
	a, provider, _ := newTestApp(t, "Press Ctrl+S to save.", "PASS")

	out, err := execute(a, "", "ask", "how", "do", "I", "save?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if out != "Press Ctrl+S to save.\n" {
		t.Errorf("unexpected output %q", out)
	}

	reqs := provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected draft and verify calls, got %d", len(reqs))
	}
	if reqs[0].Prompt != "how do I save?" {
		t.Errorf("expected joined question, got %q", reqs[0].Prompt)
	}
}

func TestAskCmdFlaggedAnswer(t *testing.T) {
	a, _, _ := newTestApp(t, "draft", "FAIL: vague", "better answer")

	out, err := execute(a, "", "ask", "what now?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if strings.TrimSuffix(out, "\n") != "better answer"+internal.FlaggedNote {
		t.Errorf("expected flagged answer, got %q", out)
	}
}

func TestAskCmdJSON(t *testing.T) {
	a, _, _ := newTestApp(t, "It is a terminal.", "PASS")

	out, err := execute(a, "", "ask", "--json", "@screen", "what", "is", "this?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	var res askResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Answer != "It is a terminal." || res.Flagged {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Captured {
		t.Error("capture fails in tests, expected captured=false")
	}
}

func TestAskCmdImageFlag(t *testing.T) {
	a, provider, work := newTestApp(t, "A red dot.", "PASS")

	missing := filepath.Join(work, "missing.png")
	if _, err := execute(a, "", "ask", "--image", missing, "what is this?"); err == nil {
		t.Error("expected error for a missing image")
	}
	if len(provider.Requests()) != 0 {
		t.Error("provider must not be called when the image cannot be read")
	}
}

func TestAskCmdScreenFlagsExclusive(t *testing.T) {
	a, _, _ := newTestApp(t)

	if _, err := execute(a, "", "ask", "--screen", "--no-screen", "hi"); err == nil {
		t.Error("expected error for --screen with --no-screen")
	}
}
