package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/glance/internal"
)

func setupProviderTest(t *testing.T) (
	*internal.ProviderListUseCase,
	*internal.ProviderAddUseCase,
	*internal.ProviderRemoveUseCase,
	*internal.ProviderSetDefaultUseCase,
	*internal.ProviderTestUseCase,
) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	chdir(t, tmpDir)

	scope := internal.Scope{
		Type:     internal.ScopeProject,
		Path:     tmpDir,
		DataPath: filepath.Join(tmpDir, ".glance"),
	}
	if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := internal.SaveConfig(scope, internal.DefaultConfig()); err != nil {
		t.Fatalf("save config: %v", err)
	}

	resolver := internal.NewScopeResolver()
	return internal.NewProviderListUseCase(resolver),
		internal.NewProviderAddUseCase(resolver),
		internal.NewProviderRemoveUseCase(resolver),
		internal.NewProviderSetDefaultUseCase(resolver),
		internal.NewProviderTestUseCase(resolver)
}

func TestProviderListEmpty(t *testing.T) {
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	cmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	cmd.SetArgs([]string{"list"})

	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !strings.Contains(out.String(), "Default provider: openai") {
		t.Errorf("expected default provider line, got %q", out.String())
	}
	if !strings.Contains(out.String(), "No providers") {
		t.Errorf("expected 'No providers' message, got %q", out.String())
	}
}

func TestProviderAddAndList(t *testing.T) {
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	addCmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	addCmd.SetArgs([]string{"add", "OpenAI", "--api-key", "sk-test", "--model", "gpt-4o"})
	var addOut bytes.Buffer
	addCmd.SetOut(&addOut)

	if err := addCmd.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	if !strings.Contains(addOut.String(), "Added provider openai") {
		t.Errorf("unexpected add output: %q", addOut.String())
	}

	listCmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	listCmd.SetArgs([]string{"list"})
	var listOut bytes.Buffer
	listCmd.SetOut(&listOut)

	if err := listCmd.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}

	if !strings.Contains(listOut.String(), "\nopenai\n") {
		t.Errorf("expected 'openai' in list, got %q", listOut.String())
	}
}

func TestProviderAddRejectsLocalBackend(t *testing.T) {
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	cmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	cmd.SetArgs([]string{"add", "ollama"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err == nil {
		t.Error("expected error adding a local backend as a provider")
	}
}

func TestProviderRemove(t *testing.T) {
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	addCmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	addCmd.SetArgs([]string{"add", "anthropic", "--api-key", "x"})
	var buf bytes.Buffer
	addCmd.SetOut(&buf)
	if err := addCmd.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	rmCmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	rmCmd.SetArgs([]string{"remove", "anthropic"})
	var rmOut bytes.Buffer
	rmCmd.SetOut(&rmOut)

	if err := rmCmd.Execute(); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if !strings.Contains(rmOut.String(), "Removed provider anthropic") {
		t.Errorf("unexpected remove output: %q", rmOut.String())
	}
}

func TestProviderSetDefault(t *testing.T) {
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	defCmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	defCmd.SetArgs([]string{"default", "ollama"})
	var defOut bytes.Buffer
	defCmd.SetOut(&defOut)

	if err := defCmd.Execute(); err != nil {
		t.Fatalf("default: %v", err)
	}

	if !strings.Contains(defOut.String(), "Default provider set to ollama") {
		t.Errorf("unexpected default output: %q", defOut.String())
	}

	out, err := listUC.Execute(internal.ProviderInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out.Default != "ollama" {
		t.Errorf("expected ollama saved as default, got %q", out.Default)
	}
}

func TestProviderSetDefaultNonexistent(t *testing.T) {
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	cmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	cmd.SetArgs([]string{"default", "nonexistent"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()
	if err == nil {
		t.Error("expected error for nonexistent provider")
	}
}

func TestProviderTestUnconfigured(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	listUC, addUC, removeUC, setDefUC, testUC := setupProviderTest(t)

	cmd := NewProviderCmd(listUC, addUC, removeUC, setDefUC, testUC)
	cmd.SetArgs([]string{"test", "openai"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestProviderListJSONThroughRoot(t *testing.T) {
	a, _, _ := newTestApp(t)

	if _, err := execute(a, "", "provider", "add", "openrouter", "--model", "some/model"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := execute(a, "", "provider", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var got struct {
		Default   string   `json:"default"`
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Default != "openai" || len(got.Providers) != 1 || got.Providers[0] != "openrouter" {
		t.Errorf("unexpected list %+v", got)
	}
}
