package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/4thel00z/glance/internal"
)

// bagEmbedder maps text to a letter histogram so similar strings land close
// together without a model.
type bagEmbedder struct{}

func (bagEmbedder) vector(text string) []float32 {
	v := make([]float32, 16)
	v[0] = 0.01
	for _, r := range text {
		if r != ' ' && r != '\n' {
			v[int(r)%16]++
		}
	}
	return v
}

func (e bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e bagEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (bagEmbedder) Dimension() int { return 16 }

func (bagEmbedder) Identity() internal.EmbedderIdentity {
	return internal.EmbedderIdentity{Backend: "test", Model: "bag", Dimension: 16}
}

func (bagEmbedder) Close() error { return nil }

type scriptedProvider struct {
	mu       sync.Mutex
	replies  []string
	requests []internal.GenerateRequest
}

func (p *scriptedProvider) Name() string { return "openai" }

func (p *scriptedProvider) Generate(_ context.Context, req internal.GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}

func (p *scriptedProvider) Requests() []internal.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]internal.GenerateRequest(nil), p.requests...)
}

type noCapture struct{}

func (noCapture) Capture(context.Context) (*internal.Image, error) {
	return nil, errors.New("no display")
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
}

// newTestApp runs commands in a fresh project scope with a scripted provider
// and an in-process embedder.
func newTestApp(t *testing.T, replies ...string) (*app, *scriptedProvider, string) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	work := t.TempDir()
	chdir(t, work)
	if err := os.MkdirAll(filepath.Join(work, internal.DataDirName), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	provider := &scriptedProvider{replies: replies}
	a := &app{
		resolver: internal.NewScopeResolver(),
		lookup:   func(string) (string, bool) { return "", false },
		override: func(o *internal.ServiceOptions) {
			o.Provider = provider
			o.Embedder = bagEmbedder{}
			o.Capturer = noCapture{}
			o.OCR = internal.NopOCR{}
		},
	}
	t.Cleanup(func() { _ = a.Close() })

	return a, provider, work
}

func execute(a *app, stdin string, args ...string) (string, error) {
	root := NewRootCmd("test", a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
