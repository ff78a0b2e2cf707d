package internal

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const fakeDim = 16

// fakeEmbedder maps text to a letter histogram so similar strings land close
// together without a model.
type fakeEmbedder struct {
	model string
	mu    sync.Mutex
	calls int
	err   error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{model: "bag"}
}

func (e *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, fakeDim)
	v[0] = 0.01
	for _, r := range text {
		if r == ' ' || r == '\n' {
			continue
		}
		v[int(r)%fakeDim]++
	}
	return v
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int { return fakeDim }

func (e *fakeEmbedder) Identity() EmbedderIdentity {
	return EmbedderIdentity{Backend: "fake", Model: e.model, Dimension: fakeDim}
}

func (e *fakeEmbedder) Close() error { return nil }

func (e *fakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// scriptedProvider replies from a queue and records every request.
type scriptedProvider struct {
	name string

	mu       sync.Mutex
	replies  []string
	err      error
	requests []GenerateRequest
}

func newScriptedProvider(replies ...string) *scriptedProvider {
	return &scriptedProvider{name: "openai", replies: replies}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	if len(p.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}

func (p *scriptedProvider) Requests() []GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]GenerateRequest(nil), p.requests...)
}

func newTestIndex(t *testing.T, e Embedder) *VectorIndex {
	t.Helper()
	idx := NewVectorIndex(t.TempDir()+"/index", e, WithTrees(2))
	require.NoError(t, idx.Load(context.Background()))
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
