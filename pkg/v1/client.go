package v1

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/glance/internal"
)

// Client embeds the assistant: questions and ingestions run in the
// background and report back on a channel and an optional callback, so a UI
// event loop never blocks on a model.
type Client struct {
	svc        *internal.Services
	session    *internal.Session
	dispatcher *internal.Dispatcher
	capture    internal.CaptureMode
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		workers: internal.DefaultWorkers,
		lookup:  os.LookupEnv,
		logger:  internal.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	scope := internal.NewScopeResolver().Resolve(cfg.scope)

	if err := internal.LoadDotEnv(scope.EnvPath()); err != nil {
		return nil, err
	}

	fileCfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}
	conf, err := fileCfg.WithEnv(cfg.lookup)
	if err != nil {
		return nil, err
	}
	if cfg.provider != "" {
		conf.Provider = cfg.provider
	}

	svcOpts := internal.ServiceOptions{
		Scope:  scope,
		Config: conf,
		Logger: cfg.logger,
	}
	if cfg.override != nil {
		cfg.override(&svcOpts)
	}

	svc, err := internal.NewServices(context.Background(), svcOpts)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return &Client{
		svc:        svc,
		session:    svc.NewSession(),
		dispatcher: internal.NewDispatcher(cfg.workers, cfg.logger),
		capture:    captureMode(cfg.capture),
	}, nil
}

func captureMode(m CaptureMode) internal.CaptureMode {
	switch m {
	case CaptureAlways:
		return internal.CaptureAlways
	case CaptureNever:
		return internal.CaptureNever
	default:
		return internal.CaptureAuto
	}
}

// Ask submits a question. The answer, or a readable failure, arrives exactly
// once on the returned channel and on callback when it is non-nil.
func (c *Client) Ask(ctx context.Context, question string, callback func(Result)) <-chan Result {
	return c.forward(c.dispatcher.Ask(ctx, c.session, question, c.capture, nil, wrap(callback)))
}

// AskImage is Ask about an encoded screenshot (PNG, JPEG, GIF or BMP) instead
// of a live capture.
func (c *Client) AskImage(ctx context.Context, question string, image []byte, callback func(Result)) <-chan Result {
	img, err := internal.DecodeImage(image)
	if err != nil {
		res := Result{Kind: string(internal.TaskAsk), Text: fmt.Sprintf("Error processing request: %v", err), Err: err}
		if callback != nil {
			callback(res)
		}
		ch := make(chan Result, 1)
		ch <- res
		close(ch)
		return ch
	}
	return c.forward(c.dispatcher.Ask(ctx, c.session, question, internal.CaptureNever, img, wrap(callback)))
}

// Ingest adds a file or directory to the index in the background.
func (c *Client) Ingest(ctx context.Context, path string, callback func(Result)) <-chan Result {
	return c.forward(c.dispatcher.Ingest(ctx, c.svc.Ingest, internal.IngestInput{Path: path}, wrap(callback)))
}

// Search returns the k indexed chunks closest to query.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	out, err := c.svc.Search.Execute(ctx, internal.SearchInput{Query: query, Limit: k})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, SearchResult{
			Label:   r.Label,
			Source:  r.Source,
			Page:    r.Page,
			Score:   r.Score,
			Content: r.Content,
		})
	}
	return results, nil
}

// Clear waits for running tasks, deletes the index and forgets the
// conversation. It returns the message to show the user.
func (c *Client) Clear(ctx context.Context) (string, error) {
	c.dispatcher.Wait()
	c.session.Reset()
	return c.svc.Clear.Execute(ctx)
}

// History returns the remembered turns, oldest first.
func (c *Client) History() []Turn {
	h := c.session.History()
	turns := make([]Turn, 0, len(h))
	for _, t := range h {
		turns = append(turns, Turn{Role: string(t.Role), Text: t.Text})
	}
	return turns
}

// ResetHistory forgets the conversation but keeps the index.
func (c *Client) ResetHistory() {
	c.session.Reset()
}

// Wait blocks until every submitted task has reported.
func (c *Client) Wait() {
	c.dispatcher.Wait()
}

// Close waits for running tasks and releases the index and the model backends.
func (c *Client) Close() error {
	c.dispatcher.Wait()
	return c.svc.Close()
}

func (c *Client) forward(in <-chan internal.TaskResult) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		for r := range in {
			out <- toResult(r)
		}
	}()
	return out
}

func wrap(callback func(Result)) func(internal.TaskResult) {
	if callback == nil {
		return nil
	}
	return func(r internal.TaskResult) {
		callback(toResult(r))
	}
}

func toResult(r internal.TaskResult) Result {
	return Result{
		ID:      r.ID,
		Kind:    string(r.Kind),
		Text:    r.Text,
		Flagged: r.Flagged,
		Err:     r.Err,
	}
}
