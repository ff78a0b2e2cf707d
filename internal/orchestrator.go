package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	FlaggedNote          = "\n\n[Note: Initial response was flagged by Quality Agent and regenerated.]"
	DefaultCaptionPrompt = "Describe this image in detail for a technical manual."
)

type QueryRequest struct {
	Text          string
	Image         *Image
	OCRText       string
	ManualContext string
	History       History
}

type QueryResult struct {
	Answer  string
	Flagged bool
}

// Orchestrator drafts an answer, has it verified and regenerates it once when
// the verifier rejects it. Backend failures never surface as errors; they
// become the degraded answer text and run through the same flow.
type Orchestrator struct {
	provider      Provider
	verifier      Verifier
	system        string
	captionPrompt string
	logger        logrus.FieldLogger
}

type OrchestratorOption func(*Orchestrator)

func WithVerifier(v Verifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.verifier = v
	}
}

func WithSystemPrompt(system string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.system = system
	}
}

func WithCaptionPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		if prompt != "" {
			o.captionPrompt = prompt
		}
	}
}

func WithOrchestratorLogger(logger logrus.FieldLogger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = orDiscard(logger)
	}
}

func NewOrchestrator(provider Provider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:      provider,
		system:        DefaultSystemPrompt,
		captionPrompt: DefaultCaptionPrompt,
		logger:        DiscardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.verifier == nil {
		o.verifier = NewSelfCritic(provider, o.system)
	}
	return o
}

func (o *Orchestrator) Provider() Provider {
	return o.provider
}

func (o *Orchestrator) Answer(ctx context.Context, req QueryRequest) QueryResult {
	draft := o.generate(ctx, req, req.Text)

	verdict := o.verifier.Verify(ctx, VerifyRequest{
		Question:      req.Text,
		Draft:         draft,
		OCRText:       req.OCRText,
		ManualContext: req.ManualContext,
	})
	if verdict.Passed {
		return QueryResult{Answer: draft}
	}

	o.logger.WithField("reason", verdict.Reason).Info("draft rejected, regenerating")

	retry := o.generate(ctx, req, retryPrompt(req.Text, draft, verdict.Reason))

	return QueryResult{
		Answer:  retry + FlaggedNote,
		Flagged: true,
	}
}

func (o *Orchestrator) generate(ctx context.Context, req QueryRequest, prompt string) string {
	out, err := o.provider.Generate(ctx, GenerateRequest{
		System:        o.system,
		Prompt:        prompt,
		OCRText:       req.OCRText,
		ManualContext: req.ManualContext,
		Image:         req.Image,
		History:       req.History,
	})
	if err != nil {
		o.logger.WithError(err).WithField("provider", o.provider.Name()).Warn("generation failed")
		return Degrade(o.provider, err)
	}
	return out
}

func retryPrompt(question, draft, reason string) string {
	return fmt.Sprintf("Your previous answer was rejected by QA.\n"+
		"User Question: %s\n"+
		"Rejected Answer: %s\n"+
		"QA Reason: %s\n\n"+
		"Please allow me to try again. Provide a better, accurate answer.",
		question, draft, reason)
}

// Describe captions one image for ingestion. There is no verification pass and
// failures are returned so the caller can skip the image.
func (o *Orchestrator) Describe(ctx context.Context, img *Image) (string, error) {
	out, err := o.provider.Generate(ctx, GenerateRequest{
		System:       o.system,
		Prompt:       o.captionPrompt,
		Image:        img,
		RequireImage: true,
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrNoContent
	}
	return out, nil
}
