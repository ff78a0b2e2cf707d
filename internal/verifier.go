package internal

import (
	"context"
	"fmt"
	"strings"
)

const previewRunes = 100

type VerifyRequest struct {
	Question      string
	Draft         string
	OCRText       string
	ManualContext string
}

type Verdict struct {
	Passed bool
	Reason string // the critic's reply when the draft failed
}

type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) Verdict
}

var _ Verifier = (*SelfCritic)(nil)

// SelfCritic asks the answering backend to grade its own draft. The critic
// shares the generator's blind spots, so a confidently wrong answer usually
// passes; plug in a different Verifier to grade with another model.
type SelfCritic struct {
	provider Provider
	system   string
}

func NewSelfCritic(provider Provider, system string) *SelfCritic {
	return &SelfCritic{provider: provider, system: system}
}

func (c *SelfCritic) Verify(ctx context.Context, req VerifyRequest) Verdict {
	reply, err := c.provider.Generate(ctx, GenerateRequest{
		System:   c.system,
		Prompt:   CritiquePrompt(req),
		TextOnly: true,
	})
	if err != nil {
		return Verdict{Reason: Degrade(c.provider, err)}
	}

	if strings.Contains(strings.ToUpper(reply), "PASS") {
		return Verdict{Passed: true}
	}
	return Verdict{Reason: reply}
}

func CritiquePrompt(req VerifyRequest) string {
	var sb strings.Builder
	sb.WriteString("You are a Quality Assurance AI.\n")
	fmt.Fprintf(&sb, "User asked: '%s'\n", req.Question)
	fmt.Fprintf(&sb, "Assistant Answered: '%s'\n", req.Draft)
	fmt.Fprintf(&sb, "Context provided: OCR='%s...', Manual='%s...'\n\n",
		truncateRunes(req.OCRText, previewRunes), truncateRunes(req.ManualContext, previewRunes))
	sb.WriteString("Task: Evaluate the Assistant's answer.\n")
	sb.WriteString("1. Is it relevant to the user's question?\n")
	sb.WriteString("2. Is it coherent (not garbage)?\n")
	sb.WriteString("3. If Image/OCR was involved, does it seem grounded?\n\n")
	sb.WriteString("Reply strictly in this format:\n")
	sb.WriteString("PASS\n(or)\nFAIL: <Short Reason>")
	return sb.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
