package internal

import (
	"context"
	"strings"
	"sync"
)

var visionKeywords = []string{
	"@screen",
	"capture screen",
	"read screen",
	"check screen",
	"analyze screen",
	"look at screen",
	"what is on my screen",
}

// ShouldCapture reports whether a question explicitly asks about the screen.
func ShouldCapture(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range visionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Session owns the conversation history for one caller. The history sent with
// a question holds only earlier turns; the question and its answer are
// appended once the answer is back.
type Session struct {
	mu      sync.Mutex
	ask     *AskUseCase
	history History
}

func NewSession(ask *AskUseCase) *Session {
	return &Session{ask: ask}
}

func (s *Session) Ask(ctx context.Context, text string, capture CaptureMode, img *Image) (*AskOutput, error) {
	s.mu.Lock()
	history := s.history.Clone()
	s.mu.Unlock()

	out, err := s.ask.Execute(ctx, AskInput{
		Text:    text,
		Capture: capture,
		Image:   img,
		History: history,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.history = s.history.Append(
		Turn{Role: RoleUser, Text: text},
		Turn{Role: RoleAssistant, Text: out.Answer},
	)
	s.mu.Unlock()

	return out, nil
}

func (s *Session) History() History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
