package internal

import "strings"

const (
	ocrHeader     = "\n[System OCR]:\n"
	contextHeader = "\n[Manual Context]:\n"
)

const DefaultSystemPrompt = "You are an intelligent overlay assistant. " +
	"You see what the user sees on their screen. " +
	"Use the provided screenshot, OCR text, manual context, and conversation history to answer the user's question. " +
	"Be concise, helpful, and direct. " +
	"If the user asks about the app they are using, guide them step by step."

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

type Part struct {
	Type  PartType
	Text  string
	Image *Image
}

type Message struct {
	Role  string
	Parts []Part
}

// Text concatenates the text parts, for backends that take a single string.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (m Message) Images() []*Image {
	var imgs []*Image
	for _, p := range m.Parts {
		if p.Type == PartImage && p.Image != nil {
			imgs = append(imgs, p.Image)
		}
	}
	return imgs
}

// BuildMessages renders a request into the role-tagged sequence every backend
// translates from: optional system message, history in order, then the user
// turn as text, OCR block, context block, image.
func BuildMessages(req GenerateRequest) []Message {
	messages := make([]Message, 0, len(req.History)+2)

	if req.System != "" {
		messages = append(messages, Message{
			Role:  "system",
			Parts: []Part{{Type: PartText, Text: req.System}},
		})
	}

	for _, turn := range req.History {
		messages = append(messages, Message{
			Role:  string(turn.Role),
			Parts: []Part{{Type: PartText, Text: turn.Text}},
		})
	}

	parts := []Part{{Type: PartText, Text: req.Prompt}}
	if req.OCRText != "" {
		parts = append(parts, Part{Type: PartText, Text: ocrHeader + req.OCRText})
	}
	if req.ManualContext != "" {
		parts = append(parts, Part{Type: PartText, Text: contextHeader + req.ManualContext})
	}
	if req.Image != nil && !req.TextOnly {
		parts = append(parts, Part{Type: PartImage, Image: req.Image})
	}

	return append(messages, Message{Role: string(RoleUser), Parts: parts})
}
