package v1

// CaptureMode decides whether a question is answered with a screenshot.
type CaptureMode int

const (
	// CaptureAuto captures when the question asks about the screen.
	CaptureAuto CaptureMode = iota
	CaptureAlways
	CaptureNever
)

// Result is delivered once per submitted task. Text is always set; on
// failure it carries a readable message and Err the cause.
type Result struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Flagged bool   `json:"flagged,omitempty"`
	Err     error  `json:"-"`
}

// Turn is one message of the conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// SearchResult represents one indexed chunk close to a query.
type SearchResult struct {
	Label   string  `json:"label"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float32 `json:"score"`
	Content string  `json:"content"`
}
