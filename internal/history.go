package internal

const MaxHistoryTurns = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is a rolling window of the most recent turns. Values are treated as
// immutable: Append returns a fresh slice and never writes into the receiver's
// backing array.
type History []Turn

func (h History) Append(turns ...Turn) History {
	merged := make(History, 0, len(h)+len(turns))
	merged = append(merged, h...)
	merged = append(merged, turns...)
	return merged.Truncate(MaxHistoryTurns)
}

func (h History) Truncate(n int) History {
	if n < 0 {
		n = 0
	}
	if len(h) <= n {
		return h
	}
	out := make(History, n)
	copy(out, h[len(h)-n:])
	return out
}

func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}
