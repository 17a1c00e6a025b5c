// Package session owns durable conversation logs: one pretty-printed JSON
// document per session, written atomically, with temp-session lifecycle and
// search/export on top.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexus-ai/nexus/internal/provider"
)

// Turn is one exchange unit within a session. Immutable once created;
// appended, never edited.
type Turn struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Role       string         `json:"role"` // "user" or "assistant"
	Content    string         `json:"content"`
	Model      string         `json:"model"`
	Tokens     map[string]int `json:"tokens"` // prompt, completion, total
	DurationMs int64          `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"` // files, system_prompt
}

// NewTurn creates a turn with a fresh id and timestamp.
func NewTurn(role, content, model string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
		Model:     model,
		Tokens:    map[string]int{},
	}
}

// Session is a named, persisted multi-turn conversation. TotalTokens is
// accumulated incrementally on AddTurn, never recomputed on load.
type Session struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	TotalTokens int       `json:"total_tokens"`
	Turns       []Turn    `json:"turns"`
}

// Messages flattens the turns into provider messages, for replaying a
// session as multi-turn context.
func (s *Session) Messages() []provider.Message {
	out := make([]provider.Message, 0, len(s.Turns))
	for _, t := range s.Turns {
		out = append(out, provider.Message{Role: provider.Role(t.Role), Content: t.Content})
	}
	return out
}

// SearchResult is a projection over a session matching a query; never
// persisted.
type SearchResult struct {
	SessionName string    `json:"session_name"`
	MatchType   string    `json:"match_type"` // "name" or "content"
	MatchedText string    `json:"matched_text"`
	TurnCount   int       `json:"turn_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
