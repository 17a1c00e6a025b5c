// Package provider defines the unified interface and shared types for all LLM
// providers. Each adapter (openai.go, anthropic.go) converts the normalized
// request into its vendor's wire format and absorbs the vendor's response and
// streaming shapes behind this contract.
package provider

import (
	"context"
	"io"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in a multi-turn conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ── Model catalog ────────────────────────────────────────────────────────────

// ModelInfo is the normalized description of a model exposed by a provider.
// Immutable value object; JSON tags match the on-disk cache format.
type ModelInfo struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Provider          string   `json:"provider"`
	ContextWindow     int      `json:"context_window"`
	SupportsStreaming bool     `json:"supports_streaming"`
	SupportsFunctions bool     `json:"supports_functions"`
	CostPer1KTokens   *float64 `json:"cost_per_1k_tokens,omitempty"`
}

// ── Request / response ───────────────────────────────────────────────────────

// CompletionRequest is the normalized request sent to any provider.
// When Messages is non-empty it is authoritative: Prompt and SystemPrompt are
// ignored and the message list is sent verbatim (multi-turn context).
type CompletionRequest struct {
	Prompt       string
	Model        string
	Temperature  float64
	MaxTokens    int
	Stream       bool
	SystemPrompt string
	Messages     []Message
}

// Usage records token consumption for one completion call. Counters are zero
// when the vendor response carries no usage block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the normalized non-streaming result.
type CompletionResponse struct {
	Content      string
	Model        string
	Provider     string
	Usage        Usage
	FinishReason string
}

// ── Streaming ────────────────────────────────────────────────────────────────

// Stream is a finite, single-consumer, pull-based sequence of text fragments.
// Recv blocks until the next fragment is available and returns io.EOF after
// the final fragment. A mid-stream vendor error surfaces from Recv after the
// last successfully yielded fragment; fragments already returned stand.
// Close releases the underlying connection and is safe to call at any point,
// including before exhaustion (cancellation).
type Stream interface {
	Recv() (string, error)
	Close() error
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the uniform capability implemented once per vendor.
type Provider interface {
	// Name returns the provider identifier, e.g. "openai", "anthropic".
	Name() string

	// IsAvailable reports whether the provider is enabled in config and its
	// client could be constructed (credential present). Never performs
	// network I/O.
	IsAvailable() bool

	// ListModels returns the provider's model catalog, sorted ascending by
	// id. Fails soft: any transport or parse error yields an empty list and
	// a log entry, never an error.
	ListModels(ctx context.Context) []ModelInfo

	// Complete performs a single blocking completion round trip.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CompleteStream starts a streaming completion. The caller owns the
	// returned Stream and must Close it.
	CompleteStream(ctx context.Context, req *CompletionRequest) (Stream, error)
}

// textStream adapts a fragment-producing pull function plus a closer into a
// Stream. next must return io.EOF at normal exhaustion.
type textStream struct {
	next    func() (string, error)
	closeFn func() error
	done    bool
}

func (s *textStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	frag, err := s.next()
	if err != nil {
		s.done = true
	}
	return frag, err
}

func (s *textStream) Close() error {
	s.done = true
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}
