package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	anthropicsse "github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

// anthropicCatalog is the compiled-in model table. Anthropic does not expose
// effective catalog discovery the way OpenAI-compatible vendors do, so the
// catalog ships with the binary: every entry is a 200k-context,
// streaming- and function-capable chat model.
var anthropicCatalog = []ModelInfo{
	{ID: "claude-opus-4-5-20251101", Name: "Claude Opus 4.5"},
	{ID: "claude-sonnet-4-5-20250929", Name: "Claude Sonnet 4.5"},
	{ID: "claude-haiku-4-5-20251001", Name: "Claude Haiku 4.5"},
	{ID: "claude-opus-4-1-20250805", Name: "Claude Opus 4.1"},
	{ID: "claude-opus-4-20250514", Name: "Claude Opus 4"},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4"},
	{ID: "claude-3-7-sonnet-20250219", Name: "Claude Sonnet 3.7"},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude Haiku 3.5"},
	{ID: "claude-3-haiku-20240307", Name: "Claude Haiku 3"},
}

func init() {
	for i := range anthropicCatalog {
		anthropicCatalog[i].Provider = "anthropic"
		anthropicCatalog[i].ContextWindow = 200000
		anthropicCatalog[i].SupportsStreaming = true
		anthropicCatalog[i].SupportsFunctions = true
	}
}

// AnthropicProvider implements Provider using the Anthropic native messages
// API. Its wire format differs from the OpenAI-compatible vendors in one
// load-bearing way: system text travels out-of-band, not as a message.
type AnthropicProvider struct {
	enabled   bool
	hasClient bool
	client    anthropic.Client
}

// NewAnthropic constructs the Anthropic adapter. Without an API key the
// provider is constructed but unavailable.
func NewAnthropic(s Settings) *AnthropicProvider {
	p := &AnthropicProvider{enabled: s.Enabled}
	if s.APIKey != "" {
		opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(s.APIKey)}
		if s.BaseURL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(s.BaseURL))
		}
		p.client = anthropic.NewClient(opts...)
		p.hasClient = true
	}
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) IsAvailable() bool { return p.enabled && p.hasClient }

func (p *AnthropicProvider) ListModels(_ context.Context) []ModelInfo {
	if !p.IsAvailable() {
		return nil
	}
	out := make([]ModelInfo, len(anthropicCatalog))
	copy(out, anthropicCatalog)
	return out
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if !p.hasClient {
		return nil, nexuserr.New(nexuserr.CategoryProvider, "anthropic client not initialized")
	}

	resp, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryProvider, "anthropic completion failed", err)
	}

	var content string
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}
	finish := string(resp.StopReason)
	if finish == "" {
		finish = "unknown"
	}
	in := int(resp.Usage.InputTokens)
	out := int(resp.Usage.OutputTokens)
	return &CompletionResponse{
		Content:  content,
		Model:    string(resp.Model),
		Provider: "anthropic",
		Usage: Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
		FinishReason: finish,
	}, nil
}

func (p *AnthropicProvider) CompleteStream(ctx context.Context, req *CompletionRequest) (Stream, error) {
	if !p.hasClient {
		return nil, nexuserr.New(nexuserr.CategoryProvider, "anthropic client not initialized")
	}

	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	return wrapAnthropicStream(stream), nil
}

// wrapAnthropicStream pulls text deltas out of the Anthropic event stream.
// Non-text events (message/content block bookkeeping) are skipped.
func wrapAnthropicStream(s *anthropicsse.Stream[anthropic.MessageStreamEventUnion]) Stream {
	return &textStream{
		next: func() (string, error) {
			for s.Next() {
				event := s.Current()
				if variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
					if d, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
						return d.Text, nil
					}
				}
			}
			if err := s.Err(); err != nil {
				return "", fmt.Errorf("anthropic streaming error: %w", err)
			}
			return "", io.EOF
		},
		closeFn: s.Close,
	}
}

// buildParams converts the normalized request into messages-API params.
// System-role entries are stripped from the message array; the first one
// found becomes the out-of-band system parameter.
func (p *AnthropicProvider) buildParams(req *CompletionRequest) anthropic.MessageNewParams {
	var msgs []anthropic.MessageParam
	system := req.SystemPrompt

	if len(req.Messages) > 0 {
		system = ""
		for _, m := range req.Messages {
			switch m.Role {
			case RoleSystem:
				if system == "" {
					system = m.Content
				}
			case RoleAssistant:
				msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			default:
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	} else {
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}
