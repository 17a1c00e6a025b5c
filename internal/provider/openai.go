package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/rs/zerolog/log"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

// Settings carries the per-provider configuration an adapter needs.
// The config package owns parsing; adapters receive the resolved values.
type Settings struct {
	Enabled bool
	APIKey  string
	BaseURL string
	// Timeout bounds listing and non-streaming calls. Zero means no
	// adapter-level bound (the context still applies).
	Timeout time.Duration
}

// windowEntry maps a model-id substring to its context window size.
type windowEntry struct {
	match  string
	tokens int
}

// lookupWindow returns the context window for modelID using a longest-match
// scan over the table, case-insensitive. def is returned when nothing matches.
func lookupWindow(modelID string, table []windowEntry, def int) int {
	lower := strings.ToLower(modelID)
	best := ""
	tokens := def
	for _, e := range table {
		if strings.Contains(lower, e.match) && len(e.match) > len(best) {
			best = e.match
			tokens = e.tokens
		}
	}
	return tokens
}

var openAIWindows = []windowEntry{
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"o1-", 128000},
}

var ollamaWindows = []windowEntry{
	{"llama3", 8192},
	{"mistral", 8192},
	{"ministral", 32768},
	{"qwen", 8192},
	{"codellama", 16384},
	{"phi", 16384},
	{"gemma", 8192},
	{"deepseek", 16384},
	{"gpt-oss", 8192},
	{"olmo", 8192},
}

var openRouterWindows = []windowEntry{
	{"gpt-4-turbo", 128000},
	{"gpt-4o", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5", 16385},
	{"claude-3", 200000},
	{"claude-opus-4", 200000},
	{"claude-sonnet-4", 200000},
	{"gemini", 32768},
	{"llama-3", 8192},
	{"mistral", 32768},
	{"mixtral", 32768},
}

// OpenAICompatProvider implements Provider for every OpenAI-compatible API in
// scope: OpenAI itself, OpenRouter and a local Ollama server. The variants
// differ only in catalog filtering, context-window tables and credentials.
type OpenAICompatProvider struct {
	name          string
	enabled       bool
	hasClient     bool
	client        openai.Client
	timeout       time.Duration
	idFilters     []string // include a catalog entry iff its id contains one of these; empty = all
	windows       []windowEntry
	defaultWindow int
	functions     bool
}

// NewOpenAI constructs the hosted OpenAI adapter. Without an API key the
// provider is constructed but unavailable.
func NewOpenAI(s Settings) *OpenAICompatProvider {
	p := &OpenAICompatProvider{
		name:          "openai",
		enabled:       s.Enabled,
		timeout:       s.Timeout,
		idFilters:     []string{"gpt-", "text-", "o1-"},
		windows:       openAIWindows,
		defaultWindow: 4096,
		functions:     true,
	}
	if s.APIKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
		if s.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(s.BaseURL))
		}
		p.client = openai.NewClient(opts...)
		p.hasClient = true
	}
	return p
}

// NewOpenRouter constructs the OpenRouter adapter (OpenAI-compatible,
// multi-vendor catalog, no id filtering).
func NewOpenRouter(s Settings) *OpenAICompatProvider {
	p := &OpenAICompatProvider{
		name:          "openrouter",
		enabled:       s.Enabled,
		timeout:       s.Timeout,
		windows:       openRouterWindows,
		defaultWindow: 8192,
		functions:     true,
	}
	if s.APIKey != "" {
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		p.client = openai.NewClient(option.WithAPIKey(s.APIKey), option.WithBaseURL(baseURL))
		p.hasClient = true
	}
	return p
}

// NewOllama constructs the local Ollama adapter. Ollama exposes an
// OpenAI-compatible endpoint and ignores the API key, so a dummy key is used
// and availability depends only on the enabled flag. Calls are bounded by a
// timeout so a stopped local server fails fast.
func NewOllama(s Settings) *OpenAICompatProvider {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompatProvider{
		name:          "ollama",
		enabled:       s.Enabled,
		hasClient:     true,
		client:        openai.NewClient(option.WithAPIKey("ollama"), option.WithBaseURL(baseURL)),
		timeout:       timeout,
		windows:       ollamaWindows,
		defaultWindow: 8192,
	}
}

func (p *OpenAICompatProvider) Name() string { return p.name }

func (p *OpenAICompatProvider) IsAvailable() bool { return p.enabled && p.hasClient }

// ContextWindow reports the context window for a model id served by this
// provider, falling back to the variant default for unknown models.
func (p *OpenAICompatProvider) ContextWindow(modelID string) int {
	return lookupWindow(modelID, p.windows, p.defaultWindow)
}

func (p *OpenAICompatProvider) ListModels(ctx context.Context) []ModelInfo {
	if !p.IsAvailable() {
		return nil
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var models []ModelInfo
	iter := p.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		m := iter.Current()
		if !p.includeModel(m.ID) {
			continue
		}
		models = append(models, ModelInfo{
			ID:                m.ID,
			Name:              m.ID,
			Provider:          p.name,
			ContextWindow:     p.ContextWindow(m.ID),
			SupportsStreaming: true,
			SupportsFunctions: p.functions,
		})
	}
	if err := iter.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error().Str("provider", p.name).Msg("timeout while listing models")
		} else {
			log.Error().Err(err).Str("provider", p.name).Msg("error listing models")
		}
		return nil
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}

func (p *OpenAICompatProvider) includeModel(id string) bool {
	if len(p.idFilters) == 0 {
		return true
	}
	for _, f := range p.idFilters {
		if strings.Contains(id, f) {
			return true
		}
	}
	return false
}

func (p *OpenAICompatProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if !p.hasClient {
		return nil, nexuserr.Newf(nexuserr.CategoryProvider, "%s client not initialized", p.name)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nexuserr.Wrap(nexuserr.CategoryProvider,
				fmt.Sprintf("%s completion timed out after %s", p.name, p.timeout), err)
		}
		return nil, nexuserr.Wrap(nexuserr.CategoryProvider,
			fmt.Sprintf("%s completion failed", p.name), err)
	}
	if len(resp.Choices) == 0 {
		return nil, nexuserr.Newf(nexuserr.CategoryProvider, "%s returned no choices", p.name)
	}

	finish := string(resp.Choices[0].FinishReason)
	if finish == "" {
		finish = "stop"
	}
	return &CompletionResponse{
		Content:  resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Provider: p.name,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: finish,
	}, nil
}

func (p *OpenAICompatProvider) CompleteStream(ctx context.Context, req *CompletionRequest) (Stream, error) {
	if !p.hasClient {
		return nil, nexuserr.Newf(nexuserr.CategoryProvider, "%s client not initialized", p.name)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))
	return wrapChunkStream(p.name, stream), nil
}

// wrapChunkStream adapts the SDK's SSE chunk stream into the pull-based text
// Stream: empty deltas are skipped, exhaustion maps to io.EOF, and Close
// releases the HTTP connection.
func wrapChunkStream(name string, s *ssestream.Stream[openai.ChatCompletionChunk]) Stream {
	return &textStream{
		next: func() (string, error) {
			for s.Next() {
				chunk := s.Current()
				if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
					return chunk.Choices[0].Delta.Content, nil
				}
			}
			if err := s.Err(); err != nil {
				return "", fmt.Errorf("%s streaming error: %w", name, err)
			}
			return "", io.EOF
		},
		closeFn: s.Close,
	}
}

// buildParams converts the normalized request into chat-completions params.
// Messages, when present, are authoritative over Prompt/SystemPrompt.
func (p *OpenAICompatProvider) buildParams(req *CompletionRequest) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			switch m.Role {
			case RoleSystem:
				msgs = append(msgs, openai.SystemMessage(m.Content))
			case RoleAssistant:
				msgs = append(msgs, openai.AssistantMessage(m.Content))
			default:
				msgs = append(msgs, openai.UserMessage(m.Content))
			}
		}
	} else {
		if req.SystemPrompt != "" {
			msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
		}
		msgs = append(msgs, openai.UserMessage(req.Prompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}
