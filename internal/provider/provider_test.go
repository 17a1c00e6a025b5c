package provider

import (
	"context"
	"io"
	"testing"
)

func TestLookupWindowLongestMatch(t *testing.T) {
	tests := []struct {
		name    string
		modelID string
		table   []windowEntry
		def     int
		want    int
	}{
		{"gpt-4o beats gpt-4", "gpt-4o-2024-08-06", openAIWindows, 4096, 128000},
		{"gpt-4-turbo beats gpt-4", "gpt-4-turbo-preview", openAIWindows, 4096, 128000},
		{"plain gpt-4", "gpt-4-0613", openAIWindows, 4096, 8192},
		{"gpt-3.5-turbo", "gpt-3.5-turbo-16k", openAIWindows, 4096, 16385},
		{"o1 reasoning", "o1-preview", openAIWindows, 4096, 128000},
		{"unknown falls back", "davinci-002", openAIWindows, 4096, 4096},
		{"case insensitive", "GPT-4O", openAIWindows, 4096, 128000},
		{"ministral beats mistral", "ministral-8b", ollamaWindows, 8192, 32768},
		{"codellama", "codellama:13b", ollamaWindows, 8192, 16384},
		{"openrouter claude", "anthropic/claude-3-opus", openRouterWindows, 8192, 200000},
		{"openrouter mixtral beats mistral", "mistralai/mixtral-8x7b", openRouterWindows, 8192, 32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lookupWindow(tt.modelID, tt.table, tt.def); got != tt.want {
				t.Errorf("lookupWindow(%q) = %d, want %d", tt.modelID, got, tt.want)
			}
		})
	}
}

func TestIncludeModelFilters(t *testing.T) {
	openai := NewOpenAI(Settings{Enabled: true, APIKey: "sk-test"})
	tests := []struct {
		id   string
		want bool
	}{
		{"gpt-4o", true},
		{"text-embedding-3-small", true},
		{"o1-mini", true},
		{"dall-e-3", false},
		{"whisper-1", false},
	}
	for _, tt := range tests {
		if got := openai.includeModel(tt.id); got != tt.want {
			t.Errorf("includeModel(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	// OpenRouter carries no filter: everything passes.
	or := NewOpenRouter(Settings{Enabled: true, APIKey: "or-test"})
	if !or.includeModel("anything/at-all") {
		t.Error("openrouter should include unfiltered ids")
	}
}

func TestAvailability(t *testing.T) {
	tests := []struct {
		name string
		p    Provider
		want bool
	}{
		{"openai enabled with key", NewOpenAI(Settings{Enabled: true, APIKey: "sk"}), true},
		{"openai enabled without key", NewOpenAI(Settings{Enabled: true}), false},
		{"openai disabled with key", NewOpenAI(Settings{APIKey: "sk"}), false},
		{"anthropic enabled with key", NewAnthropic(Settings{Enabled: true, APIKey: "sk"}), true},
		{"anthropic without key", NewAnthropic(Settings{Enabled: true}), false},
		{"ollama enabled needs no key", NewOllama(Settings{Enabled: true}), true},
		{"ollama disabled", NewOllama(Settings{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.IsAvailable(); got != tt.want {
				t.Errorf("IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnavailableProviderListsNothing(t *testing.T) {
	p := NewOpenAI(Settings{Enabled: true}) // no key
	if models := p.ListModels(context.Background()); models != nil {
		t.Errorf("expected nil model list, got %d entries", len(models))
	}
}

func TestAnthropicCatalog(t *testing.T) {
	p := NewAnthropic(Settings{Enabled: true, APIKey: "sk"})
	models := p.ListModels(context.Background())
	if len(models) != len(anthropicCatalog) {
		t.Fatalf("got %d models, want %d", len(models), len(anthropicCatalog))
	}
	for _, m := range models {
		if m.Provider != "anthropic" {
			t.Errorf("%s: provider = %q", m.ID, m.Provider)
		}
		if m.ContextWindow != 200000 {
			t.Errorf("%s: context window = %d, want 200000", m.ID, m.ContextWindow)
		}
		if !m.SupportsStreaming || !m.SupportsFunctions {
			t.Errorf("%s: expected streaming and function support", m.ID)
		}
	}

	// Returned slice must be a copy, not an aliased view of the catalog.
	models[0].ID = "mutated"
	if anthropicCatalog[0].ID == "mutated" {
		t.Error("ListModels aliased the shared catalog")
	}
}

func TestOpenAIBuildParamsMessagePrecedence(t *testing.T) {
	p := NewOpenAI(Settings{Enabled: true, APIKey: "sk"})

	// Prompt-only request: optional system message plus the user message.
	params := p.buildParams(&CompletionRequest{
		Prompt:       "hello",
		Model:        "gpt-4o",
		SystemPrompt: "be terse",
	})
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}

	// Messages present: Prompt and SystemPrompt are ignored.
	params = p.buildParams(&CompletionRequest{
		Prompt:       "ignored",
		SystemPrompt: "also ignored",
		Model:        "gpt-4o",
		Messages: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "second"},
			{Role: RoleUser, Content: "third"},
		},
	})
	if len(params.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(params.Messages))
	}
}

func TestAnthropicBuildParamsSystemExtraction(t *testing.T) {
	p := NewAnthropic(Settings{Enabled: true, APIKey: "sk"})

	params := p.buildParams(&CompletionRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []Message{
			{Role: RoleSystem, Content: "you are a pirate"},
			{Role: RoleUser, Content: "ahoy"},
			{Role: RoleAssistant, Content: "arr"},
			{Role: RoleUser, Content: "again"},
		},
	})
	// System text travels out-of-band; the message array holds the rest.
	if len(params.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(params.Messages))
	}
	if len(params.System) != 1 || params.System[0].Text != "you are a pirate" {
		t.Fatalf("system = %+v, want the extracted system text", params.System)
	}
}

func TestAnthropicBuildParamsMaxTokensDefault(t *testing.T) {
	p := NewAnthropic(Settings{Enabled: true, APIKey: "sk"})

	params := p.buildParams(&CompletionRequest{Prompt: "hi", Model: "claude-3-haiku-20240307"})
	if params.MaxTokens != 2000 {
		t.Errorf("MaxTokens = %d, want default 2000", params.MaxTokens)
	}

	params = p.buildParams(&CompletionRequest{Prompt: "hi", Model: "claude-3-haiku-20240307", MaxTokens: 512})
	if params.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", params.MaxTokens)
	}
}

func TestTextStreamExhaustion(t *testing.T) {
	frags := []string{"a", "b", "c"}
	i := 0
	s := &textStream{
		next: func() (string, error) {
			if i >= len(frags) {
				return "", io.EOF
			}
			f := frags[i]
			i++
			return f, nil
		},
	}

	var got string
	for {
		frag, err := s.Recv()
		got += frag
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got != "abc" {
		t.Errorf("accumulated %q, want %q", got, "abc")
	}

	// Recv after exhaustion keeps returning io.EOF without calling next.
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("Recv after EOF = %v, want io.EOF", err)
	}
}

func TestTextStreamCloseStopsRecv(t *testing.T) {
	closed := false
	s := &textStream{
		next:    func() (string, error) { return "x", nil },
		closeFn: func() error { closed = true; return nil },
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !closed {
		t.Error("Close did not reach the underlying closer")
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("Recv after Close = %v, want io.EOF", err)
	}
}
