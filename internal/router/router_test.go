package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-ai/nexus/internal/config"
	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/provider"
	"github.com/nexus-ai/nexus/internal/registry"
	"github.com/nexus-ai/nexus/internal/session"
)

// scriptProvider returns canned responses and records the last request.
type scriptProvider struct {
	name     string
	models   []provider.ModelInfo
	response  *provider.CompletionResponse
	frags     []string
	streamErr error // terminal error after frags are exhausted
	err       error
	lastReq   *provider.CompletionRequest
}

func (s *scriptProvider) Name() string      { return s.name }
func (s *scriptProvider) IsAvailable() bool { return true }

func (s *scriptProvider) ListModels(context.Context) []provider.ModelInfo { return s.models }

func (s *scriptProvider) Complete(_ context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *scriptProvider) CompleteStream(_ context.Context, req *provider.CompletionRequest) (provider.Stream, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &sliceStream{frags: s.frags, finalErr: s.streamErr}, nil
}

type sliceStream struct {
	frags []string
	i     int
	// finalErr, when set, terminates the stream instead of io.EOF.
	finalErr error
}

func (s *sliceStream) Recv() (string, error) {
	if s.i >= len(s.frags) {
		if s.finalErr != nil {
			return "", s.finalErr
		}
		return "", io.EOF
	}
	f := s.frags[s.i]
	s.i++
	return f, nil
}

func (s *sliceStream) Close() error { return nil }

func newTestRouter(t *testing.T, fakes map[string]*scriptProvider) (*Router, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig(t.TempDir())
	reg := registry.New(cfg)
	for name, f := range fakes {
		f := f
		reg.SetBuilder(name, func(*config.ProviderConfig) provider.Provider { return f })
	}
	return New(cfg, reg), cfg
}

func TestEmptyPromptRejected(t *testing.T) {
	rtr, _ := newTestRouter(t, nil)
	_, err := rtr.Complete(context.Background(), &Options{Prompt: "  \n "})
	require.Error(t, err)
	assert.Equal(t, nexuserr.CategoryUsage, nexuserr.CategoryOf(err))
}

func TestDefaultingChain(t *testing.T) {
	openai := &scriptProvider{
		name:     "openai",
		response: &provider.CompletionResponse{Content: "answer", Model: "gpt-4"},
	}
	rtr, cfg := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	noStream := false
	res, err := rtr.Complete(context.Background(), &Options{Prompt: "q", Stream: &noStream})
	require.NoError(t, err)

	// Global defaults fill everything the caller left blank.
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, cfg.DefaultModel("openai"), openai.lastReq.Model)
	assert.Equal(t, cfg.Defaults.Temperature, openai.lastReq.Temperature)
	assert.Equal(t, cfg.Defaults.MaxTokens, openai.lastReq.MaxTokens)
}

func TestExplicitOverridesBeatDefaults(t *testing.T) {
	openai := &scriptProvider{
		name:     "openai",
		response: &provider.CompletionResponse{Content: "a", Model: "gpt-4o"},
	}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	temp := 0.1
	maxTokens := 64
	noStream := false
	_, err := rtr.Complete(context.Background(), &Options{
		Prompt:      "q",
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stream:      &noStream,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", openai.lastReq.Model)
	assert.Equal(t, 0.1, openai.lastReq.Temperature)
	assert.Equal(t, 64, openai.lastReq.MaxTokens)
	assert.False(t, openai.lastReq.Stream)
}

func TestModelOnlyRoutesThroughResolution(t *testing.T) {
	openai := &scriptProvider{
		name:   "openai",
		models: []provider.ModelInfo{{ID: "gpt-4o", Name: "gpt-4o"}},
	}
	ollama := &scriptProvider{
		name:     "ollama",
		models:   []provider.ModelInfo{{ID: "llama3", Name: "llama3"}},
		response: &provider.CompletionResponse{Content: "local", Model: "llama3"},
	}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai, "ollama": ollama})

	noStream := false
	res, err := rtr.Complete(context.Background(), &Options{
		Prompt: "q", Model: "llama3", Stream: &noStream,
	})
	require.NoError(t, err)
	assert.Equal(t, "ollama", res.Provider)
	assert.Equal(t, "local", res.Content)
}

func TestAmbiguousModelFailsFast(t *testing.T) {
	shared := provider.ModelInfo{ID: "dup", Name: "dup"}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{
		"openai": {name: "openai", models: []provider.ModelInfo{shared}},
		"ollama": {name: "ollama", models: []provider.ModelInfo{shared}},
	})

	_, err := rtr.Complete(context.Background(), &Options{Prompt: "q", Model: "dup"})
	assert.ErrorIs(t, err, registry.ErrModelAmbiguous)
}

func TestStreamingEmitsAndAccumulates(t *testing.T) {
	openai := &scriptProvider{
		name:  "openai",
		frags: []string{"hel", "lo ", "world"},
	}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	var out bytes.Buffer
	stream := true
	res, err := rtr.Complete(context.Background(), &Options{
		Prompt: "q", Provider: "openai", Model: "gpt-4o",
		Stream: &stream, Out: &out,
	})
	require.NoError(t, err)
	assert.True(t, res.Streamed)
	assert.Equal(t, "hello world", res.Content)
	assert.Equal(t, "hello world", out.String(), "fragments are emitted as they arrive")
	assert.Zero(t, res.Usage.TotalTokens, "streamed exchanges carry no usage counters")
}

func TestMidStreamErrorKeepsPartialResult(t *testing.T) {
	openai := &scriptProvider{
		name:      "openai",
		frags:     []string{"par", "tial"},
		streamErr: errors.New("connection reset"),
	}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	var out bytes.Buffer
	stream := true
	res, err := rtr.Complete(context.Background(), &Options{
		Prompt: "q", Provider: "openai", Model: "gpt-4o",
		Stream: &stream, Out: &out,
	})
	require.NoError(t, err, "delivered fragments survive a vendor error")
	assert.Equal(t, "partial", res.Content)
	assert.Equal(t, "partial", out.String())
}

func TestEmptyCompletionNotRecorded(t *testing.T) {
	openai := &scriptProvider{name: "openai"} // stream yields nothing
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	store, err := session.NewStore(t.TempDir(), 24*time.Hour)
	require.NoError(t, err)
	sess, err := store.Create("silent", "", "")
	require.NoError(t, err)

	stream := true
	res, err := rtr.Complete(context.Background(), &Options{
		Prompt:   "q",
		Provider: "openai",
		Model:    "gpt-4o",
		Stream:   &stream,
		Session:  sess,
		Sessions: store,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Content)

	loaded := store.Load("silent")
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Turns, "an exchange without content must not persist any turn")
}

func TestProviderErrorIsCategorized(t *testing.T) {
	openai := &scriptProvider{name: "openai", err: errors.New("boom")}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	noStream := false
	_, err := rtr.Complete(context.Background(), &Options{
		Prompt: "q", Provider: "openai", Model: "gpt-4o", Stream: &noStream,
	})
	require.Error(t, err)
	assert.Equal(t, nexuserr.CategoryProvider, nexuserr.CategoryOf(err))
}

func TestSessionSideEffect(t *testing.T) {
	openai := &scriptProvider{
		name: "openai",
		response: &provider.CompletionResponse{
			Content: "the answer",
			Model:   "gpt-4",
			Usage:   provider.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		},
	}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	store, err := session.NewStore(t.TempDir(), 24*time.Hour)
	require.NoError(t, err)
	sess, err := store.Create("recorded", "", "")
	require.NoError(t, err)

	noStream := false
	_, err = rtr.Complete(context.Background(), &Options{
		Prompt:       "the question",
		Provider:     "openai",
		Model:        "gpt-4",
		SystemPrompt: "be brief",
		Stream:       &noStream,
		Session:      sess,
		Sessions:     store,
	})
	require.NoError(t, err)

	loaded := store.Load("recorded")
	require.NotNil(t, loaded)
	require.Len(t, loaded.Turns, 2)

	user, asst := loaded.Turns[0], loaded.Turns[1]
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, "the question", user.Content)
	assert.Equal(t, "be brief", user.Metadata["system_prompt"])

	assert.Equal(t, "assistant", asst.Role)
	assert.Equal(t, "the answer", asst.Content)
	assert.Equal(t, 10, asst.Tokens["total"])
	assert.Equal(t, 10, loaded.TotalTokens)
	assert.Equal(t, "gpt-4", loaded.Model, "session adopts the first exchange's model")
}

func TestMultiTurnMessagesAssembly(t *testing.T) {
	openai := &scriptProvider{
		name:     "openai",
		response: &provider.CompletionResponse{Content: "a", Model: "gpt-4"},
	}
	rtr, _ := newTestRouter(t, map[string]*scriptProvider{"openai": openai})

	noStream := false
	_, err := rtr.Complete(context.Background(), &Options{
		Prompt:       "third question",
		Provider:     "openai",
		Model:        "gpt-4",
		SystemPrompt: "stay on topic",
		Stream:       &noStream,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "first"},
			{Role: provider.RoleAssistant, Content: "second"},
		},
	})
	require.NoError(t, err)

	msgs := openai.lastReq.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, provider.RoleSystem, msgs[0].Role)
	assert.Equal(t, "stay on topic", msgs[0].Content)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, "second", msgs[2].Content)
	assert.Equal(t, provider.RoleUser, msgs[3].Role)
	assert.Equal(t, "third question", msgs[3].Content)
}
