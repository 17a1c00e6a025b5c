// Package router turns a prompt plus CLI options into a provider call,
// applying the defaulting chain (explicit flag, provider default, global
// default) and recording the exchange into a session when one is attached.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-ai/nexus/internal/config"
	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/provider"
	"github.com/nexus-ai/nexus/internal/registry"
	"github.com/nexus-ai/nexus/internal/session"
)

// Options carries one completion request as assembled from CLI flags.
// Pointer fields distinguish "flag not given" from a zero value.
type Options struct {
	Prompt       string
	Model        string // explicit model id, may be empty
	Provider     string // explicit provider name, may be empty
	Temperature  *float64
	MaxTokens    *int
	Stream       *bool
	SystemPrompt string

	// Messages, when non-empty, carries prior conversation turns; the
	// current Prompt is appended as the final user message.
	Messages []provider.Message

	// Session, when non-nil, receives a user turn and an assistant turn
	// after the call. Save failures never fail the completion.
	Session  *session.Session
	Sessions *session.Store

	// Out receives streamed fragments as they arrive. Defaults to
	// io.Discard when nil.
	Out io.Writer
}

// Result is the outcome of one routed completion.
type Result struct {
	Content      string
	Model        string
	Provider     string
	Usage        provider.Usage
	FinishReason string
	Streamed     bool
	Duration     time.Duration
}

// Router resolves provider and model and executes completion requests.
type Router struct {
	cfg *config.Config
	reg *registry.Registry
}

func New(cfg *config.Config, reg *registry.Registry) *Router {
	return &Router{cfg: cfg, reg: reg}
}

// resolve applies the defaulting chain and returns the provider instance
// plus the model id to request.
func (r *Router) resolve(ctx context.Context, opts *Options) (provider.Provider, string, error) {
	providerName := opts.Provider
	model := opts.Model

	switch {
	case providerName != "" && model != "":
		// fully qualified, nothing to infer
	case providerName == "" && model != "":
		name, _, err := r.reg.ResolveModel(ctx, model, "")
		if err != nil {
			return nil, "", err
		}
		providerName = name
	case providerName != "" && model == "":
		model = r.cfg.DefaultModel(providerName)
		if model == "" {
			return nil, "", nexuserr.Newf(nexuserr.CategoryConfig,
				"no default model configured for provider %q", providerName).
				WithHint("pass --model or set a default_model in the config")
		}
	default:
		providerName = r.cfg.DefaultProvider()
		if providerName == "" {
			return nil, "", nexuserr.New(nexuserr.CategoryConfig,
				"no default provider configured")
		}
		model = r.cfg.DefaultModel(providerName)
	}

	p := r.reg.Provider(providerName)
	if p == nil {
		return nil, "", nexuserr.Newf(nexuserr.CategoryProvider,
			"provider %q is not available", providerName).
			WithHint("check that the provider is enabled and its API key is set")
	}
	return p, model, nil
}

// Complete executes one completion. Streaming requests write fragments to
// opts.Out as they arrive and the returned Result holds the accumulated
// text; a cancellation or vendor error mid-stream yields the partial result
// rather than an error, since delivered fragments stand.
func (r *Router) Complete(ctx context.Context, opts *Options) (*Result, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, nexuserr.New(nexuserr.CategoryUsage, "prompt must not be empty")
	}

	p, model, err := r.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	req := r.buildRequest(opts, model)
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	start := time.Now()
	var res *Result
	if req.Stream {
		res, err = r.streamed(ctx, p, req, out)
	} else {
		res, err = r.blocking(ctx, p, req)
	}
	if err != nil {
		return nil, err
	}
	res.Provider = p.Name()
	res.Duration = time.Since(start)

	r.record(opts, res)
	return res, nil
}

func (r *Router) buildRequest(opts *Options, model string) *provider.CompletionRequest {
	req := &provider.CompletionRequest{
		Prompt:       opts.Prompt,
		Model:        model,
		Temperature:  r.cfg.Defaults.Temperature,
		MaxTokens:    r.cfg.Defaults.MaxTokens,
		Stream:       r.cfg.Defaults.Stream,
		SystemPrompt: opts.SystemPrompt,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Stream != nil {
		req.Stream = *opts.Stream
	}
	if len(opts.Messages) > 0 {
		msgs := make([]provider.Message, 0, len(opts.Messages)+2)
		if opts.SystemPrompt != "" {
			msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: opts.SystemPrompt})
		}
		msgs = append(msgs, opts.Messages...)
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: opts.Prompt})
		req.Messages = msgs
	}
	return req
}

func (r *Router) blocking(ctx context.Context, p provider.Provider, req *provider.CompletionRequest) (*Result, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryProvider,
			fmt.Sprintf("%s completion failed", p.Name()), err)
	}
	return &Result{
		Content:      resp.Content,
		Model:        resp.Model,
		Usage:        resp.Usage,
		FinishReason: resp.FinishReason,
	}, nil
}

func (r *Router) streamed(ctx context.Context, p provider.Provider, req *provider.CompletionRequest, out io.Writer) (*Result, error) {
	stream, err := p.CompleteStream(ctx, req)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryProvider,
			fmt.Sprintf("%s streaming failed", p.Name()), err)
	}
	defer stream.Close()

	var buf strings.Builder
	for {
		frag, err := stream.Recv()
		if frag != "" {
			buf.WriteString(frag)
			if _, werr := io.WriteString(out, frag); werr != nil {
				log.Warn().Err(werr).Msg("output write failed mid-stream")
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, context.Canceled) {
				// interrupted by the user; keep what arrived
				log.Debug().Msg("stream cancelled, returning partial response")
				break
			}
			// A vendor error mid-stream does not invalidate the fragments
			// already delivered: report it and keep the partial buffer.
			log.Error().Err(err).Str("provider", p.Name()).Msg("stream interrupted")
			break
		}
	}

	return &Result{
		Content:  buf.String(),
		Model:    req.Model,
		Streamed: true,
	}, nil
}

// record appends the exchange to the attached session. An exchange that
// produced no content (failed or interrupted before the first fragment) is
// not recorded at all; a user turn without an answer has no replay value.
// Persistence failures are logged, never surfaced: a lost transcript must
// not mask a delivered answer.
func (r *Router) record(opts *Options, res *Result) {
	if opts.Session == nil || opts.Sessions == nil {
		return
	}
	if res.Content == "" {
		return
	}

	userTurn := session.NewTurn(string(provider.RoleUser), opts.Prompt, res.Model)
	if opts.SystemPrompt != "" {
		userTurn.Metadata = map[string]any{"system_prompt": opts.SystemPrompt}
	}
	if err := opts.Sessions.AddTurn(opts.Session, userTurn, false); err != nil {
		log.Warn().Err(err).Msg("failed to record user turn")
	}

	asstTurn := session.NewTurn(string(provider.RoleAssistant), res.Content, res.Model)
	asstTurn.Tokens = map[string]int{
		"prompt":     res.Usage.PromptTokens,
		"completion": res.Usage.CompletionTokens,
		"total":      res.Usage.TotalTokens,
	}
	asstTurn.DurationMs = res.Duration.Milliseconds()
	if opts.Session.Model == "" {
		opts.Session.Model = res.Model
		opts.Session.Provider = res.Provider
	}
	if err := opts.Sessions.AddTurn(opts.Session, asstTurn, true); err != nil {
		log.Warn().Err(err).Str("session", opts.Session.Name).
			Msg("failed to persist session")
	}
}
