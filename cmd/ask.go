package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nexus-ai/nexus/internal/config"
	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/pathsec"
	"github.com/nexus-ai/nexus/internal/prompts"
	"github.com/nexus-ai/nexus/internal/provider"
	"github.com/nexus-ai/nexus/internal/router"
	"github.com/nexus-ai/nexus/internal/session"
)

// promptOptions holds the flags of the root prompt command.
type promptOptions struct {
	model          string
	provider       string
	temperature    float64
	maxTokens      int
	noStream       bool
	system         string
	promptName     string
	sessionName    string
	files          []string
	allowSensitive bool
}

func bindPromptFlags(cmd *cobra.Command, opts *promptOptions) {
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model to use")
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "provider to use (openai, anthropic, ollama, openrouter)")
	cmd.Flags().Float64VarP(&opts.temperature, "temperature", "t", 0, "sampling temperature")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "maximum tokens in the response")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "wait for the full response instead of streaming")
	cmd.Flags().StringVarP(&opts.system, "system", "s", "", "inline system prompt")
	cmd.Flags().StringVar(&opts.promptName, "prompt-name", "", "use a saved system prompt by name")
	cmd.Flags().StringVar(&opts.sessionName, "session", "", "record the exchange into a named session")
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "include file or directory contents (repeatable)")
	cmd.Flags().BoolVar(&opts.allowSensitive, "allow-sensitive", false, "allow reading files that look like credentials")
}

// runPrompt executes the root prompt flow: assemble the prompt (files and
// system prompt included), resolve the session, route the completion, render
// the answer.
func runPrompt(cmd *cobra.Command, args []string, opts *promptOptions) error {
	cfg, _, rtr, err := initStack()
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	prompt, err = attachFiles(prompt, opts)
	if err != nil {
		return err
	}

	system, err := resolveSystemPrompt(cfg, opts)
	if err != nil {
		return err
	}

	store, sess, prior, err := resolveSession(cfg, opts)
	if err != nil {
		return err
	}

	ropts := &router.Options{
		Prompt:       prompt,
		Model:        opts.model,
		Provider:     opts.provider,
		SystemPrompt: system,
		Messages:     prior,
		Session:      sess,
		Sessions:     store,
		Out:          os.Stdout,
	}
	if cmd.Flags().Changed("temperature") {
		ropts.Temperature = &opts.temperature
	}
	if cmd.Flags().Changed("max-tokens") {
		ropts.MaxTokens = &opts.maxTokens
	}
	if opts.noStream {
		stream := false
		ropts.Stream = &stream
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := rtr.Complete(ctx, ropts)
	if err != nil {
		return err
	}

	if res.Streamed {
		fmt.Println()
		return nil
	}
	fmt.Print(renderMarkdown(res.Content))
	return nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM. The returned
// CancelFunc also unregisters the handler and releases the watcher
// goroutine, so the default signal disposition is restored once the guarded
// call finishes (the REPL creates one of these per exchange).
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// attachFiles validates each --file argument and appends its contents to the
// prompt as fenced blocks. Directories are walked; hidden entries skipped.
func attachFiles(prompt string, opts *promptOptions) (string, error) {
	if len(opts.files) == 0 {
		return prompt, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CategoryFile, "cannot determine working directory", err)
	}
	popts := pathsec.Options{
		BaseDir:        cwd,
		AllowSensitive: opts.allowSensitive,
		Interactive:    true,
	}

	var b strings.Builder
	b.WriteString(prompt)
	for _, raw := range opts.files {
		paths, err := pathsec.WalkFiles(raw, popts)
		if err != nil {
			return "", err
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", nexuserr.Wrap(nexuserr.CategoryFile,
					fmt.Sprintf("cannot read file: %s", path), err)
			}
			rel, rerr := filepath.Rel(cwd, path)
			if rerr != nil {
				rel = path
			}
			fmt.Fprintf(&b, "\n\n--- %s ---\n```\n%s\n```", rel, strings.TrimRight(string(data), "\n"))
		}
	}
	return b.String(), nil
}

// resolveSystemPrompt prefers the inline --system text over a saved prompt
// referenced by --prompt-name.
func resolveSystemPrompt(cfg *config.Config, opts *promptOptions) (string, error) {
	if opts.system != "" {
		return opts.system, nil
	}
	if opts.promptName == "" {
		return "", nil
	}
	lib, err := prompts.NewLibrary(cfg.PromptsDir())
	if err != nil {
		return "", err
	}
	content, found, err := lib.Get(opts.promptName)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nexuserr.Newf(nexuserr.CategoryFile,
			"prompt %q not found", opts.promptName).
			WithHint("list saved prompts with: nexus prompts list")
	}
	return content, nil
}

// resolveSession opens the store and loads or creates the named session,
// returning its prior turns as provider messages for multi-turn context.
func resolveSession(cfg *config.Config, opts *promptOptions) (*session.Store, *session.Session, []provider.Message, error) {
	if opts.sessionName == "" {
		return nil, nil, nil, nil
	}
	if !cfg.Sessions.Enabled {
		return nil, nil, nil, nexuserr.New(nexuserr.CategoryConfig,
			"sessions are disabled in the configuration")
	}
	store, err := sessionStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := store.GetOrCreate(opts.sessionName, opts.model, opts.provider)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, sess, sess.Messages(), nil
}

// renderMarkdown pretty-prints markdown on a TTY, passing text through
// unchanged when stdout is a pipe or the renderer cannot be built.
func renderMarkdown(text string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ensureNewline(text)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return ensureNewline(text)
	}
	out, err := r.Render(text)
	if err != nil {
		return ensureNewline(text)
	}
	return out
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
