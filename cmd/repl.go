package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nexus-ai/nexus/internal/provider"
	"github.com/nexus-ai/nexus/internal/router"
	"github.com/nexus-ai/nexus/internal/session"
)

func newReplCmd() *cobra.Command {
	var opts promptOptions

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive multi-turn conversation",
		Long: "Starts a read-eval-print loop. Each exchange carries the full\n" +
			"conversation as context. Without --session the conversation is\n" +
			"recorded as a temporary session, swept after the retention window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd, &opts)
		},
	}

	bindPromptFlags(cmd, &opts)

	return cmd
}

func runRepl(cmd *cobra.Command, opts *promptOptions) error {
	cfg, _, rtr, err := initStack()
	if err != nil {
		return err
	}

	system, err := resolveSystemPrompt(cfg, opts)
	if err != nil {
		return err
	}

	store, err := sessionStore(cfg)
	if err != nil {
		return err
	}

	var sess *session.Session
	if store != nil {
		if opts.sessionName != "" {
			sess, err = store.GetOrCreate(opts.sessionName, opts.model, opts.provider)
		} else {
			sess, err = store.NewTempSession(opts.model, opts.provider)
		}
		if err != nil {
			return err
		}
	}

	fmt.Println(headerStyle.Render("nexus repl") + dimStyle.Render("  (exit or Ctrl-D to quit)"))
	if sess != nil && len(sess.Turns) > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("resuming %q with %d turns", sess.Name, len(sess.Turns))))
	}

	// Background saves keep the loop responsive; saveMu serializes writers
	// and saveWG is joined before exit so no save is lost to teardown.
	var (
		saveMu sync.Mutex
		saveWG sync.WaitGroup
	)
	saveAsync := func() {
		if store == nil || sess == nil {
			return
		}
		saveWG.Add(1)
		go func() {
			defer saveWG.Done()
			saveMu.Lock()
			defer saveMu.Unlock()
			if err := store.Save(sess); err != nil {
				log.Warn().Err(err).Msg("background session save failed")
			}
		}()
	}

	var history []provider.Message
	if sess != nil {
		history = sess.Messages()
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		ropts := &router.Options{
			Prompt:       line,
			Model:        opts.model,
			Provider:     opts.provider,
			SystemPrompt: system,
			Messages:     history,
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
		res, err := rtr.Complete(ctx, ropts)
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
			continue
		}
		if res.Streamed {
			fmt.Println()
		} else {
			fmt.Print(renderMarkdown(res.Content))
		}

		history = append(history,
			provider.Message{Role: provider.RoleUser, Content: line},
			provider.Message{Role: provider.RoleAssistant, Content: res.Content},
		)

		if store != nil && sess != nil {
			userTurn := session.NewTurn(string(provider.RoleUser), line, res.Model)
			asstTurn := session.NewTurn(string(provider.RoleAssistant), res.Content, res.Model)
			asstTurn.Tokens = map[string]int{
				"prompt":     res.Usage.PromptTokens,
				"completion": res.Usage.CompletionTokens,
				"total":      res.Usage.TotalTokens,
			}
			asstTurn.DurationMs = res.Duration.Milliseconds()
			if sess.Model == "" {
				sess.Model = res.Model
				sess.Provider = res.Provider
			}
			saveMu.Lock()
			store.AddTurn(sess, userTurn, false)
			store.AddTurn(sess, asstTurn, false)
			saveMu.Unlock()
			saveAsync()
		}
	}

	saveWG.Wait()
	if store != nil && sess != nil && len(sess.Turns) > 0 {
		if err := store.Save(sess); err != nil {
			log.Warn().Err(err).Msg("final session save failed")
		} else {
			fmt.Println(dimStyle.Render("saved session " + sess.Name))
		}
	}
	return scanner.Err()
}
