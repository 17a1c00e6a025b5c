package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nexus-ai/nexus/internal/config"
	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/registry"
	"github.com/nexus-ai/nexus/internal/router"
	"github.com/nexus-ai/nexus/internal/session"
)

var (
	cfgFile     string
	verboseFlag bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	var opts promptOptions

	rootCmd := &cobra.Command{
		Use:   "nexus [prompt...]",
		Short: "Route prompts to LLM providers from the command line",
		Long: "nexus sends prompts to OpenAI, Anthropic, Ollama or OpenRouter,\n" +
			"manages reusable system prompts, and records conversations as sessions.",
		Example: `  nexus "explain the fan-in pattern in Go"
  nexus -m claude-sonnet-4-20250514 "summarize this file" --file main.go
  nexus --session api-design "how should pagination work?"`,
		Args: cobra.ArbitraryArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runPrompt(cmd, args, &opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.nexus/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	bindPromptFlags(rootCmd, &opts)

	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newPromptsCmd())
	rootCmd.AddCommand(newDefaultCmd())
	rootCmd.AddCommand(newReplCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		if hint := nexuserr.HintOf(err); hint != "" {
			fmt.Fprintln(os.Stderr, hintStyle.Render("hint: "+hint))
		}
		os.Exit(nexuserr.ExitCodeOf(err))
	}
}

func setupLogging() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if verboseFlag || os.Getenv("NEXUS_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initConfig loads configuration, honoring --config.
func initConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initStack wires config, registry and router for a command invocation.
func initStack() (*config.Config, *registry.Registry, *router.Router, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	reg := registry.New(cfg)
	return cfg, reg, router.New(cfg, reg), nil
}

// sessionStore opens the session store when sessions are enabled in config.
func sessionStore(cfg *config.Config) (*session.Store, error) {
	if !cfg.Sessions.Enabled {
		return nil, nil
	}
	retention := time.Duration(cfg.Sessions.TempRetentionHours) * time.Hour
	return session.NewStore(cfg.SessionsDir(), retention)
}
