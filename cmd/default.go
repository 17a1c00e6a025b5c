package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

func newDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default [provider] [model]",
		Short: "Show or set the default provider and model",
		Example: `  nexus default
  nexus default anthropic
  nexus default openai gpt-4o`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				fmt.Printf("provider: %s\nmodel:    %s\n",
					cfg.DefaultProvider(), cfg.Defaults.Model)
				return nil
			}

			name := args[0]
			if _, ok := cfg.Providers[name]; !ok {
				return nexuserr.Newf(nexuserr.CategoryUsage,
					"unknown provider %q", name).
					WithHint("valid providers: openai, anthropic, ollama, openrouter")
			}
			pc := cfg.Provider(name)
			if !pc.Enabled {
				return nexuserr.Newf(nexuserr.CategoryConfig,
					"provider %q is disabled in the configuration", name)
			}

			cfg.Defaults.Provider = name
			if len(args) == 2 {
				cfg.Defaults.Model = args[1]
			} else if pc.DefaultModel != "" {
				cfg.Defaults.Model = pc.DefaultModel
			}

			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("default set to %s / %s\n", cfg.Defaults.Provider, cfg.Defaults.Model)
			return nil
		},
	}
}
