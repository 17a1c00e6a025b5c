package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nexus-ai/nexus/internal/provider"
)

func newModelsCmd() *cobra.Command {
	var fast, noCache bool
	var providerFilter string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available from the enabled providers",
		Example: `  nexus models
  nexus models --fast
  nexus models -p anthropic --no-cache`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, _, err := initStack()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var all map[string][]provider.ModelInfo
			if fast {
				all = reg.ListAllModelsFast(ctx, !noCache)
			} else {
				all = reg.ListAllModels(ctx, !noCache)
			}

			names := make([]string, 0, len(all))
			for name := range all {
				if providerFilter != "" && name != providerFilter {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)

			if len(names) == 0 {
				fmt.Println(dimStyle.Render("no providers available"))
				return nil
			}

			for _, name := range names {
				models := all[name]
				fmt.Println(headerStyle.Render(name))
				if len(models) == 0 {
					// fast mode lists remote providers as reachable without
					// enumerating their catalogs
					fmt.Println(dimStyle.Render("  (available; rerun without --fast to list models)"))
					continue
				}
				for _, m := range models {
					line := fmt.Sprintf("  %-44s %8d ctx", m.ID, m.ContextWindow)
					if m.SupportsStreaming {
						line += "  stream"
					}
					if m.SupportsFunctions {
						line += "  tools"
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fast, "fast", false, "probe remote providers instead of listing their catalogs")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the cached model list")
	cmd.Flags().StringVarP(&providerFilter, "provider", "p", "", "only show models from one provider")

	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show configured providers and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, _, err := initStack()
			if err != nil {
				return err
			}

			for _, name := range reg.ListProviders() {
				status := "unavailable"
				if reg.Provider(name) != nil {
					status = "ready"
				}
				line := fmt.Sprintf("%-12s %-12s", name, status)
				if dm := cfg.DefaultModel(name); dm != "" {
					line += dimStyle.Render("default: " + dm)
				}
				if name == cfg.DefaultProvider() {
					line += "  *"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
