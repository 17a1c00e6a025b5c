package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsRenameCmd())
	cmd.AddCommand(newSessionsSearchCmd())
	cmd.AddCommand(newSessionsExportCmd())

	return cmd
}

// openStore loads config and returns the session store, failing when
// sessions are disabled.
func openStore() (*session.Store, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	store, err := sessionStore(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, nexuserr.New(nexuserr.CategoryConfig,
			"sessions are disabled in the configuration")
	}
	return store, nil
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			sessions := store.List()
			if len(sessions) == 0 {
				fmt.Println(dimStyle.Render("no sessions"))
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%-32s %3d turns %8d tok  %s\n",
					s.Name, len(s.Turns), s.TotalTokens,
					dimStyle.Render(s.UpdatedAt.Format("2006-01-02 15:04")))
			}
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			out, err := store.Export(args[0], "text")
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if !store.Delete(args[0]) {
				return nexuserr.Newf(nexuserr.CategoryUsage, "session not found: %s", args[0])
			}
			fmt.Printf("deleted session %q\n", args[0])
			return nil
		},
	}
}

func newSessionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if !store.Rename(args[0], args[1]) {
				return nexuserr.Newf(nexuserr.CategoryUsage,
					"cannot rename %q to %q (missing source or name taken)", args[0], args[1])
			}
			fmt.Printf("renamed %q to %q\n", args[0], args[1])
			return nil
		},
	}
}

func newSessionsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search session names and contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			results := store.Search(args[0])
			if len(results) == 0 {
				fmt.Println(dimStyle.Render("no matches"))
				return nil
			}
			for _, r := range results {
				snippet := r.MatchedText
				if len(snippet) > 80 {
					snippet = snippet[:80] + "…"
				}
				fmt.Printf("%-32s %-8s %s\n", r.SessionName, r.MatchType, dimStyle.Render(snippet))
			}
			return nil
		},
	}
}

func newSessionsExportCmd() *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export a session as json, markdown or text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			out, err := store.Export(args[0], format)
			if err != nil {
				return err
			}
			if outPath == "" {
				fmt.Print(out)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
				return nexuserr.Wrap(nexuserr.CategoryFile,
					fmt.Sprintf("cannot write %s", outPath), err)
			}
			fmt.Printf("exported %q to %s\n", args[0], outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "export format (json, markdown, text)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to a file instead of stdout")

	return cmd
}
