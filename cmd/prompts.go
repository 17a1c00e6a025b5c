package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nexus-ai/nexus/internal/nexuserr"
	"github.com/nexus-ai/nexus/internal/prompts"
)

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage the reusable system prompt library",
	}

	cmd.AddCommand(newPromptsListCmd())
	cmd.AddCommand(newPromptsShowCmd())
	cmd.AddCommand(newPromptsSaveCmd())
	cmd.AddCommand(newPromptsDeleteCmd())

	return cmd
}

func openLibrary() (*prompts.Library, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	return prompts.NewLibrary(cfg.PromptsDir())
}

func newPromptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			names := lib.List()
			if len(names) == 0 {
				fmt.Println(dimStyle.Render("no saved prompts"))
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newPromptsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			content, found, err := lib.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				return nexuserr.Newf(nexuserr.CategoryFile, "prompt %q not found", args[0])
			}
			fmt.Print(ensureNewline(content))
			return nil
		},
	}
}

func newPromptsSaveCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "save <name> [content...]",
		Short: "Save a prompt from arguments, a file, or stdin",
		Example: `  nexus prompts save reviewer "You are a meticulous code reviewer."
  nexus prompts save reviewer --from-file reviewer.md
  cat reviewer.md | nexus prompts save reviewer`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}

			var content string
			switch {
			case fromFile != "":
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return nexuserr.Wrap(nexuserr.CategoryFile,
						fmt.Sprintf("cannot read %s", fromFile), err)
				}
				content = string(data)
			case len(args) > 1:
				content = strings.Join(args[1:], " ")
			case !term.IsTerminal(int(os.Stdin.Fd())):
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return nexuserr.Wrap(nexuserr.CategoryFile, "cannot read stdin", err)
				}
				content = string(data)
			default:
				return nexuserr.New(nexuserr.CategoryUsage,
					"no prompt content given").
					WithHint("pass content as arguments, --from-file, or pipe it on stdin")
			}

			if strings.TrimSpace(content) == "" {
				return nexuserr.New(nexuserr.CategoryUsage, "prompt content must not be empty")
			}

			path, err := lib.Save(args[0], content)
			if err != nil {
				return err
			}
			fmt.Printf("saved prompt to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "", "read the prompt content from a file")

	return cmd
}

func newPromptsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			deleted, err := lib.Delete(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return nexuserr.Newf(nexuserr.CategoryFile, "prompt %q not found", args[0])
			}
			fmt.Printf("deleted prompt %q\n", args[0])
			return nil
		},
	}
}
