package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/cenv/internal/cenv"
	"github.com/example/cenv/internal/cenv/domain"
	"github.com/example/cenv/internal/cenv/publish"
)

// Publisher is the slice of publish.Publisher the CLI needs.
type Publisher interface {
	Publish(envPath, url, claudeHome, userHome string) ([]string, error)
}

var _ Publisher = (*publish.Publisher)(nil)

// NewRootCommand constructs the root cobra command for cenv.
func NewRootCommand(store *cenv.Store, publisher Publisher, prompter Prompter, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cenv",
		Short: "Claude environment manager",
		Long: "cenv manages isolated Claude Code configurations the way pyenv manages\n" +
			"Python versions: named environments under ~/.claude-envs, activated by\n" +
			"pointing the ~/.claude symlink at one of them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(newInitCommand(store, stdout))
	cmd.AddCommand(newCreateCommand(store, stdout))
	cmd.AddCommand(newUseCommand(store, prompter, stdout))
	cmd.AddCommand(newListCommand(store, stdout))
	cmd.AddCommand(newCurrentCommand(store, stdout))
	cmd.AddCommand(newDeleteCommand(store, prompter, stdout))
	cmd.AddCommand(newTrashCommand(store, stdout))
	cmd.AddCommand(newRestoreCommand(store, prompter, stdout))
	cmd.AddCommand(newPublishCommand(store, publisher, prompter, stdout))

	return cmd
}

// RenderError formats an error for the user, appending a recovery hint for
// the failure kinds that have an obvious next step.
func RenderError(err error) string {
	msg := fmt.Sprintf("Error: %v", err)

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		if notFound.Kind == "backup" {
			msg += "\nRun 'cenv trash' to see available backups."
		} else {
			msg += "\nRun 'cenv list' to see available environments."
		}
	}
	return msg
}

func newInitCommand(store *cenv.Store, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cenv by migrating ~/.claude into a default environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Init(); err != nil {
				return err
			}
			success(stdout, "Initialized cenv successfully!")
			fmt.Fprintln(stdout, "  ~/.claude → ~/.claude-envs/default/")
			fmt.Fprintln(stdout, "\nUse 'cenv create <name>' to create new environments.")
			return nil
		},
	}
}

func newCreateCommand(store *cenv.Store, stdout io.Writer) *cobra.Command {
	var fromRepo string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			source := "default"
			if fromRepo != "" {
				source = fromRepo
			}
			if err := store.Create(name, source); err != nil {
				return err
			}
			success(stdout, "Created environment '%s' from %s", name, source)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromRepo, "from-repo", "", "Clone from GitHub repository URL")
	return cmd
}

func newUseCommand(store *cenv.Store, prompter Prompter, stdout io.Writer) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "use [name]",
		Short: "Switch to an environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := pickEnvironment(store, prompter, args, "Select environment to activate")
			if err != nil {
				return err
			}
			if err := store.Switch(name, force); err != nil {
				return err
			}
			success(stdout, "Switched to environment '%s'", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Switch even if Claude Code appears to be running")
	return cmd
}

func newListCommand(store *cenv.Store, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := store.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(stdout, "No environments found. Run 'cenv init' first.")
				return nil
			}
			current, err := store.Current()
			if err != nil {
				return err
			}
			for _, name := range names {
				if name == current {
					fmt.Fprintf(stdout, "* %s\n", color.GreenString(name))
				} else {
					fmt.Fprintf(stdout, "  %s\n", name)
				}
			}
			return nil
		},
	}
}

func newCurrentCommand(store *cenv.Store, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := store.Current()
			if err != nil {
				return err
			}
			if current == "" {
				fmt.Fprintln(stdout, "No active environment. Run 'cenv init' or 'cenv use <name>'.")
				return nil
			}
			fmt.Fprintln(stdout, current)
			return nil
		},
	}
}

func newDeleteCommand(store *cenv.Store, prompter Prompter, stdout io.Writer) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Move an environment to the trash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := pickEnvironment(store, prompter, args, "Select environment to delete")
			if err != nil {
				return err
			}
			if !yes {
				confirm, err := prompter.Confirm(fmt.Sprintf("Move environment '%s' to trash? (y/N)", name), false)
				if err != nil {
					return err
				}
				if !confirm {
					fmt.Fprintln(stdout, "Delete cancelled.")
					return nil
				}
			}
			if err := store.Delete(name); err != nil {
				return err
			}
			success(stdout, "Moved environment '%s' to trash", name)
			fmt.Fprintln(stdout, "Use 'cenv restore' to bring it back.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not prompt for confirmation")
	return cmd
}

func newTrashCommand(store *cenv.Store, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "trash",
		Short: "List soft-deleted environments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := store.ListTrash()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "Trash is empty.")
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(stdout, "%s  (deleted %s)\n", entry.BackupName, entry.DeletedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newRestoreCommand(store *cenv.Store, prompter Prompter, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore an environment from the trash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var backupName string
			if len(args) == 1 {
				backupName = args[0]
			} else {
				entries, err := store.ListTrash()
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return errors.New("trash is empty; nothing to restore")
				}
				items := make([]string, len(entries))
				for i, entry := range entries {
					items[i] = entry.BackupName
				}
				_, selected, err := prompter.Select("Select backup to restore", items, "")
				if err != nil {
					return err
				}
				backupName = selected
			}

			name, err := store.Restore(backupName)
			if err != nil {
				return err
			}
			success(stdout, "Restored environment '%s'", name)
			return nil
		},
	}
}

func newPublishCommand(store *cenv.Store, publisher Publisher, prompter Prompter, stdout io.Writer) *cobra.Command {
	var envName string

	cmd := &cobra.Command{
		Use:   "publish <url>",
		Short: "Publish an environment to a GitHub repository",
		Long: "Publish copies an environment (the active one by default) to a staging\n" +
			"area, removes credential-like files, rewrites absolute paths to portable\n" +
			"placeholders, and pushes the result to the given GitHub repository.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var url string
			if len(args) == 1 {
				url = args[0]
			} else {
				entered, err := prompter.Prompt("GitHub repository URL")
				if err != nil {
					return err
				}
				url = strings.TrimSpace(entered)
			}

			name := envName
			if name == "" {
				current, err := store.Current()
				if err != nil {
					return err
				}
				if current == "" {
					return errors.New("no active environment to publish; use --env to name one")
				}
				name = current
			}
			if exists, err := store.Exists(name); err != nil {
				return err
			} else if !exists {
				return &domain.NotFoundError{Name: name}
			}

			resolver := store.Paths()
			warnings, err := publisher.Publish(resolver.EnvPath(name), url, resolver.ActiveLink(), resolver.HomeDir())
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				fmt.Fprintf(stdout, "%s non-portable path: %s\n", color.YellowString("warning:"), warning)
			}
			success(stdout, "Published environment '%s' to %s", name, url)
			return nil
		},
	}
	cmd.Flags().StringVar(&envName, "env", "", "Environment to publish (defaults to the active one)")
	return cmd
}

// pickEnvironment resolves the target name from args, or interactively when
// no argument was given.
func pickEnvironment(store *cenv.Store, prompter Prompter, args []string, label string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	names, err := store.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.New("no environments available. Run 'cenv init' first")
	}
	current, err := store.Current()
	if err != nil {
		return "", err
	}
	_, selected, err := prompter.Select(label, names, current)
	if err != nil {
		return "", err
	}
	return selected, nil
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}
