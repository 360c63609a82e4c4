package cli

// Prompter abstracts the interactive prompts the commands use, so command
// behavior is testable without a terminal.
type Prompter interface {
	Select(label string, items []string, defaultValue string) (int, string, error)
	Prompt(label string) (string, error)
	Confirm(label string, defaultYes bool) (bool, error)
}
