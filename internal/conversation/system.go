package conversation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

// SystemVerb identifies a parsed system command.
type SystemVerb int

const (
	VerbTaskStart SystemVerb = iota + 1
	VerbTaskDone
	VerbRebuild
)

// SystemCommand is the parsed form of a [( ... )] body.
type SystemCommand struct {
	Verb    SystemVerb
	Name    string // task start
	Summary string // task done
}

// ParseSystemCommand splits raw with shell quoting rules and matches it
// against the grammar:
//
//	task start --name <N>
//	task done --summary <S>
//	nexos rebuild
//
// Every mismatch, including help output and unbalanced quotes, is returned
// as an error wrapping ErrSystemSyntax.
func ParseSystemCommand(raw string) (SystemCommand, error) {
	args, err := shellwords.Parse(raw)
	if err != nil {
		return SystemCommand{}, fmt.Errorf("%w: %v", ErrSystemSyntax, err)
	}
	if args == nil {
		args = []string{}
	}

	var (
		parsed SystemCommand
		output bytes.Buffer
	)
	root := newSystemCLI(&parsed)
	root.SetArgs(args)
	root.SetOut(&output)
	root.SetErr(&output)

	if err := root.Execute(); err != nil {
		return SystemCommand{}, fmt.Errorf("%w: %v", ErrSystemSyntax, err)
	}
	if parsed.Verb == 0 {
		return SystemCommand{}, fmt.Errorf("%w: incomplete command %q\n%s",
			ErrSystemSyntax, raw, strings.TrimSpace(output.String()))
	}
	return parsed, nil
}

// newSystemCLI builds a fresh command tree whose leaves record into out.
func newSystemCLI(out *SystemCommand) *cobra.Command {
	root := &cobra.Command{
		Use:           "system",
		Short:         "Commands understood inside [( )]",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Work with and create tasks",
	}

	var name string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Create and start a new task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*out = SystemCommand{Verb: VerbTaskStart, Name: name}
			return nil
		},
	}
	startCmd.Flags().StringVarP(&name, "name", "n", "", "Task name")
	_ = startCmd.MarkFlagRequired("name")

	var summary string
	doneCmd := &cobra.Command{
		Use:   "done",
		Short: "Exit the current task with a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*out = SystemCommand{Verb: VerbTaskDone, Summary: summary}
			return nil
		},
	}
	doneCmd.Flags().StringVarP(&summary, "summary", "s", "", "Summary of the finished task")
	_ = doneCmd.MarkFlagRequired("summary")

	nexosCmd := &cobra.Command{
		Use:   "nexos",
		Short: "Work with the execution environment",
	}
	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the execution image from its build definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*out = SystemCommand{Verb: VerbRebuild}
			return nil
		},
	}

	taskCmd.AddCommand(startCmd, doneCmd)
	nexosCmd.AddCommand(rebuildCmd)
	root.AddCommand(taskCmd, nexosCmd)
	return root
}
