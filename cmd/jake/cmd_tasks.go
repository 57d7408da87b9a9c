package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zaporter/jake/internal/conversation"
)

var (
	tasksAt        string
	tasksInclusive bool
)

// tasksCmd shows the task log derived at a cut point
var tasksCmd = &cobra.Command{
	Use:   "tasks <conversation-id>",
	Short: "Show the open task stack and every task created so far",
	Long: `Show the tasks of a conversation as seen from a message.

Without --at the whole conversation is visible.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksAt, "at", "", "Cut the log at this message id (or prefix)")
	tasksCmd.Flags().BoolVar(&tasksInclusive, "inclusive", false, "Include the --at message itself")
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, false)
	if err != nil {
		return err
	}
	defer kv.Close()

	c, err := getConversation(cmd, convs, args[0])
	if err != nil {
		return err
	}

	cut := ""
	if tasksAt != "" {
		if cut, err = resolveMessageID(c, tasksAt); err != nil {
			return err
		}
	}

	stack, err := c.TaskStack(cut, tasksInclusive)
	if err != nil {
		return err
	}
	tasks, err := c.TasksTill(cut, tasksInclusive)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(stack) == 0 {
		fmt.Fprintln(out, "Stack: (empty)")
	} else {
		fmt.Fprintln(out, "Stack:")
		for depth, t := range stack {
			fmt.Fprintf(out, "%s- %s [%s]\n", strings.Repeat("  ", depth+1), t.Name, t.ID)
		}
	}

	all := make([]conversation.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		all = append(all, t)
	}
	// Creation order follows message order.
	slices.SortStableFunc(all, func(a, b conversation.TaskInfo) int {
		return c.Index(a.MsgStartID) - c.Index(b.MsgStartID)
	})

	fmt.Fprintf(out, "\nTasks (%d):\n", len(all))
	for _, t := range all {
		state := "open"
		if t.Done {
			state = "done"
		}
		fmt.Fprintf(out, "  %s %q %s", t.ID, t.Name, state)
		if t.Summary != nil {
			fmt.Fprintf(out, " summary=%q", *t.Summary)
		}
		fmt.Fprintln(out)
	}
	return nil
}
