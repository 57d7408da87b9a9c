package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zaporter/jake/internal/conversation"
)

var showJSON bool

// newCmd creates an empty conversation
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty conversation and print its id",
	Args:  cobra.NoArgs,
	RunE:  runNew,
}

// listCmd lists conversations, newest first
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

// showCmd prints one conversation
var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// deleteCmd removes a conversation
var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the stored JSON instead of a transcript")
}

func runNew(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	id, err := convs.Insert(ctx, conversation.New())
	if err != nil {
		return err
	}
	logger.Info("conversation created", zap.String("id", id))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, false)
	if err != nil {
		return err
	}
	defer kv.Close()

	all, err := convs.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversations found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tMESSAGES\tFIRST")
	for _, c := range all {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Time.Format(timeLayout), len(c.Messages), preview(c))
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
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

	if showJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	printTranscript(cmd.OutOrStdout(), c)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	if _, err := getConversation(cmd, convs, args[0]); err != nil {
		return err
	}
	if err := convs.Delete(ctx, args[0]); err != nil {
		return err
	}
	logger.Info("conversation deleted", zap.String("id", args[0]))
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %s\n", args[0])
	return nil
}

const timeLayout = "2006-01-02 15:04:05"

// preview returns the first line of the first non-empty message.
func preview(c *conversation.Conversation) string {
	for _, m := range c.Messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(m.Text), "\n")
		if r := []rune(line); len(r) > 48 {
			line = string(r[:48]) + "..."
		}
		return line
	}
	return ""
}

func printTranscript(w io.Writer, c *conversation.Conversation) {
	fmt.Fprintf(w, "Conversation %s (%s)\n", c.ID, c.Time.Format(timeLayout))
	for i, m := range c.Messages {
		fmt.Fprintf(w, "\n[%d] %s %s %s", i, m.ID, m.User, m.Time.Format(timeLayout))
		if m.Meta.ExcludeFromTraining {
			fmt.Fprint(w, " (excluded)")
		}
		if m.Meta.OmitHistoryUntil != "" {
			fmt.Fprintf(w, " (history from %s)", m.Meta.OmitHistoryUntil)
		}
		fmt.Fprintln(w)
		for _, a := range m.Meta.TaskActions {
			switch a.Kind {
			case conversation.TaskCreate:
				fmt.Fprintf(w, "  + task %s %q\n", a.ID, a.Name)
			case conversation.TaskEnter:
				fmt.Fprintf(w, "  > task %s\n", a.ID)
			case conversation.TaskExit:
				fmt.Fprintf(w, "  < task %s %q\n", a.ID, a.Summary)
			}
		}
		for _, line := range strings.Split(m.Text, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}
