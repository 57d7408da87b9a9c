package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zaporter/jake/internal/conversation"
	"github.com/zaporter/jake/internal/store"
	"github.com/zaporter/jake/internal/tactile"
)

var (
	// shared by add and edit
	msgText    string
	msgFile    string
	msgEdit    bool
	msgExclude bool
	msgInclude bool

	// add only
	msgUser  string
	msgIndex int
	msgEval  bool
)

// msgCmd groups message operations
var msgCmd = &cobra.Command{
	Use:   "msg",
	Short: "Add, edit, evaluate or remove messages",
}

var msgAddCmd = &cobra.Command{
	Use:   "add <conversation-id>",
	Short: "Add a message",
	Long: `Add a message to a conversation.

The body comes from --text, --file (use - for stdin) or --edit, which opens $EDITOR.
With --eval the message is evaluated right away and its follow-ups are appended.`,
	Args: cobra.ExactArgs(1),
	RunE: runMsgAdd,
}

var msgEditCmd = &cobra.Command{
	Use:   "edit <conversation-id> <message-id>",
	Short: "Replace a message body or change its training flag",
	Args:  cobra.ExactArgs(2),
	RunE:  runMsgEdit,
}

var msgEvalCmd = &cobra.Command{
	Use:   "eval <conversation-id> <message-id>",
	Short: "Evaluate the commands embedded in a message",
	Args:  cobra.ExactArgs(2),
	RunE:  runMsgEval,
}

var msgRmCmd = &cobra.Command{
	Use:   "rm <conversation-id> <message-id>",
	Short: "Remove a message",
	Args:  cobra.ExactArgs(2),
	RunE:  runMsgRm,
}

func init() {
	for _, c := range []*cobra.Command{msgAddCmd, msgEditCmd} {
		c.Flags().StringVarP(&msgText, "text", "t", "", "Message body")
		c.Flags().StringVarP(&msgFile, "file", "f", "", "Read the message body from a file (- for stdin)")
		c.Flags().BoolVarP(&msgEdit, "edit", "e", false, "Compose the message body in $EDITOR")
		c.Flags().BoolVar(&msgExclude, "exclude", false, "Exclude the message from training data")
		c.MarkFlagsMutuallyExclusive("text", "file", "edit")
	}
	msgEditCmd.Flags().BoolVar(&msgInclude, "include", false, "Include the message in training data again")
	msgEditCmd.MarkFlagsMutuallyExclusive("exclude", "include")

	msgAddCmd.Flags().StringVarP(&msgUser, "user", "u", "jake", "Author: jake, zack, docker, system or task_report:<creator>")
	msgAddCmd.Flags().IntVarP(&msgIndex, "index", "i", -1, "Insert at this position instead of appending")
	msgAddCmd.Flags().BoolVar(&msgEval, "eval", false, "Evaluate the message after adding it")

	msgCmd.AddCommand(msgAddCmd, msgEditCmd, msgEvalCmd, msgRmCmd)
}

func runMsgAdd(cmd *cobra.Command, args []string) error {
	user, err := conversation.ParseUser(msgUser)
	if err != nil {
		return err
	}
	body, _, err := readBody(cmd, "")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	var (
		id        string
		followUps []conversation.Message
	)
	backend := newBackend()
	err = updateConversation(cmd, convs, args[0], func(c *conversation.Conversation) error {
		r := newReducer(backend)

		add := conversation.AddMessage{User: user}
		pos := len(c.Messages)
		if msgIndex >= 0 {
			add.Index = &msgIndex
			pos = msgIndex
		}
		if err := r.Apply(ctx, c, add); err != nil {
			return err
		}

		msg := c.Messages[pos]
		msg.Text = body
		msg.Meta.ExcludeFromTraining = msgExclude
		id = msg.ID
		if err := r.Apply(ctx, c, conversation.MutateMessage{Message: msg}); err != nil {
			return err
		}

		if !msgEval {
			return nil
		}
		var evalErr error
		if followUps, evalErr = evalMessage(cmd, r, c, id); evalErr != nil {
			return evalErr
		}
		if !msgExclude {
			return nil
		}
		// Evaluation recomputes the metadata, so the flag goes back on afterwards.
		evaluated, _ := c.Message(id)
		evaluated.Meta.ExcludeFromTraining = true
		return r.Apply(ctx, c, conversation.MutateMessage{Message: evaluated})
	})
	if err != nil {
		return err
	}
	if msgEval {
		reportMetrics(backend, args[0])
	}

	logger.Info("message added", zap.String("conversation", args[0]), zap.String("message", id))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	printFollowUps(cmd.OutOrStdout(), followUps)
	return nil
}

func runMsgEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	// Compose outside the write transaction; the editor can stay open a while.
	current, err := getConversation(cmd, convs, args[0])
	if err != nil {
		return err
	}
	id, err := resolveMessageID(current, args[1])
	if err != nil {
		return err
	}
	old, _ := current.Message(id)
	body, changed, err := readBody(cmd, old.Text)
	if err != nil {
		return err
	}

	err = updateConversation(cmd, convs, args[0], func(c *conversation.Conversation) error {
		msg, ok := c.Message(id)
		if !ok {
			return fmt.Errorf("%w: %s", conversation.ErrMessageNotFound, id)
		}
		if changed {
			msg.Text = body
		}
		switch {
		case msgExclude:
			msg.Meta.ExcludeFromTraining = true
		case msgInclude:
			msg.Meta.ExcludeFromTraining = false
		}
		return newReducer(newBackend()).Apply(ctx, c, conversation.MutateMessage{Message: msg})
	})
	if err != nil {
		return err
	}

	logger.Info("message updated", zap.String("conversation", args[0]), zap.String("message", id))
	fmt.Fprintf(cmd.OutOrStdout(), "Updated message %s\n", id)
	return nil
}

func runMsgEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	var followUps []conversation.Message
	backend := newBackend()
	err = updateConversation(cmd, convs, args[0], func(c *conversation.Conversation) error {
		id, err := resolveMessageID(c, args[1])
		if err != nil {
			return err
		}
		followUps, err = evalMessage(cmd, newReducer(backend), c, id)
		return err
	})
	if err != nil {
		return err
	}
	reportMetrics(backend, args[0])

	printFollowUps(cmd.OutOrStdout(), followUps)
	return nil
}

func runMsgRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	var id string
	err = updateConversation(cmd, convs, args[0], func(c *conversation.Conversation) error {
		var resolveErr error
		if id, resolveErr = resolveMessageID(c, args[1]); resolveErr != nil {
			return resolveErr
		}
		return newReducer(newBackend()).Apply(ctx, c, conversation.DeleteMessage{ID: id})
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed message %s\n", id)
	return nil
}

// evalMessage evaluates the message with id and returns the follow-ups it
// spliced in after it. Executions are attributed to the conversation.
func evalMessage(cmd *cobra.Command, r *conversation.Reducer, c *conversation.Conversation, id string) ([]conversation.Message, error) {
	before := len(c.Messages)
	ctx := tactile.WithSessionID(cmd.Context(), c.ID)
	if err := r.Apply(ctx, c, conversation.EvalMessage{ID: id}); err != nil {
		return nil, err
	}
	i := c.Index(id)
	n := len(c.Messages) - before
	return c.Messages[i+1 : i+1+n], nil
}

func printFollowUps(w io.Writer, msgs []conversation.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "\n%s (%s):\n%s\n", m.User, m.ID, strings.TrimRight(m.Text, "\n"))
	}
}

// readBody returns the message body selected by the flags. changed is
// false when no body flag was given, in which case current is returned.
func readBody(cmd *cobra.Command, current string) (string, bool, error) {
	switch {
	case cmd.Flags().Changed("text"):
		return msgText, true, nil
	case msgFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", false, fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), true, nil
	case msgFile != "":
		data, err := os.ReadFile(msgFile)
		if err != nil {
			return "", false, fmt.Errorf("failed to read message file: %w", err)
		}
		return string(data), true, nil
	case msgEdit:
		body, err := editText(current)
		return body, err == nil, err
	}
	return current, false, nil
}

func getConversation(cmd *cobra.Command, convs *store.Conversations, id string) (*conversation.Conversation, error) {
	c, err := convs.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	return c, nil
}

func updateConversation(cmd *cobra.Command, convs *store.Conversations, id string, fn func(*conversation.Conversation) error) error {
	err := convs.Update(cmd.Context(), id, fn)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("conversation %s not found", id)
	}
	return err
}

// resolveMessageID accepts a full message id or an unambiguous prefix.
func resolveMessageID(c *conversation.Conversation, ref string) (string, error) {
	if c.Index(ref) >= 0 {
		return ref, nil
	}
	var match string
	for _, m := range c.Messages {
		if !strings.HasPrefix(m.ID, ref) {
			continue
		}
		if match != "" && match != m.ID {
			return "", fmt.Errorf("message prefix %q is ambiguous", ref)
		}
		match = m.ID
	}
	if ref == "" || match == "" {
		return "", fmt.Errorf("%w: %s", conversation.ErrMessageNotFound, ref)
	}
	return match, nil
}
