package conversation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/zaporter/jake/internal/logging"
)

// Action is one of AddMessage, MutateMessage, EvalMessage or DeleteMessage.
type Action interface {
	actionName() string
	target() string
}

// AddMessage inserts a fresh empty message for User at Index, or appends
// when Index is nil.
type AddMessage struct {
	Index *int
	User  User
}

// MutateMessage replaces the message with the same id wholesale.
type MutateMessage struct {
	Message Message
}

// EvalMessage evaluates the message with ID and splices its follow-ups in
// right after it.
type EvalMessage struct {
	ID string
}

// DeleteMessage removes every message with ID. Absent ids are a no-op.
type DeleteMessage struct {
	ID string
}

func (AddMessage) actionName() string    { return "add" }
func (MutateMessage) actionName() string { return "mutate" }
func (EvalMessage) actionName() string   { return "eval" }
func (DeleteMessage) actionName() string { return "delete" }

func (AddMessage) target() string      { return "" }
func (a MutateMessage) target() string { return a.Message.ID }
func (a EvalMessage) target() string   { return a.ID }
func (a DeleteMessage) target() string { return a.ID }

// Reducer applies actions to a conversation. It assumes exclusive access
// to the conversation for the duration of one Apply.
type Reducer struct {
	evaluator *Evaluator
}

// NewReducer returns a reducer that evaluates messages with evaluator.
func NewReducer(evaluator *Evaluator) *Reducer {
	return &Reducer{evaluator: evaluator}
}

// Apply mutates conv according to action. On error conv is unchanged.
func (r *Reducer) Apply(ctx context.Context, conv *Conversation, action Action) error {
	start := time.Now()
	err := r.apply(ctx, conv, action)

	audit := logging.AuditWithConversation(conv.ID)
	audit.ActionApplied(action.actionName(), action.target(), err)
	if err != nil {
		logging.ConversationWarn("Action %s on %q failed after %s: %v", action.actionName(), action.target(), time.Since(start), err)
		return err
	}
	logging.ConversationDebug("Action %s on %q applied, %d message(s)", action.actionName(), action.target(), len(conv.Messages))
	return nil
}

func (r *Reducer) apply(ctx context.Context, conv *Conversation, action Action) error {
	switch a := action.(type) {
	case AddMessage:
		msg := r.evaluator.NewMessage(a.User)
		if a.Index == nil {
			conv.Messages = append(conv.Messages, msg)
			return nil
		}
		if *a.Index < 0 || *a.Index > len(conv.Messages) {
			return fmt.Errorf("%w: %d not in [0, %d]", ErrIndexOutOfRange, *a.Index, len(conv.Messages))
		}
		conv.Messages = slices.Insert(conv.Messages, *a.Index, msg)
		return nil

	case MutateMessage:
		i := conv.Index(a.Message.ID)
		if i < 0 {
			return fmt.Errorf("%w: mutate %s", ErrMessageNotFound, a.Message.ID)
		}
		conv.Messages[i] = a.Message
		return nil

	case EvalMessage:
		i := conv.Index(a.ID)
		if i < 0 {
			return fmt.Errorf("%w: eval %s", ErrMessageNotFound, a.ID)
		}
		start := time.Now()
		msg := conv.Messages[i]
		meta, followUps, err := r.evaluator.Evaluate(ctx, msg, conv)
		logging.AuditWithConversation(conv.ID).Evaluation(a.ID, len(ExtractCommands(msg.Text)), len(followUps), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("evaluate message %s: %w", a.ID, err)
		}
		msg.Meta = meta
		conv.Messages[i] = msg
		conv.Messages = slices.Insert(conv.Messages, i+1, followUps...)
		return nil

	case DeleteMessage:
		conv.Messages = slices.DeleteFunc(conv.Messages, func(m Message) bool {
			return m.ID == a.ID
		})
		return nil
	}

	return fmt.Errorf("unsupported action %T", action)
}
