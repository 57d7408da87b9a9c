package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zaporter/jake/internal/logging"
	"github.com/zaporter/jake/internal/tactile"
)

// Backend runs execution commands and rebuilds the execution environment.
// Both calls block until output is fully captured.
type Backend interface {
	Execute(ctx context.Context, command string) ([]tactile.OutputLine, error)
	Rebuild(ctx context.Context) ([]tactile.OutputLine, error)
}

// Evaluator turns the commands embedded in a message into metadata and
// follow-up messages.
type Evaluator struct {
	backend Backend
	newID   func() string
	now     func() time.Time
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithIDGenerator replaces uuid generation for task and message ids.
func WithIDGenerator(fn func() string) EvaluatorOption {
	return func(e *Evaluator) { e.newID = fn }
}

// WithClock replaces the clock used to stamp follow-up messages.
func WithClock(fn func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = fn }
}

// NewEvaluator returns an evaluator backed by backend.
func NewEvaluator(backend Backend, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		backend: backend,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewMessage returns an empty message with an id and time from the
// evaluator's generators.
func (e *Evaluator) NewMessage(user User) Message {
	return Message{ID: e.newID(), Time: e.now(), User: user}
}

func (e *Evaluator) newMessageWithText(user User, text string) Message {
	m := e.NewMessage(user)
	m.Text = text
	return m
}

// Evaluate computes fresh metadata for msg and the follow-up messages its
// commands produce, in command order. Neither msg nor conv is modified;
// conv is only read for task stack queries.
//
// Malformed system commands become Docker-authored diagnostic messages.
// Backend failures and task log inconsistencies abort the evaluation and
// nothing of it should be committed.
func (e *Evaluator) Evaluate(ctx context.Context, msg Message, conv *Conversation) (Metadata, []Message, error) {
	timer := logging.StartTimer(logging.CategoryConversation, "Evaluate")
	defer timer.Stop()

	commands := ExtractCommands(msg.Text)
	logging.ConversationDebug("Evaluating message %s: %d command(s)", msg.ID, len(commands))

	var (
		meta      Metadata
		followUps []Message
	)
	for _, cmd := range commands {
		switch cmd.Kind {
		case CommandExecution:
			lines, err := e.backend.Execute(ctx, cmd.Body)
			if err != nil {
				return Metadata{}, nil, fmt.Errorf("%w: command %q in message %s: %w", ErrExecution, cmd.Body, msg.ID, err)
			}
			followUps = append(followUps, e.newMessageWithText(Docker(), joinOutput(lines)))

		case CommandSystem:
			out, err := e.system(ctx, cmd.Body, msg, conv, &meta)
			if errors.Is(err, ErrSystemSyntax) {
				logging.ConversationDebug("System command %q rejected: %v", cmd.Body, err)
				followUps = append(followUps, e.newMessageWithText(Docker(), err.Error()))
				continue
			}
			if err != nil {
				return Metadata{}, nil, err
			}
			followUps = append(followUps, out)
		}
	}

	return meta, followUps, nil
}

// system interprets one system command, appending task actions to meta.
func (e *Evaluator) system(ctx context.Context, raw string, msg Message, conv *Conversation, meta *Metadata) (Message, error) {
	sc, err := ParseSystemCommand(raw)
	if err != nil {
		return Message{}, err
	}

	switch sc.Verb {
	case VerbTaskStart:
		id := e.newID()
		meta.TaskActions = append(meta.TaskActions, CreateTask(id, sc.Name), EnterTask(id))
		return e.newMessageWithText(System(), fmt.Sprintf("Task \"%s\" started", sc.Name)), nil

	case VerbTaskDone:
		stack, err := conv.TaskStack(msg.ID, false)
		if err != nil {
			return Message{}, err
		}
		if len(stack) == 0 {
			return Message{}, fmt.Errorf("%w: message %s", ErrNoOpenTask, msg.ID)
		}
		top := stack[len(stack)-1]
		meta.TaskActions = append(meta.TaskActions, ExitTask(top.ID, sc.Summary))

		report := e.newMessageWithText(TaskReport(Jake()),
			fmt.Sprintf("Task \"%s\" finished with summary \"%s\"", top.Name, sc.Summary))
		report.Meta.OmitHistoryUntil = top.MsgStartID
		return report, nil

	case VerbRebuild:
		lines, err := e.backend.Rebuild(ctx)
		if err != nil {
			return Message{}, fmt.Errorf("%w: command %q in message %s: %w", ErrExecution, raw, msg.ID, err)
		}
		return e.newMessageWithText(Docker(), joinOutput(lines)), nil
	}

	return Message{}, fmt.Errorf("%w: unhandled verb in %q", ErrSystemSyntax, raw)
}

// joinOutput concatenates captured lines in capture order. Each line
// carries its own terminator.
func joinOutput(lines []tactile.OutputLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
	}
	return b.String()
}
