package conversation

import (
	"time"

	"github.com/google/uuid"
)

// TaskActionKind enumerates the task log entries.
type TaskActionKind string

const (
	TaskCreate TaskActionKind = "create"
	TaskEnter  TaskActionKind = "enter"
	TaskExit   TaskActionKind = "exit"
)

// TaskAction is one immutable entry of the task log. Name is set for
// creates, Summary for exits.
type TaskAction struct {
	Kind    TaskActionKind `json:"kind"`
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

func CreateTask(id, name string) TaskAction {
	return TaskAction{Kind: TaskCreate, ID: id, Name: name}
}

func EnterTask(id string) TaskAction {
	return TaskAction{Kind: TaskEnter, ID: id}
}

func ExitTask(id, summary string) TaskAction {
	return TaskAction{Kind: TaskExit, ID: id, Summary: summary}
}

// Metadata is recomputed wholesale every time its message is evaluated.
type Metadata struct {
	TaskActions []TaskAction `json:"task_actions,omitempty"`

	// OmitHistoryUntil collapses earlier history in training examples up to
	// (not including) the message with this id. Empty means no window.
	OmitHistoryUntil string `json:"omit_history_until,omitempty"`

	ExcludeFromTraining bool `json:"exclude_from_training,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	User User      `json:"user"`
	Text string    `json:"msg"`
	Meta Metadata  `json:"meta"`
}

// NewMessage returns an empty message authored by user.
func NewMessage(user User) Message {
	return Message{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		User: user,
	}
}

// NewMessageWithText returns a message authored by user with body text.
func NewMessageWithText(user User, text string) Message {
	m := NewMessage(user)
	m.Text = text
	return m
}

// Conversation is an ordered log of messages. Insertion order is the
// timeline; ids are unique within one conversation.
type Conversation struct {
	ID       string    `json:"id,omitempty"`
	Messages []Message `json:"messages"`
	Time     time.Time `json:"time"`
}

// New returns an empty, not yet persisted conversation.
func New() *Conversation {
	return &Conversation{Time: time.Now().UTC()}
}

// Index returns the position of the message with id, or -1.
func (c *Conversation) Index(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Message returns the message with id.
func (c *Conversation) Message(id string) (Message, bool) {
	i := c.Index(id)
	if i < 0 {
		return Message{}, false
	}
	return c.Messages[i], true
}

// Clone returns a copy whose message slice can be modified independently.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Meta.TaskActions != nil {
			m.Meta.TaskActions = append([]TaskAction(nil), m.Meta.TaskActions...)
		}
		out.Messages[i] = m
	}
	return &out
}
