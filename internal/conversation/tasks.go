package conversation

import "fmt"

// TaskInfo is a task as derived from the action log at some cut point.
// It is never persisted.
type TaskInfo struct {
	ID         string
	Name       string
	Done       bool
	Summary    *string
	MsgStartID string // message carrying the Create
	MsgEndID   string // message carrying the Exit, empty while open
}

// MessagesTill returns the messages visible at the cut: everything before
// the message with id, plus that message when inclusive. An id that is not
// in the conversation leaves the whole log visible.
func (c *Conversation) MessagesTill(id string, inclusive bool) []Message {
	i := c.Index(id)
	if i < 0 {
		return c.Messages
	}
	if inclusive {
		return c.Messages[:i+1]
	}
	return c.Messages[:i]
}

// TasksTill returns every task created in the visible prefix, keyed by id.
func (c *Conversation) TasksTill(id string, inclusive bool) (map[string]TaskInfo, error) {
	tasks, _, err := deriveTasks(c.MessagesTill(id, inclusive))
	return tasks, err
}

// TaskStack returns the open tasks at the cut, oldest entered first.
func (c *Conversation) TaskStack(id string, inclusive bool) ([]TaskInfo, error) {
	tasks, order, err := deriveTasks(c.MessagesTill(id, inclusive))
	if err != nil {
		return nil, err
	}
	stack := make([]TaskInfo, 0, len(order))
	for _, taskID := range order {
		stack = append(stack, tasks[taskID])
	}
	return stack, nil
}

// deriveTasks replays the task log in three passes: creates, then exits,
// then enters. A task entered again while already on the stack is not
// pushed twice.
func deriveTasks(msgs []Message) (map[string]TaskInfo, []string, error) {
	tasks := make(map[string]TaskInfo)

	for _, m := range msgs {
		for _, a := range m.Meta.TaskActions {
			if a.Kind != TaskCreate {
				continue
			}
			tasks[a.ID] = TaskInfo{ID: a.ID, Name: a.Name, MsgStartID: m.ID}
		}
	}

	for _, m := range msgs {
		for _, a := range m.Meta.TaskActions {
			if a.Kind != TaskExit {
				continue
			}
			t, ok := tasks[a.ID]
			if !ok {
				return nil, nil, fmt.Errorf("%w: exit of %s in message %s", ErrUnknownTask, a.ID, m.ID)
			}
			summary := a.Summary
			t.Done = true
			t.Summary = &summary
			t.MsgEndID = m.ID
			tasks[a.ID] = t
		}
	}

	var stack []string
	onStack := make(map[string]bool)
	for _, m := range msgs {
		for _, a := range m.Meta.TaskActions {
			if a.Kind != TaskEnter {
				continue
			}
			t, ok := tasks[a.ID]
			if !ok {
				return nil, nil, fmt.Errorf("%w: enter of %s in message %s", ErrUnknownTask, a.ID, m.ID)
			}
			if t.Done || onStack[a.ID] {
				continue
			}
			onStack[a.ID] = true
			stack = append(stack, a.ID)
		}
	}

	return tasks, stack, nil
}
