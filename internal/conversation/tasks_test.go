package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgWithActions(id string, actions ...TaskAction) Message {
	return Message{ID: id, User: Jake(), Meta: Metadata{TaskActions: actions}}
}

func stackNames(stack []TaskInfo) []string {
	names := make([]string, 0, len(stack))
	for _, t := range stack {
		names = append(names, t.Name)
	}
	return names
}

func nestedConversation() *Conversation {
	return &Conversation{Messages: []Message{
		msgWithActions("m1", CreateTask("a", "A"), EnterTask("a")),
		msgWithActions("m2", CreateTask("b", "B"), EnterTask("b")),
		msgWithActions("m3", ExitTask("b", "done")),
		msgWithActions("m4"),
	}}
}

func TestTaskStack(t *testing.T) {
	conv := nestedConversation()

	stack, err := conv.TaskStack("m4", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, stackNames(stack))

	stack, err = conv.TaskStack("m2", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, stackNames(stack))

	stack, err = conv.TaskStack("m2", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, stackNames(stack))

	stack, err = conv.TaskStack("m1", false)
	require.NoError(t, err)
	assert.Empty(t, stack)
}

func TestTaskStack_UnknownCutSeesEverything(t *testing.T) {
	stack, err := nestedConversation().TaskStack("missing", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, stackNames(stack))
}

func TestTasksTill(t *testing.T) {
	tasks, err := nestedConversation().TasksTill("m3", true)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	b := tasks["b"]
	assert.True(t, b.Done)
	require.NotNil(t, b.Summary)
	assert.Equal(t, "done", *b.Summary)
	assert.Equal(t, "m2", b.MsgStartID)
	assert.Equal(t, "m3", b.MsgEndID)

	a := tasks["a"]
	assert.False(t, a.Done)
	assert.Nil(t, a.Summary)
	assert.Empty(t, a.MsgEndID)
}

func TestTaskStack_ExitBeforeCreateInLog(t *testing.T) {
	// Creates are collected before exits are applied, so log order between
	// the two does not matter.
	conv := &Conversation{Messages: []Message{
		msgWithActions("m1", ExitTask("a", "early")),
		msgWithActions("m2", CreateTask("a", "A"), EnterTask("a")),
	}}

	stack, err := conv.TaskStack("", false)
	require.NoError(t, err)
	assert.Empty(t, stack)
}

func TestTaskStack_UnknownExit(t *testing.T) {
	conv := &Conversation{Messages: []Message{
		msgWithActions("m1", ExitTask("ghost", "boo")),
	}}

	_, err := conv.TaskStack("m1", true)
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "m1")
}

func TestTaskStack_UnknownEnter(t *testing.T) {
	conv := &Conversation{Messages: []Message{
		msgWithActions("m1", EnterTask("ghost")),
	}}

	_, err := conv.TasksTill("m1", true)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestTaskStack_ReentryIsNotDuplicated(t *testing.T) {
	conv := &Conversation{Messages: []Message{
		msgWithActions("m1", CreateTask("a", "A"), EnterTask("a")),
		msgWithActions("m2", CreateTask("b", "B"), EnterTask("b")),
		msgWithActions("m3", EnterTask("a")),
	}}

	stack, err := conv.TaskStack("m3", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, stackNames(stack))
}

func TestMessagesTill(t *testing.T) {
	conv := nestedConversation()

	assert.Len(t, conv.MessagesTill("m2", false), 1)
	assert.Len(t, conv.MessagesTill("m2", true), 2)
	assert.Len(t, conv.MessagesTill("nope", false), 4)
}
