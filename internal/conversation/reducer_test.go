package conversation

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReducer(backend Backend) *Reducer {
	return NewReducer(newTestEvaluator(backend))
}

func ids(conv *Conversation) []string {
	out := make([]string, len(conv.Messages))
	for i, m := range conv.Messages {
		out[i] = m.ID
	}
	return out
}

func TestReducer_AddMessage(t *testing.T) {
	r := newTestReducer(&fakeBackend{})
	conv := &Conversation{}
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, conv, AddMessage{User: Jake()}))
	require.NoError(t, r.Apply(ctx, conv, AddMessage{User: Zack()}))

	zero := 0
	require.NoError(t, r.Apply(ctx, conv, AddMessage{Index: &zero, User: System()}))

	assert.Equal(t, []string{"id-3", "id-1", "id-2"}, ids(conv))
	assert.True(t, conv.Messages[0].User.Equal(System()))
	assert.Empty(t, conv.Messages[0].Text)
	assert.Equal(t, fixedTime, conv.Messages[0].Time)

	end := len(conv.Messages)
	require.NoError(t, r.Apply(ctx, conv, AddMessage{Index: &end, User: Docker()}))
	assert.Equal(t, "id-4", conv.Messages[3].ID)
}

func TestReducer_AddMessageOutOfRange(t *testing.T) {
	r := newTestReducer(&fakeBackend{})
	conv := &Conversation{}

	for _, idx := range []int{-1, 1} {
		i := idx
		err := r.Apply(context.Background(), conv, AddMessage{Index: &i, User: Jake()})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	assert.Empty(t, conv.Messages)
}

func TestReducer_MutateMessage(t *testing.T) {
	r := newTestReducer(&fakeBackend{})
	conv := &Conversation{Messages: []Message{{ID: "m1", User: Jake()}}}

	edited := Message{ID: "m1", User: Jake(), Text: "hello", Meta: Metadata{ExcludeFromTraining: true}}
	require.NoError(t, r.Apply(context.Background(), conv, MutateMessage{Message: edited}))
	assert.Equal(t, edited, conv.Messages[0])

	err := r.Apply(context.Background(), conv, MutateMessage{Message: Message{ID: "nope"}})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReducer_EvalSplicesFollowUps(t *testing.T) {
	r := newTestReducer(&fakeBackend{})
	conv := &Conversation{Messages: []Message{
		{ID: "m1", User: Jake(), Text: "[<a>] [<b>]"},
		{ID: "m2", User: Zack(), Text: "later"},
	}}

	require.NoError(t, r.Apply(context.Background(), conv, EvalMessage{ID: "m1"}))
	assert.Equal(t, []string{"m1", "id-1", "id-2", "m2"}, ids(conv))
	assert.Equal(t, "ran: a\nwarn\n", conv.Messages[1].Text)
	assert.Equal(t, "ran: b\nwarn\n", conv.Messages[2].Text)

	// Evaluating again appends another round of follow-ups.
	require.NoError(t, r.Apply(context.Background(), conv, EvalMessage{ID: "m1"}))
	assert.Len(t, conv.Messages, 6)
}

func TestReducer_EvalWritesMetadata(t *testing.T) {
	r := newTestReducer(&fakeBackend{})
	conv := &Conversation{Messages: []Message{
		{ID: "m1", User: Jake(), Text: "[(task start --name foo)]"},
	}}

	require.NoError(t, r.Apply(context.Background(), conv, EvalMessage{ID: "m1"}))
	assert.Equal(t, []TaskAction{CreateTask("id-1", "foo"), EnterTask("id-1")}, conv.Messages[0].Meta.TaskActions)

	stack, err := conv.TaskStack("", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, stackNames(stack))
}

func TestReducer_FailedEvalLeavesConversationUnchanged(t *testing.T) {
	r := newTestReducer(&fakeBackend{failOn: "bad"})
	conv := &Conversation{Messages: []Message{
		{ID: "m1", User: Jake(), Text: "[(task start -n x)] [<bad>]",
			Meta: Metadata{OmitHistoryUntil: "m0"}},
	}}
	before := conv.Clone()

	err := r.Apply(context.Background(), conv, EvalMessage{ID: "m1"})
	require.ErrorIs(t, err, ErrExecution)
	if diff := cmp.Diff(before, conv); diff != "" {
		t.Errorf("conversation changed (-before +after):\n%s", diff)
	}

	err = r.Apply(context.Background(), conv, EvalMessage{ID: "missing"})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReducer_DeleteMessage(t *testing.T) {
	r := newTestReducer(&fakeBackend{})
	conv := &Conversation{Messages: []Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}}

	require.NoError(t, r.Apply(context.Background(), conv, DeleteMessage{ID: "m2"}))
	assert.Equal(t, []string{"m1", "m3"}, ids(conv))

	require.NoError(t, r.Apply(context.Background(), conv, DeleteMessage{ID: "absent"}))
	assert.Equal(t, []string{"m1", "m3"}, ids(conv))
}

func TestConversationClone(t *testing.T) {
	conv := &Conversation{ID: "c", Messages: []Message{msgWithActions("m1", CreateTask("a", "A"))}}
	clone := conv.Clone()

	clone.Messages[0].Meta.TaskActions[0].Name = "changed"
	clone.Messages = append(clone.Messages, Message{ID: "m2"})

	assert.Equal(t, "A", conv.Messages[0].Meta.TaskActions[0].Name)
	assert.Len(t, conv.Messages, 1)
}
