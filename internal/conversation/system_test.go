package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSystemCommand(t *testing.T) {
	tests := []struct {
		raw  string
		want SystemCommand
	}{
		{raw: "task start --name foo", want: SystemCommand{Verb: VerbTaskStart, Name: "foo"}},
		{raw: "task start -n foo", want: SystemCommand{Verb: VerbTaskStart, Name: "foo"}},
		{raw: `task start --name "write the parser"`, want: SystemCommand{Verb: VerbTaskStart, Name: "write the parser"}},
		{raw: "  task   start --name='a b'  ", want: SystemCommand{Verb: VerbTaskStart, Name: "a b"}},
		{raw: `task done --summary "it works"`, want: SystemCommand{Verb: VerbTaskDone, Summary: "it works"}},
		{raw: `task done -s ""`, want: SystemCommand{Verb: VerbTaskDone, Summary: ""}},
		{raw: "nexos rebuild", want: SystemCommand{Verb: VerbRebuild}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSystemCommand(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSystemCommand_Errors(t *testing.T) {
	for _, raw := range []string{
		"",
		"task",
		"task start",
		"task start --name",
		"task start --name foo extra",
		"task done",
		"nexos",
		"nexos rebuild now",
		"launch rockets",
		`task start --name "unbalanced`,
		"task start --bogus x --name y",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseSystemCommand(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSystemSyntax)
		})
	}
}

func TestParseSystemCommand_IncompleteShowsUsage(t *testing.T) {
	_, err := ParseSystemCommand("task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
	assert.Contains(t, err.Error(), "done")
}

func TestParseSystemCommand_FreshStatePerCall(t *testing.T) {
	_, err := ParseSystemCommand("task start --name first")
	require.NoError(t, err)

	_, err = ParseSystemCommand("task start")
	assert.Error(t, err, "flag values must not leak between parses")
}
