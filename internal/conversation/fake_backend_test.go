package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/zaporter/jake/internal/tactile"
)

// fakeBackend echoes commands back as output and can be told to fail.
type fakeBackend struct {
	executed []string
	rebuilds int
	failOn   string
}

func (f *fakeBackend) Execute(_ context.Context, command string) ([]tactile.OutputLine, error) {
	f.executed = append(f.executed, command)
	if command == f.failOn {
		return nil, fmt.Errorf("backend exploded")
	}
	return []tactile.OutputLine{
		{Stream: tactile.StreamStdout, Text: "ran: " + command + "\n"},
		{Stream: tactile.StreamStderr, Text: "warn\n"},
	}, nil
}

func (f *fakeBackend) Rebuild(context.Context) ([]tactile.OutputLine, error) {
	f.rebuilds++
	if f.failOn == "rebuild" {
		return nil, fmt.Errorf("build failed")
	}
	return []tactile.OutputLine{{Stream: tactile.StreamStdout, Text: "built\n"}}, nil
}

// sequentialIDs yields id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEvaluator(backend Backend) *Evaluator {
	return NewEvaluator(backend,
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return fixedTime }),
	)
}
