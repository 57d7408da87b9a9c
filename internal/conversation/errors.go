package conversation

import "errors"

// Structural errors fail the enclosing reducer action and leave the
// conversation untouched.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrIndexOutOfRange = errors.New("insert index out of range")
	ErrUnknownTask     = errors.New("task action references unknown task")
	ErrNoOpenTask      = errors.New("no tasks to exit")
)

// ErrExecution wraps backend failures. The evaluation that hit it commits nothing.
var ErrExecution = errors.New("execution backend failed")

// ErrSystemSyntax marks a system command that does not match the grammar.
// The evaluator turns it into a visible diagnostic message.
var ErrSystemSyntax = errors.New("invalid system command")
