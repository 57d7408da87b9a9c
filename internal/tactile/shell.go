package tactile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zaporter/jake/internal/config"
	"github.com/zaporter/jake/internal/logging"
)

// ErrRebuildUnsupported is returned by Shell.Rebuild when no image builder
// is configured.
var ErrRebuildUnsupported = errors.New("rebuild requires the docker sandbox")

// Shell runs command bodies through "<shell> -c" on an Executor and
// rebuilds the sandbox image on request. It is the backend the
// conversation evaluator talks to.
type Shell struct {
	executor Executor
	builder  ImageBuilder
	audit    *AuditLogger
	shell    string

	dockerfile   string
	buildContext string
	image        string
}

// ShellOption customizes a Shell.
type ShellOption func(*Shell)

// WithImageBuilder enables Rebuild using builder.
func WithImageBuilder(builder ImageBuilder, dockerfile, buildContext, image string) ShellOption {
	return func(s *Shell) {
		s.builder = builder
		s.dockerfile = dockerfile
		s.buildContext = buildContext
		s.image = image
	}
}

// WithAuditLogger exposes the metrics of audit through Shell.Metrics.
func WithAuditLogger(audit *AuditLogger) ShellOption {
	return func(s *Shell) { s.audit = audit }
}

type sessionKey struct{}

// WithSessionID attributes commands run with ctx to session, usually a
// conversation id.
func WithSessionID(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionIDFrom returns the session set by WithSessionID.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// NewShell returns a Shell that interprets commands with shell.
func NewShell(executor Executor, shell string, opts ...ShellOption) *Shell {
	s := &Shell{executor: executor, shell: shell}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewShellFromConfig wires the executor stack described by the execution
// configuration. Docker sandboxes also get an image builder for rebuilds.
func NewShellFromConfig(ec config.ExecutionConfig, timeout time.Duration, audit *AuditLogger) (*Shell, error) {
	factory := NewExecutorFactory(ExecutorConfigFrom(ec, timeout))

	executor, err := factory.CreateFromConfig(SandboxMode(ec.Sandbox))
	if err != nil {
		return nil, err
	}

	var opts []ShellOption
	if docker, ok := executor.(*DockerExecutor); ok {
		opts = append(opts, WithImageBuilder(docker, ec.Dockerfile, ec.BuildContext, ec.Image))
	}
	if audit != nil {
		executor = NewAuditedExecutor(executor, audit)
		opts = append(opts, WithAuditLogger(audit))
	}

	logging.Boot("Execution backend: sandbox=%s shell=%s", ec.Sandbox, ec.Shell)
	return NewShell(executor, ec.Shell, opts...), nil
}

// Execute runs body and returns its captured output lines. A command that
// exits non-zero is not an error; failing to run it at all is.
func (s *Shell) Execute(ctx context.Context, body string) ([]OutputLine, error) {
	result, err := s.executor.Execute(ctx, Command{
		Binary:    s.shell,
		Arguments: []string{"-c", body},
		SessionID: SessionIDFrom(ctx),
	})
	return s.finish(body, result, err)
}

// Rebuild rebuilds the sandbox image and returns the build output.
func (s *Shell) Rebuild(ctx context.Context) ([]OutputLine, error) {
	if s.builder == nil {
		return nil, ErrRebuildUnsupported
	}
	result, err := s.builder.Build(ctx, s.dockerfile, s.buildContext, s.image)
	return s.finish("docker build "+s.image, result, err)
}

// Metrics returns the execution metrics when the shell was built with an
// audit logger.
func (s *Shell) Metrics() (ExecutionMetricsSnapshot, bool) {
	if s.audit == nil {
		return ExecutionMetricsSnapshot{}, false
	}
	return s.audit.GetMetrics(), true
}

func (s *Shell) finish(label string, result *ExecutionResult, err error) ([]OutputLine, error) {
	audit := logging.Audit()
	if err != nil {
		audit.CommandRun(label, -1, 0, err)
		return nil, err
	}
	if result.IsError() {
		err := fmt.Errorf("running %q: %s", label, result.Error)
		audit.CommandRun(label, result.ExitCode, result.Duration, err)
		return result.Lines, err
	}
	if result.Killed {
		logging.TactileWarn("Command %q killed: %s", label, result.KillReason)
	}
	audit.CommandRun(label, result.ExitCode, result.Duration, nil)
	return result.Lines, nil
}
