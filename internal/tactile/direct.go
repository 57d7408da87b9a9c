package tactile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/zaporter/jake/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
// This is the simplest executor with no sandboxing.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectExecutor{config: config}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

// Capabilities returns what this executor supports.
func (e *DirectExecutor) Capabilities() ExecutorCapabilities {
	return ExecutorCapabilities{
		Name:                  "direct",
		Platform:              runtime.GOOS,
		SupportedSandboxModes: []SandboxMode{SandboxNone},
		SupportsStdin:         true,
		DefaultTimeout:        e.config.DefaultTimeout,
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.Sandbox != nil && cmd.Sandbox.Mode != SandboxNone && cmd.Sandbox.Mode != "" {
		return fmt.Errorf("DirectExecutor only supports SandboxNone, got %s", cmd.Sandbox.Mode)
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Direct command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		logging.TactileWarn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	logging.Tactile("Executing command: %s", cmd.CommandString())

	return runCaptured(ctx, runSpec{
		name:      "direct",
		binary:    cmd.Binary,
		args:      cmd.Arguments,
		dir:       cmd.WorkingDirectory,
		env:       buildEnvironment(e.config.AllowedEnvironment, cmd.Environment),
		cmd:       cmd,
		sandbox:   SandboxNone,
		timeout:   e.config.timeoutFor(cmd),
		maxOutput: e.config.maxOutputFor(cmd),
		usage:     e.config.EnableResourceUsage,
		emit:      e.emitAudit,
	})
}

// runSpec describes one process launch shared by the executors.
type runSpec struct {
	name      string
	binary    string
	args      []string
	dir       string
	env       []string
	cmd       Command
	sandbox   SandboxMode
	timeout   time.Duration
	maxOutput int64
	usage     bool
	emit      func(AuditEvent)
}

// runCaptured starts the process, captures ordered output lines and maps
// the outcome onto an ExecutionResult. Infrastructure failures are reported
// through result.Error with a nil error, as callers inspect Success.
func runCaptured(ctx context.Context, spec runSpec) (*ExecutionResult, error) {
	cmd := spec.cmd
	result := &ExecutionResult{
		ExitCode:    -1,
		SandboxUsed: spec.sandbox,
		Command:     &cmd,
	}

	spec.emit(AuditEvent{
		Type:         AuditEventStart,
		Timestamp:    time.Now(),
		Command:      cmd,
		SessionID:    cmd.SessionID,
		ExecutorName: spec.name,
	})

	execCtx := ctx
	if spec.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, spec.timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, spec.binary, spec.args...)
	execCmd.Dir = spec.dir
	execCmd.Env = spec.env
	setupProcessGroup(execCmd)

	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	capture := newLineCapture(spec.maxOutput)
	execCmd.Stdout = capture.writer(StreamStdout)
	execCmd.Stderr = capture.writer(StreamStderr)

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Lines = capture.finish()

	if capture.truncated {
		result.Truncated = true
		result.TruncatedBytes = capture.discarded
		logging.TactileWarn("Command output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0

	case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", spec.timeout)
		result.Success = true // Infrastructure worked, command was killed
		logging.TactileWarn("Command killed (timeout): %s after %s", spec.binary, spec.timeout)
		spec.emit(AuditEvent{Type: AuditEventKilled, Timestamp: time.Now(), Command: cmd, Result: result, SessionID: cmd.SessionID, ExecutorName: spec.name})
		return result, nil

	case ctx.Err() != nil:
		result.Killed = true
		result.KillReason = "context canceled"
		result.Error = ctx.Err().Error()
		logging.TactileDebug("Command canceled: %s", spec.binary)
		spec.emit(AuditEvent{Type: AuditEventKilled, Timestamp: time.Now(), Command: cmd, Result: result, SessionID: cmd.SessionID, ExecutorName: spec.name})
		return result, nil

	case errors.As(err, &exitErr):
		result.Success = true // Command ran, just returned non-zero
		result.ExitCode = exitErr.ExitCode()
		logging.TactileDebug("Command exited non-zero: %s -> %d", spec.binary, result.ExitCode)

	default:
		result.Error = err.Error()
		logging.TactileError("Command failed: %s - %v", spec.binary, err)
		spec.emit(AuditEvent{Type: AuditEventError, Timestamp: time.Now(), Command: cmd, Result: result, SessionID: cmd.SessionID, ExecutorName: spec.name})
		return result, nil
	}

	if spec.usage {
		result.ResourceUsage = getProcessResourceUsage(execCmd)
	}

	spec.emit(AuditEvent{
		Type:         AuditEventComplete,
		Timestamp:    time.Now(),
		Command:      cmd,
		Result:       result,
		SessionID:    cmd.SessionID,
		ExecutorName: spec.name,
	})

	logging.Tactile("Command completed: %s -> exit=%d, duration=%s, lines=%d",
		spec.binary, result.ExitCode, result.Duration, len(result.Lines))

	return result, nil
}

// buildEnvironment creates the environment variable list.
func buildEnvironment(allowed, cmdEnv []string) []string {
	env := make([]string, 0, len(allowed)+len(cmdEnv))
	for _, key := range allowed {
		if val := os.Getenv(key); val != "" {
			env = append(env, fmt.Sprintf("%s=%s", key, val))
		}
	}
	return append(env, cmdEnv...)
}
