// Package tactile is the execution layer that runs shell commands for the
// conversation engine, either on the host or inside a docker container,
// and captures their output line by line in the order it was produced.
//
// Design Principles:
//   - Minimal logic: what to run is decided by the conversation, not here
//   - Sandboxing: direct host execution or a throwaway docker container
//   - Structured output: ordered stdout/stderr lines plus exit status
//   - Audit trail: every execution emits start/complete/killed/error events
package tactile

import (
	"strings"
	"time"
)

// SandboxMode defines the isolation level for command execution.
type SandboxMode string

const (
	// SandboxNone runs commands directly on the host.
	SandboxNone SandboxMode = "none"

	// SandboxDocker runs commands in a throwaway docker container.
	SandboxDocker SandboxMode = "docker"
)

// Stream identifies which pipe produced an output line.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// OutputLine is one captured line. Text keeps its trailing newline, so
// concatenating the Text of every line reproduces the captured output.
type OutputLine struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// Command represents a command to be executed.
// This is the input specification for all executor types.
type Command struct {
	// Binary is the executable to run (e.g., "zsh", "docker").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	// These are merged with the executor's allowed environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Limits specifies resource constraints for execution.
	Limits *ResourceLimits `json:"limits,omitempty"`

	// Sandbox specifies isolation settings.
	Sandbox *SandboxConfig `json:"sandbox,omitempty"`

	// SessionID links this execution to a conversation (for audit).
	SessionID string `json:"session_id,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ResourceLimits defines constraints on command execution.
type ResourceLimits struct {
	// TimeoutMs is the maximum execution time in milliseconds.
	// Zero means no timeout: the caller's context decides.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxMemoryBytes limits memory usage (docker only).
	MaxMemoryBytes int64 `json:"max_memory_bytes,omitempty"`

	// MaxOutputBytes limits captured stdout+stderr size.
	// Zero means use the executor's default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`

	// MaxProcesses limits the number of processes (docker only).
	MaxProcesses int `json:"max_processes,omitempty"`
}

// SandboxConfig specifies isolation settings for command execution.
type SandboxConfig struct {
	// Mode is the sandboxing strategy.
	Mode SandboxMode `json:"mode"`

	// Image is the docker image to use.
	Image string `json:"image,omitempty"`

	// Binds are volume binds in host:container[:mode] form.
	Binds []string `json:"binds,omitempty"`

	// NetworkMode for docker: "none", "host", "bridge".
	NetworkMode string `json:"network_mode,omitempty"`

	// User runs the command as this user (user:group format).
	User string `json:"user,omitempty"`
}

// ExecutionResult is the comprehensive output of command execution.
type ExecutionResult struct {
	// Success indicates whether the execution infrastructure worked.
	// A command that runs but returns non-zero exit code has Success=true.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	// Lines holds stdout and stderr lines interleaved in capture order.
	Lines []OutputLine `json:"lines"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when execution completed.
	FinishedAt time.Time `json:"finished_at"`

	// Killed indicates the command was forcibly terminated.
	Killed bool `json:"killed"`

	// KillReason explains why the command was killed.
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was truncated due to size limits.
	Truncated bool `json:"truncated"`

	// TruncatedBytes is how many bytes were discarded.
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// ResourceUsage contains resource consumption metrics (if available).
	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`

	// SandboxUsed indicates which sandbox mode was actually used.
	SandboxUsed SandboxMode `json:"sandbox_used"`

	// Command is a copy of the command that was executed (for audit).
	Command *Command `json:"command,omitempty"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output concatenates every captured line in order.
func (r *ExecutionResult) Output() string {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteString(l.Text)
	}
	return b.String()
}

// StreamOutput concatenates the lines of one stream.
func (r *ExecutionResult) StreamOutput(s Stream) string {
	var b strings.Builder
	for _, l := range r.Lines {
		if l.Stream == s {
			b.WriteString(l.Text)
		}
	}
	return b.String()
}

// ResourceUsage contains metrics about resource consumption.
type ResourceUsage struct {
	UserTimeMs   int64 `json:"user_time_ms"`
	SystemTimeMs int64 `json:"system_time_ms"`
	MaxRSSBytes  int64 `json:"max_rss_bytes"`
}

// TotalCPUTimeMs returns total CPU time (user + system).
func (r *ResourceUsage) TotalCPUTimeMs() int64 {
	return r.UserTimeMs + r.SystemTimeMs
}

// ExecutorCapabilities describes what an executor can do.
type ExecutorCapabilities struct {
	Name                     string        `json:"name"`
	Platform                 string        `json:"platform"`
	SupportedSandboxModes    []SandboxMode `json:"supported_sandbox_modes"`
	SupportsNetworkIsolation bool          `json:"supports_network_isolation"`
	SupportsStdin            bool          `json:"supports_stdin"`
	SupportsBuild            bool          `json:"supports_build"`
	DefaultTimeout           time.Duration `json:"default_timeout"`
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent represents an execution event.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	ExecutorName string           `json:"executor_name"`
}

// ExecutorConfig is the configuration for creating executors.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified. Zero waits forever.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// AllowedEnvironment lists environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// DefaultSandbox is applied when Command.Sandbox is nil.
	DefaultSandbox *SandboxConfig `json:"default_sandbox,omitempty"`

	// MaxOutputBytes caps output capture (default 10MB).
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// DockerDefaultImage is used for docker sandbox when no image specified.
	DockerDefaultImage string `json:"docker_default_image,omitempty"`

	// EnableResourceUsage enables collection of resource metrics.
	EnableResourceUsage bool `json:"enable_resource_usage"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:   ".",
		MaxOutputBytes:      10 * 1024 * 1024, // 10MB
		AllowedEnvironment:  []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TERM"},
		DockerDefaultImage:  "nexos:latest",
		EnableResourceUsage: true,
	}
}

// Merge combines this config with command-specific settings.
// Command settings override config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd

	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}

	if result.Sandbox == nil && c.DefaultSandbox != nil {
		sandboxCopy := *c.DefaultSandbox
		sandboxCopy.Binds = append([]string(nil), c.DefaultSandbox.Binds...)
		result.Sandbox = &sandboxCopy
	}

	return result
}

// timeoutFor returns the effective timeout for cmd. Zero means none.
func (c ExecutorConfig) timeoutFor(cmd Command) time.Duration {
	if cmd.Limits != nil && cmd.Limits.TimeoutMs > 0 {
		return time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond
	}
	return c.DefaultTimeout
}

// maxOutputFor returns the effective output cap for cmd.
func (c ExecutorConfig) maxOutputFor(cmd Command) int64 {
	if cmd.Limits != nil && cmd.Limits.MaxOutputBytes > 0 {
		return cmd.Limits.MaxOutputBytes
	}
	return c.MaxOutputBytes
}
