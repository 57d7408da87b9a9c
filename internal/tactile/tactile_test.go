package tactile

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaporter/jake/internal/config"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func shCommand(script string) Command {
	return Command{Binary: "sh", Arguments: []string{"-c", script}}
}

func TestDirectExecutor_Execute(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	result, err := executor.Execute(context.Background(), Command{Binary: "echo", Arguments: []string{"hello"}})
	require.NoError(t, err)

	assert.True(t, result.Success, result.Error)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, []OutputLine{{Stream: StreamStdout, Text: "hello\n"}}, result.Lines)
	assert.Equal(t, SandboxNone, result.SandboxUsed)
}

func TestDirectExecutor_Timeout(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	cmd := Command{
		Binary:    "sleep",
		Arguments: []string{"10"},
		Limits:    &ResourceLimits{TimeoutMs: 300},
	}

	start := time.Now()
	result, err := executor.Execute(context.Background(), cmd)
	require.NoError(t, err)

	assert.True(t, result.Killed)
	assert.Contains(t, result.KillReason, "timeout")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestDirectExecutor_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	result, err := executor.Execute(context.Background(), shCommand("echo nope >&2; exit 3"))
	require.NoError(t, err)

	assert.True(t, result.Success, "non-zero exit is not an infrastructure failure")
	assert.True(t, result.IsNonZeroExit())
	assert.False(t, result.IsError())
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "nope\n", result.StreamOutput(StreamStderr))
}

func TestDirectExecutor_InvalidCommand(t *testing.T) {
	executor := NewDirectExecutor()

	result, err := executor.Execute(context.Background(), Command{Binary: "jake-no-such-binary-xyz"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.IsError())
	assert.NotEmpty(t, result.Error)
}

func TestDirectExecutor_WorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0644))

	cmd := shCommand("ls")
	cmd.WorkingDirectory = dir

	result, err := NewDirectExecutor().Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Contains(t, result.Output(), "marker.txt")
}

func TestDirectExecutor_OutputLines(t *testing.T) {
	skipOnWindows(t)

	result, err := NewDirectExecutor().Execute(context.Background(), shCommand("printf 'a\\nb\\nc'; echo err >&2"))
	require.NoError(t, err)

	assert.Equal(t, "a\nb\nc", result.StreamOutput(StreamStdout), "unterminated last line is kept")
	assert.Equal(t, "err\n", result.StreamOutput(StreamStderr))
	assert.Len(t, result.Lines, 4)
}

func TestDirectExecutor_InvalidUTF8(t *testing.T) {
	skipOnWindows(t)

	result, err := NewDirectExecutor().Execute(context.Background(), shCommand("printf 'ok\\377\\n'"))
	require.NoError(t, err)
	assert.Equal(t, "ok\uFFFD\n", result.Output())
}

func TestDirectExecutor_OutputTruncation(t *testing.T) {
	skipOnWindows(t)
	cfg := DefaultExecutorConfig()
	cfg.MaxOutputBytes = 8

	result, err := NewDirectExecutorWithConfig(cfg).Execute(context.Background(), shCommand("echo 0123456789abcdef"))
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, int64(9), result.TruncatedBytes)
	assert.Equal(t, "01234567", result.Output())
}

func TestDirectExecutor_ContextCancellation(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	result, err := NewDirectExecutor().Execute(ctx, Command{Binary: "sleep", Arguments: []string{"10"}})
	require.NoError(t, err)

	assert.True(t, result.Killed)
	assert.True(t, result.IsError(), "caller cancellation is surfaced as an error")
}

func TestDirectExecutor_Stdin(t *testing.T) {
	skipOnWindows(t)
	cmd := Command{Binary: "cat", Stdin: "piped\n"}

	result, err := NewDirectExecutor().Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "piped\n", result.Output())
}

func TestDirectExecutor_Validate(t *testing.T) {
	executor := NewDirectExecutor()

	assert.Error(t, executor.Validate(Command{}))
	assert.NoError(t, executor.Validate(Command{Binary: "echo"}))
	assert.Error(t, executor.Validate(Command{Binary: "echo", Sandbox: &SandboxConfig{Mode: SandboxDocker}}))

	caps := executor.Capabilities()
	assert.Equal(t, "direct", caps.Name)
	assert.Equal(t, []SandboxMode{SandboxNone}, caps.SupportedSandboxModes)
}

func TestDirectExecutor_AuditCallback(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	var mu sync.Mutex
	var types []AuditEventType
	executor.SetAuditCallback(func(e AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	})

	_, err := executor.Execute(context.Background(), Command{Binary: "true"})
	require.NoError(t, err)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventComplete}, types)
}

func TestCommand_CommandString(t *testing.T) {
	assert.Equal(t, "ls", Command{Binary: "ls"}.CommandString())
	assert.Equal(t, "zsh -c echo hi", Command{Binary: "zsh", Arguments: []string{"-c", "echo hi"}}.CommandString())
}

func TestExecutionResult_Helpers(t *testing.T) {
	r := &ExecutionResult{
		Success: true,
		Lines: []OutputLine{
			{Stream: StreamStdout, Text: "one\n"},
			{Stream: StreamStderr, Text: "two\n"},
			{Stream: StreamStdout, Text: "three"},
		},
	}
	assert.Equal(t, "one\ntwo\nthree", r.Output())
	assert.Equal(t, "one\nthree", r.StreamOutput(StreamStdout))
	assert.False(t, r.IsError())

	r.Error = "boom"
	assert.True(t, r.IsError())

	ru := &ResourceUsage{UserTimeMs: 3, SystemTimeMs: 4}
	assert.Equal(t, int64(7), ru.TotalCPUTimeMs())
}

func TestExecutorConfig_Merge(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.DefaultWorkingDir = "/work"
	cfg.DefaultSandbox = &SandboxConfig{Mode: SandboxDocker, Binds: []string{"a:/b"}}

	merged := cfg.Merge(Command{Binary: "ls"})
	assert.Equal(t, "/work", merged.WorkingDirectory)
	require.NotNil(t, merged.Sandbox)
	assert.Equal(t, SandboxDocker, merged.Sandbox.Mode)

	merged.Sandbox.Binds[0] = "changed"
	assert.Equal(t, "a:/b", cfg.DefaultSandbox.Binds[0], "merge copies binds")

	kept := cfg.Merge(Command{Binary: "ls", WorkingDirectory: "/other"})
	assert.Equal(t, "/other", kept.WorkingDirectory)
}

func TestDockerExecutor_BuildArgs(t *testing.T) {
	e := &DockerExecutor{config: DefaultExecutorConfig()}

	cmd := Command{
		Binary:           "zsh",
		Arguments:        []string{"-c", "ls"},
		WorkingDirectory: "/home/jake",
		Environment:      []string{"A=1"},
		Limits:           &ResourceLimits{MaxMemoryBytes: 1024, MaxProcesses: 10},
		Sandbox: &SandboxConfig{
			Mode:        SandboxDocker,
			Binds:       []string{"/data:/data:ro"},
			NetworkMode: "bridge",
		},
	}

	assert.Equal(t, []string{
		"run", "--rm",
		"--network", "bridge",
		"-v", "/data:/data:ro",
		"-w", "/home/jake",
		"-e", "A=1",
		"--memory", "1024",
		"--pids-limit", "10",
		"nexos:latest", "zsh", "-c", "ls",
	}, e.buildDockerArgs(cmd))

	// Relative working directories stay on the host side.
	cmd.WorkingDirectory = "."
	assert.NotContains(t, e.buildDockerArgs(cmd), "-w")
}

func TestResolveBind(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wd, "nexos/persist")+":/home/jake", ResolveBind("nexos/persist:/home/jake"))
	assert.Equal(t, filepath.Join(home, "x")+":/x", ResolveBind("~/x:/x"))
	assert.Equal(t, "named:/data", ResolveBind("named:/data"))
	assert.Equal(t, "/abs:/data:ro", ResolveBind("/abs:/data:ro"))
	assert.Equal(t, "novolume", ResolveBind("novolume"))
}

func TestAuditLogger_Metrics(t *testing.T) {
	skipOnWindows(t)
	logger := NewAuditLogger()

	var events []AuditEvent
	logger.AddCallback(func(e AuditEvent) { events = append(events, e) })

	wrapped := NewAuditedExecutor(NewDirectExecutor(), logger)
	_, err := wrapped.Execute(context.Background(), Command{Binary: "true", SessionID: "conv-1"})
	require.NoError(t, err)
	_, err = wrapped.Execute(context.Background(), shCommand("exit 1"))
	require.NoError(t, err)

	snap := logger.GetMetrics()
	assert.Equal(t, int64(2), snap.Runs)
	assert.Equal(t, int64(1), snap.Succeeded)
	assert.Equal(t, int64(1), snap.NonZero)
	assert.Equal(t, int64(2), snap.Finished())
	assert.Equal(t, map[string]int64{"conv-1": 1}, snap.BySession)
	assert.Equal(t, int64(1), snap.ByBinary["true"])
	assert.InDelta(t, 0.5, snap.SuccessRate(), 0.001)
	assert.Len(t, events, 4)

	// Snapshots do not alias the live counters.
	snap.BySession["conv-1"] = 99
	assert.Equal(t, int64(1), logger.GetMetrics().BySession["conv-1"])
}

func TestExecutionMetrics_KilledAndFailed(t *testing.T) {
	m := NewExecutionMetrics()
	m.RecordEvent(AuditEvent{Type: AuditEventStart, Command: Command{Binary: "sleep"}})
	m.RecordEvent(AuditEvent{Type: AuditEventKilled, Result: &ExecutionResult{Killed: true, Duration: time.Second}})
	m.RecordEvent(AuditEvent{Type: AuditEventStart, Command: Command{Binary: "nope"}})
	m.RecordEvent(AuditEvent{Type: AuditEventError, Result: &ExecutionResult{Error: "not found"}})

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Runs)
	assert.Equal(t, int64(1), snap.Killed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, time.Second, snap.Duration)
	assert.Zero(t, snap.SuccessRate())
	assert.Empty(t, snap.BySession)
}

func TestExecutorFactory(t *testing.T) {
	factory := NewExecutorFactory(DefaultExecutorConfig())

	exec, err := factory.CreateFromConfig(SandboxNone)
	require.NoError(t, err)
	assert.IsType(t, &DirectExecutor{}, exec)

	exec, err = factory.CreateFromConfig("")
	require.NoError(t, err)
	assert.IsType(t, &DirectExecutor{}, exec)

	_, err = factory.CreateFromConfig("firejail")
	assert.Error(t, err)
}

func TestExecutorConfigFrom(t *testing.T) {
	ec := config.DefaultConfig().Execution

	cfg := ExecutorConfigFrom(ec, 5*time.Second)
	assert.Equal(t, 5*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, "nexos:latest", cfg.DockerDefaultImage)
	require.NotNil(t, cfg.DefaultSandbox)
	assert.Equal(t, SandboxDocker, cfg.DefaultSandbox.Mode)
	assert.Equal(t, ec.Binds, cfg.DefaultSandbox.Binds)
	assert.Equal(t, "bridge", cfg.DefaultSandbox.NetworkMode)

	ec.Sandbox = "none"
	cfg = ExecutorConfigFrom(ec, 0)
	assert.Equal(t, SandboxNone, cfg.DefaultSandbox.Mode)
	assert.Empty(t, cfg.DefaultSandbox.Binds)
}

func TestShell_Execute(t *testing.T) {
	skipOnWindows(t)
	shell := NewShell(NewDirectExecutor(), "sh")

	lines, err := shell.Execute(context.Background(), "echo one; echo two")
	require.NoError(t, err)
	assert.Equal(t, []OutputLine{
		{Stream: StreamStdout, Text: "one\n"},
		{Stream: StreamStdout, Text: "two\n"},
	}, lines)

	lines, err = shell.Execute(context.Background(), "exit 7")
	require.NoError(t, err, "non-zero exit is output, not failure")
	assert.Empty(t, lines)
}

func TestShell_SessionMetrics(t *testing.T) {
	skipOnWindows(t)
	ec := config.DefaultConfig().Execution
	ec.Sandbox = "none"
	ec.Shell = "sh"

	shell, err := NewShellFromConfig(ec, 0, NewAuditLogger())
	require.NoError(t, err)

	ctx := WithSessionID(context.Background(), "conv-7")
	_, err = shell.Execute(ctx, "echo a")
	require.NoError(t, err)
	_, err = shell.Execute(ctx, "exit 3")
	require.NoError(t, err)
	_, err = shell.Execute(context.Background(), "true")
	require.NoError(t, err)

	snap, ok := shell.Metrics()
	require.True(t, ok)
	assert.Equal(t, int64(3), snap.Runs)
	assert.Equal(t, int64(1), snap.NonZero)
	assert.Equal(t, map[string]int64{"conv-7": 2}, snap.BySession)
	assert.Equal(t, int64(3), snap.ByBinary["sh"])

	_, err = shell.Rebuild(context.Background())
	assert.ErrorIs(t, err, ErrRebuildUnsupported, "direct sandbox has no image builder")
}

func TestShell_MetricsWithoutAudit(t *testing.T) {
	shell := NewShell(NewDirectExecutor(), "sh")
	_, ok := shell.Metrics()
	assert.False(t, ok)
	assert.Empty(t, SessionIDFrom(context.Background()))
}

func TestShell_ExecuteInfrastructureFailure(t *testing.T) {
	shell := NewShell(NewDirectExecutor(), "jake-no-such-shell")

	_, err := shell.Execute(context.Background(), "echo hi")
	assert.Error(t, err)
}

func TestShell_RebuildWithoutBuilder(t *testing.T) {
	shell := NewShell(NewDirectExecutor(), "sh")

	_, err := shell.Rebuild(context.Background())
	assert.ErrorIs(t, err, ErrRebuildUnsupported)
}

type fakeBuilder struct {
	dockerfile, contextDir, image string
}

func (f *fakeBuilder) Build(_ context.Context, dockerfile, contextDir, image string) (*ExecutionResult, error) {
	f.dockerfile, f.contextDir, f.image = dockerfile, contextDir, image
	return &ExecutionResult{
		Success: true,
		Lines:   []OutputLine{{Stream: StreamStdout, Text: "Successfully built\n"}},
	}, nil
}

func TestShell_Rebuild(t *testing.T) {
	builder := &fakeBuilder{}
	shell := NewShell(NewDirectExecutor(), "sh", WithImageBuilder(builder, "~/System/Dockerfile.txt", "~/System", "nexos:latest"))

	lines, err := shell.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Successfully built\n", lines[0].Text)
	assert.Equal(t, "~/System/Dockerfile.txt", builder.dockerfile)
	assert.Equal(t, "nexos:latest", builder.image)
}

func TestLineCapture_InterleavedPartials(t *testing.T) {
	c := newLineCapture(0)
	out, errw := c.writer(StreamStdout), c.writer(StreamStderr)

	_, _ = out.Write([]byte("par"))
	_, _ = errw.Write([]byte("e1\n"))
	_, _ = out.Write([]byte("tial\nnext"))

	lines := c.finish()
	assert.Equal(t, []OutputLine{
		{Stream: StreamStderr, Text: "e1\n"},
		{Stream: StreamStdout, Text: "partial\n"},
		{Stream: StreamStdout, Text: "next"},
	}, lines)
}
