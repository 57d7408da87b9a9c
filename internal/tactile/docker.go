package tactile

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/zaporter/jake/internal/logging"
)

// DockerExecutor executes commands inside throwaway docker containers.
// Each Execute is a fresh "docker run --rm", so nothing but the configured
// binds survives between commands.
type DockerExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// dockerPath is the path to the docker binary
	dockerPath string

	// available is true if Docker is available on this system
	available bool

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDockerExecutor creates a new Docker executor.
func NewDockerExecutor() *DockerExecutor {
	return NewDockerExecutorWithConfig(DefaultExecutorConfig())
}

// NewDockerExecutorWithConfig creates a new Docker executor with custom config.
func NewDockerExecutorWithConfig(config ExecutorConfig) *DockerExecutor {
	e := &DockerExecutor{config: config}
	e.detectDocker()
	return e
}

// detectDocker checks if Docker is available.
func (e *DockerExecutor) detectDocker() {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		logging.TactileDebug("docker binary not found: %v", err)
		return
	}
	e.dockerPath = dockerPath

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, dockerPath, "version", "--format", "{{.Server.Version}}")
	if err := cmd.Run(); err != nil {
		logging.TactileWarn("docker daemon not responding: %v", err)
		return
	}

	e.available = true
}

// IsAvailable returns whether Docker is available on this system.
func (e *DockerExecutor) IsAvailable() bool {
	return e.available
}

// SetAuditCallback sets the callback for audit events.
func (e *DockerExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DockerExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

// Capabilities returns what this executor supports.
func (e *DockerExecutor) Capabilities() ExecutorCapabilities {
	modes := []SandboxMode{}
	if e.available {
		modes = append(modes, SandboxDocker)
	}

	return ExecutorCapabilities{
		Name:                     "docker",
		Platform:                 runtime.GOOS,
		SupportedSandboxModes:    modes,
		SupportsNetworkIsolation: true,
		SupportsStdin:            true,
		SupportsBuild:            true,
		DefaultTimeout:           e.config.DefaultTimeout,
	}
}

// Validate checks if a command can be executed.
func (e *DockerExecutor) Validate(cmd Command) error {
	if !e.available {
		return fmt.Errorf("Docker is not available on this system")
	}
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.Sandbox != nil && cmd.Sandbox.Mode != SandboxDocker {
		return fmt.Errorf("DockerExecutor only supports SandboxDocker mode, got %s", cmd.Sandbox.Mode)
	}
	return nil
}

// Execute runs a command inside a Docker container.
func (e *DockerExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Docker command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	if cmd.Sandbox == nil {
		cmd.Sandbox = &SandboxConfig{Mode: SandboxDocker}
	}
	logging.Tactile("Executing in container: %s", cmd.CommandString())

	return runCaptured(ctx, runSpec{
		name:      "docker",
		binary:    e.dockerPath,
		args:      e.buildDockerArgs(cmd),
		cmd:       cmd,
		sandbox:   SandboxDocker,
		timeout:   e.config.timeoutFor(cmd),
		maxOutput: e.config.maxOutputFor(cmd),
		emit:      e.emitAudit,
	})
}

// Build runs "docker build" for image from dockerfile with contextDir as
// the build context, capturing its output like any other command.
func (e *DockerExecutor) Build(ctx context.Context, dockerfile, contextDir, image string) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Docker image build")
	defer timer.Stop()

	if !e.available {
		return nil, fmt.Errorf("Docker is not available on this system")
	}
	if image == "" {
		image = e.config.DockerDefaultImage
	}

	args := []string{"build", "-f", ExpandHome(dockerfile), "-t", image, ExpandHome(contextDir)}
	cmd := Command{Binary: e.dockerPath, Arguments: args, Sandbox: &SandboxConfig{Mode: SandboxNone}}
	logging.Tactile("Building image %s from %s", image, dockerfile)

	return runCaptured(ctx, runSpec{
		name:      "docker-build",
		binary:    e.dockerPath,
		args:      args,
		cmd:       cmd,
		sandbox:   SandboxNone,
		maxOutput: e.config.MaxOutputBytes,
		emit:      e.emitAudit,
	})
}

// buildDockerArgs constructs the docker run command arguments.
func (e *DockerExecutor) buildDockerArgs(cmd Command) []string {
	args := []string{"run", "--rm"}

	sandbox := cmd.Sandbox
	if sandbox == nil {
		sandbox = &SandboxConfig{}
	}

	image := sandbox.Image
	if image == "" {
		image = e.config.DockerDefaultImage
	}

	networkMode := sandbox.NetworkMode
	if networkMode == "" {
		networkMode = "none"
	}
	args = append(args, "--network", networkMode)

	if sandbox.User != "" {
		args = append(args, "--user", sandbox.User)
	}

	for _, bind := range sandbox.Binds {
		args = append(args, "-v", ResolveBind(bind))
	}

	// Container working directories must be absolute
	if filepath.IsAbs(cmd.WorkingDirectory) {
		args = append(args, "-w", cmd.WorkingDirectory)
	}

	for _, env := range cmd.Environment {
		args = append(args, "-e", env)
	}

	if cmd.Limits != nil {
		if cmd.Limits.MaxMemoryBytes > 0 {
			args = append(args, "--memory", strconv.FormatInt(cmd.Limits.MaxMemoryBytes, 10))
		}
		if cmd.Limits.MaxProcesses > 0 {
			args = append(args, "--pids-limit", strconv.Itoa(cmd.Limits.MaxProcesses))
		}
	}

	if cmd.Stdin != "" {
		args = append(args, "-i")
	}

	args = append(args, image, cmd.Binary)
	return append(args, cmd.Arguments...)
}
