package tactile

import (
	"fmt"
	"slices"
	"time"

	"github.com/zaporter/jake/internal/config"
)

// ExecutorFactory builds the executor for a sandbox mode from one shared
// configuration.
type ExecutorFactory struct {
	config ExecutorConfig
}

// NewExecutorFactory creates a new executor factory.
func NewExecutorFactory(config ExecutorConfig) *ExecutorFactory {
	return &ExecutorFactory{config: config}
}

// CreateDirect creates a direct executor (no sandboxing).
func (f *ExecutorFactory) CreateDirect() *DirectExecutor {
	return NewDirectExecutorWithConfig(f.config)
}

// CreateDocker creates a Docker executor if available.
func (f *ExecutorFactory) CreateDocker() (*DockerExecutor, error) {
	docker := NewDockerExecutorWithConfig(f.config)
	if !docker.IsAvailable() {
		return nil, fmt.Errorf("Docker is not available on this system")
	}
	return docker, nil
}

// CreateFromConfig returns the executor for sandboxMode. The empty mode
// means none.
func (f *ExecutorFactory) CreateFromConfig(sandboxMode SandboxMode) (Executor, error) {
	switch sandboxMode {
	case SandboxNone, "":
		return f.CreateDirect(), nil

	case SandboxDocker:
		return f.CreateDocker()

	default:
		return nil, fmt.Errorf("unknown sandbox mode: %s", sandboxMode)
	}
}

// ExecutorConfigFrom translates the execution section of the jake
// configuration into executor defaults.
func ExecutorConfigFrom(ec config.ExecutionConfig, timeout time.Duration) ExecutorConfig {
	cfg := DefaultExecutorConfig()
	if ec.WorkingDirectory != "" {
		cfg.DefaultWorkingDir = ExpandHome(ec.WorkingDirectory)
	}
	cfg.DefaultTimeout = timeout
	if len(ec.AllowedEnvVars) > 0 {
		cfg.AllowedEnvironment = slices.Clone(ec.AllowedEnvVars)
	}
	if ec.MaxOutputBytes > 0 {
		cfg.MaxOutputBytes = ec.MaxOutputBytes
	}
	if ec.Image != "" {
		cfg.DockerDefaultImage = ec.Image
	}

	mode := SandboxMode(ec.Sandbox)
	if mode == "" {
		mode = SandboxNone
	}
	cfg.DefaultSandbox = &SandboxConfig{Mode: mode}
	if mode == SandboxDocker {
		cfg.DefaultSandbox.Image = ec.Image
		cfg.DefaultSandbox.Binds = slices.Clone(ec.Binds)
		cfg.DefaultSandbox.NetworkMode = ec.NetworkMode
	}
	return cfg
}
