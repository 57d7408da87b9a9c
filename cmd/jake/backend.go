package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zaporter/jake/internal/conversation"
	"github.com/zaporter/jake/internal/tactile"
)

// lazyBackend builds the execution backend on first use so that commands
// which never evaluate a message do not probe for docker.
type lazyBackend struct {
	once  sync.Once
	shell *tactile.Shell
	err   error
}

func (b *lazyBackend) init() error {
	b.once.Do(func() {
		b.shell, b.err = tactile.NewShellFromConfig(cfg.Execution, cfg.GetExecutionTimeout(), tactile.NewAuditLogger())
	})
	return b.err
}

func (b *lazyBackend) Execute(ctx context.Context, command string) ([]tactile.OutputLine, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	return b.shell.Execute(ctx, command)
}

func (b *lazyBackend) Rebuild(ctx context.Context) ([]tactile.OutputLine, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	return b.shell.Rebuild(ctx)
}

// Metrics reports nothing until the shell has been built.
func (b *lazyBackend) Metrics() (tactile.ExecutionMetricsSnapshot, bool) {
	if b.shell == nil {
		return tactile.ExecutionMetricsSnapshot{}, false
	}
	return b.shell.Metrics()
}

// metricsSource is implemented by backends that keep execution metrics.
type metricsSource interface {
	Metrics() (tactile.ExecutionMetricsSnapshot, bool)
}

// newBackend is swapped out by tests.
var newBackend = func() conversation.Backend {
	return &lazyBackend{}
}

func newReducer(backend conversation.Backend) *conversation.Reducer {
	return conversation.NewReducer(conversation.NewEvaluator(backend))
}

// reportMetrics logs what the backend ran for the conversation.
func reportMetrics(backend conversation.Backend, convID string) {
	src, ok := backend.(metricsSource)
	if !ok {
		return
	}
	snap, ok := src.Metrics()
	if !ok {
		return
	}
	logger.Debug("execution metrics",
		zap.String("conversation", convID),
		zap.Int64("runs", snap.Runs),
		zap.Int64("conversation_runs", snap.BySession[convID]),
		zap.Int64("non_zero", snap.NonZero),
		zap.Int64("failed", snap.Failed),
		zap.Int64("killed", snap.Killed),
		zap.Duration("total", snap.Duration),
		zap.Int64("truncated_bytes", snap.TruncatedBytes))
}
