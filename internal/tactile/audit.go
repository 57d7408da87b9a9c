package tactile

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/zaporter/jake/internal/logging"
)

// AuditLogger fans execution events out to callbacks and keeps aggregate
// metrics. Every event is also written to the tactile log category.
type AuditLogger struct {
	mu sync.RWMutex

	// callbacks are functions to call for each event
	callbacks []func(AuditEvent)

	// metrics tracks execution statistics
	metrics *ExecutionMetrics
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{
		callbacks: make([]func(AuditEvent), 0),
		metrics:   NewExecutionMetrics(),
	}
}

// AddCallback adds a callback function for audit events.
func (l *AuditLogger) AddCallback(callback func(AuditEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// Log logs an audit event.
func (l *AuditLogger) Log(event AuditEvent) {
	l.mu.RLock()
	callbacks := l.callbacks
	metrics := l.metrics
	l.mu.RUnlock()

	if metrics != nil {
		metrics.RecordEvent(event)
	}

	switch event.Type {
	case AuditEventStart:
		logging.TactileDebug("[%s] start: %s", event.ExecutorName, event.Command.CommandString())
	case AuditEventComplete:
		if event.Result != nil {
			logging.TactileDebug("[%s] complete: exit=%d lines=%d duration=%s",
				event.ExecutorName, event.Result.ExitCode, len(event.Result.Lines), event.Result.Duration)
		}
	case AuditEventKilled:
		if event.Result != nil {
			logging.TactileWarn("[%s] killed: %s", event.ExecutorName, event.Result.KillReason)
		}
	case AuditEventError:
		if event.Result != nil {
			logging.TactileError("[%s] error: %s", event.ExecutorName, event.Result.Error)
		}
	}

	for _, cb := range callbacks {
		cb(event)
	}
}

// GetMetrics returns the current execution metrics.
func (l *AuditLogger) GetMetrics() ExecutionMetricsSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.metrics == nil {
		return ExecutionMetricsSnapshot{}
	}
	return l.metrics.Snapshot()
}

// ExecutionMetrics accumulates audit events. Counters are keyed by binary
// and by session, which the shell backend sets to the conversation id.
type ExecutionMetrics struct {
	mu   sync.Mutex
	snap ExecutionMetricsSnapshot
}

// NewExecutionMetrics creates an empty metrics tracker.
func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{snap: ExecutionMetricsSnapshot{
		ByBinary:  make(map[string]int64),
		BySession: make(map[string]int64),
	}}
}

// RecordEvent folds one audit event into the totals.
func (m *ExecutionMetrics) RecordEvent(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.snap
	s.LastEvent = event.Timestamp

	switch event.Type {
	case AuditEventStart:
		s.Runs++
		s.ByBinary[event.Command.Binary]++
		if event.SessionID != "" {
			s.BySession[event.SessionID]++
		}
		return
	case AuditEventError:
		s.Failed++
		return
	}

	r := event.Result
	if r == nil {
		return
	}
	s.Duration += r.Duration
	if event.Type == AuditEventKilled {
		s.Killed++
		return
	}

	// AuditEventComplete
	switch {
	case !r.Success:
		s.Failed++
	case r.ExitCode != 0:
		s.NonZero++
	default:
		s.Succeeded++
	}
	s.TruncatedBytes += r.TruncatedBytes
	if u := r.ResourceUsage; u != nil {
		s.CPUTime += time.Duration(u.TotalCPUTimeMs()) * time.Millisecond
		s.MaxRSSBytes = max(s.MaxRSSBytes, u.MaxRSSBytes)
	}
}

// Snapshot returns a copy that is safe to read while recording continues.
func (m *ExecutionMetrics) Snapshot() ExecutionMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snap
	out.ByBinary = maps.Clone(m.snap.ByBinary)
	out.BySession = maps.Clone(m.snap.BySession)
	return out
}

// ExecutionMetricsSnapshot is a point-in-time view of ExecutionMetrics.
type ExecutionMetricsSnapshot struct {
	Runs      int64 `json:"runs"`
	Succeeded int64 `json:"succeeded"`
	NonZero   int64 `json:"non_zero"`
	Failed    int64 `json:"failed"`
	Killed    int64 `json:"killed"`

	Duration       time.Duration `json:"duration"`
	CPUTime        time.Duration `json:"cpu_time"`
	MaxRSSBytes    int64         `json:"max_rss_bytes"`
	TruncatedBytes int64         `json:"truncated_bytes"`

	ByBinary  map[string]int64 `json:"by_binary"`
	BySession map[string]int64 `json:"by_session"`
	LastEvent time.Time        `json:"last_event"`
}

// Finished counts runs that reached an outcome.
func (s ExecutionMetricsSnapshot) Finished() int64 {
	return s.Succeeded + s.NonZero + s.Failed + s.Killed
}

// SuccessRate is the share of finished runs that exited zero.
func (s ExecutionMetricsSnapshot) SuccessRate() float64 {
	if n := s.Finished(); n > 0 {
		return float64(s.Succeeded) / float64(n)
	}
	return 0
}

// AuditedExecutorWrapper routes the audit events of an executor into an
// AuditLogger.
type AuditedExecutorWrapper struct {
	executor Executor
}

// NewAuditedExecutor wraps an executor with audit logging.
func NewAuditedExecutor(executor Executor, logger *AuditLogger) *AuditedExecutorWrapper {
	if audited, ok := executor.(AuditedExecutorInterface); ok {
		audited.SetAuditCallback(logger.Log)
	}
	return &AuditedExecutorWrapper{executor: executor}
}

// Execute runs a command and logs the execution.
func (w *AuditedExecutorWrapper) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	return w.executor.Execute(ctx, cmd)
}

// Capabilities returns the wrapped executor's capabilities.
func (w *AuditedExecutorWrapper) Capabilities() ExecutorCapabilities {
	return w.executor.Capabilities()
}

// Validate validates a command.
func (w *AuditedExecutorWrapper) Validate(cmd Command) error {
	return w.executor.Validate(cmd)
}
