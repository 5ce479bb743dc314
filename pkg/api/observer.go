package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the process engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay process execution.
type Observer interface {
	// OnProcessStart is called once when a process instance is first
	// started (Start), before the first step is executed.
	OnProcessStart(ctx context.Context, inst *ProcessInstance)

	// OnProcessSuspended is called when an instance parks awaiting
	// interaction.
	OnProcessSuspended(ctx context.Context, inst *ProcessInstance)

	// OnProcessCompleted is called when an instance successfully reaches
	// StatusCompleted.
	OnProcessCompleted(ctx context.Context, inst *ProcessInstance)

	// OnProcessFailed is called when an instance transitions to
	// StatusFailed.
	OnProcessFailed(ctx context.Context, inst *ProcessInstance, err error)

	// OnStepStart is called before invoking a step function.
	// stepIndex is the 0-based index into ProcessDefinition.Steps.
	OnStepStart(ctx context.Context, inst *ProcessInstance, stepName string, stepIndex int)

	// OnStepCompleted is called after a step function returns, for both
	// successes and failures (err != nil). Suspension does not count as
	// completion.
	OnStepCompleted(ctx context.Context, inst *ProcessInstance, stepName string, stepIndex int, err error, duration time.Duration)

	// OnStepRolledBack is called after a step's RollbackFunc returns,
	// for both successes and failures.
	OnStepRolledBack(ctx context.Context, inst *ProcessInstance, stepName string, stepIndex int, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnProcessStart(ctx context.Context, inst *ProcessInstance)               {}
func (NoopObserver) OnProcessSuspended(ctx context.Context, inst *ProcessInstance)           {}
func (NoopObserver) OnProcessCompleted(ctx context.Context, inst *ProcessInstance)           {}
func (NoopObserver) OnProcessFailed(ctx context.Context, inst *ProcessInstance, err error)   {}
func (NoopObserver) OnStepStart(ctx context.Context, inst *ProcessInstance, s string, i int) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, inst *ProcessInstance, s string, i int, err error, d time.Duration) {
}
func (NoopObserver) OnStepRolledBack(ctx context.Context, inst *ProcessInstance, s string, i int, err error) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnProcessStart(ctx context.Context, inst *ProcessInstance) {
	for _, o := range c.observers {
		o.OnProcessStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnProcessSuspended(ctx context.Context, inst *ProcessInstance) {
	for _, o := range c.observers {
		o.OnProcessSuspended(ctx, inst)
	}
}

func (c *CompositeObserver) OnProcessCompleted(ctx context.Context, inst *ProcessInstance) {
	for _, o := range c.observers {
		o.OnProcessCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnProcessFailed(ctx context.Context, inst *ProcessInstance, err error) {
	for _, o := range c.observers {
		o.OnProcessFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, inst *ProcessInstance, stepName string, idx int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, inst, stepName, idx)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, inst *ProcessInstance, stepName string, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, inst, stepName, idx, err, d)
	}
}

func (c *CompositeObserver) OnStepRolledBack(ctx context.Context, inst *ProcessInstance, stepName string, idx int, err error) {
	for _, o := range c.observers {
		o.OnStepRolledBack(ctx, inst, stepName, idx, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs process / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnProcessStart(ctx context.Context, inst *ProcessInstance) {
	o.Logger.InfoContext(ctx, "process_start",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnProcessSuspended(ctx context.Context, inst *ProcessInstance) {
	o.Logger.InfoContext(ctx, "process_suspended",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.Any("awaiting", inst.AwaitingParams),
	)
}

func (o *LoggingObserver) OnProcessCompleted(ctx context.Context, inst *ProcessInstance) {
	o.Logger.InfoContext(ctx, "process_completed",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnProcessFailed(ctx context.Context, inst *ProcessInstance, err error) {
	o.Logger.ErrorContext(ctx, "process_failed",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, inst *ProcessInstance, stepName string, idx int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, inst *ProcessInstance, stepName string, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepRolledBack(ctx context.Context, inst *ProcessInstance, stepName string, idx int, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_rolled_back",
		slog.String("process", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	processesStarted   atomic.Int64
	processesSuspended atomic.Int64
	processesCompleted atomic.Int64
	processesFailed    atomic.Int64
	stepsCompleted     atomic.Int64
	stepsRolledBack    atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ProcessesStarted   int64
	ProcessesSuspended int64
	ProcessesCompleted int64
	ProcessesFailed    int64

	StepsCompleted  int64
	StepsRolledBack int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnProcessStart(ctx context.Context, inst *ProcessInstance) {
	m.processesStarted.Add(1)
}

func (m *BasicMetrics) OnProcessSuspended(ctx context.Context, inst *ProcessInstance) {
	m.processesSuspended.Add(1)
}

func (m *BasicMetrics) OnProcessCompleted(ctx context.Context, inst *ProcessInstance) {
	m.processesCompleted.Add(1)
}

func (m *BasicMetrics) OnProcessFailed(ctx context.Context, inst *ProcessInstance, err error) {
	m.processesFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, inst *ProcessInstance, stepName string, idx int, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnStepRolledBack(ctx context.Context, inst *ProcessInstance, stepName string, idx int, err error) {
	if err == nil {
		m.stepsRolledBack.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		ProcessesStarted:   m.processesStarted.Load(),
		ProcessesSuspended: m.processesSuspended.Load(),
		ProcessesCompleted: m.processesCompleted.Load(),
		ProcessesFailed:    m.processesFailed.Load(),
		StepsCompleted:     steps,
		StepsRolledBack:    m.stepsRolledBack.Load(),
		AvgStepDuration:    avg,
	}
}
