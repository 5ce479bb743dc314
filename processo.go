package processo

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/processo/internal/engine"
	"github.com/petrijr/processo/pkg/api"
	"github.com/petrijr/processo/pkg/history"
)

// Version is the library version reported by the CLI.
const Version = "0.3.0"

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	ProcessDefinition    = api.ProcessDefinition
	StepDefinition       = api.StepDefinition
	ProcessInstance      = api.ProcessInstance
	InstanceListOptions  = api.InstanceListOptions
	Status               = api.Status
	State                = api.State
	StepFunc             = api.StepFunc
	RollbackFunc         = api.RollbackFunc
	RetryPolicy          = api.RetryPolicy
	Interaction          = api.Interaction
	InteractionFragment  = api.InteractionFragment
	InteractionEvent     = api.InteractionEvent
	InteractionEventType = api.InteractionEventType
	ParamFragment        = api.ParamFragment
	FragmentGroup        = api.FragmentGroup
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewInteraction       = api.NewInteraction
	MustInteraction      = api.MustInteraction
	NewFragmentGroup     = api.NewFragmentGroup
)

// Re-export status and event type values for convenience.

const (
	StatusPending    = api.StatusPending
	StatusRunning    = api.StatusRunning
	StatusSuspended  = api.StatusSuspended
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
	StatusRolledBack = api.StatusRolledBack

	EventUpdate = api.EventUpdate
	EventAction = api.EventAction
)

// Param returns a process parameter converted to T. It errors if the
// parameter is missing or holds a value of a different type.
func Param[T any](s *State, name string) (T, error) {
	return api.Param[T](s, name)
}

// ParamOr returns a process parameter converted to T, or fallback if the
// parameter is missing or of a different type.
func ParamOr[T any](s *State, name string, fallback T) T {
	return api.ParamOr(s, name, fallback)
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists process instances and
// history records in a SQLite database. Process definitions are kept
// in-memory and must be re-registered on startup.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewPostgresEngine returns an Engine that persists instances in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, obs)
}

// NewRedisEngine returns an Engine that persists instances in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// Start starts a registered process synchronously. The returned instance is
// COMPLETED, FAILED, or SUSPENDED awaiting interaction.
func Start(ctx context.Context, eng Engine, name string, params map[string]any) (*ProcessInstance, error) {
	return eng.Start(ctx, name, params)
}

// Interact delivers an interaction event to a suspended instance.
func Interact(ctx context.Context, eng Engine, id string, ev InteractionEvent) (*ProcessInstance, error) {
	return eng.Interact(ctx, id, ev)
}

// Update delivers an UPDATE event carrying a new value for a parameter.
func Update(ctx context.Context, eng Engine, id, param string, value any) (*ProcessInstance, error) {
	return eng.Interact(ctx, id, InteractionEvent{Param: param, Type: EventUpdate, Value: value})
}

// Action delivers an ACTION event for a parameter, which completes the
// pending interaction once all required parameters are set.
func Action(ctx context.Context, eng Engine, id, param string, value any) (*ProcessInstance, error) {
	return eng.Interact(ctx, id, InteractionEvent{Param: param, Type: EventAction, Value: value})
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, eng Engine, id string) (*ProcessInstance, error) {
	return eng.GetInstance(ctx, id)
}

// ListInstances lists process instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) ([]*ProcessInstance, error) {
	return eng.ListInstances(ctx, opts)
}

// Resume resumes a previously failed instance from the failed step.
func Resume(ctx context.Context, eng Engine, id string) (*ProcessInstance, error) {
	return eng.Resume(ctx, id)
}

// RollbackTo unwinds an instance back to the named step and re-executes
// forward from there.
func RollbackTo(ctx context.Context, eng Engine, id, stepName string) (*ProcessInstance, error) {
	return eng.RollbackTo(ctx, id, stepName)
}

// CanRollbackTo reports whether the instance can be rolled back to the named step.
func CanRollbackTo(ctx context.Context, eng Engine, id, stepName string) (bool, error) {
	return eng.CanRollbackTo(ctx, id, stepName)
}

// Cancel rolls back the entire instance and marks it ROLLED_BACK.
func Cancel(ctx context.Context, eng Engine, id string) (*ProcessInstance, error) {
	return eng.Cancel(ctx, id)
}

// RecoverStuckInstances delegates to eng.RecoverStuckInstances.
//
// It is typically called on startup before starting any workers:
//
//	count, err := processo.RecoverStuckInstances(ctx, engine)
func RecoverStuckInstances(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckInstances(ctx)
}

// ListHistory returns the audit records for an instance in append order.
// Engines constructed by this package always support history.
func ListHistory(ctx context.Context, eng Engine, instanceID string) ([]history.Record, error) {
	type historied interface {
		History() *history.Manager
	}
	h, ok := eng.(historied)
	if !ok {
		return nil, nil
	}
	return h.History().List(ctx, instanceID)
}
