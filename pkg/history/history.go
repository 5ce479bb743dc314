// Package history provides an append-only audit log for process execution.
//
// Records can be written directly, or buffered in hierarchical groups that
// are committed transactionally or discarded as a whole. The engine opens a
// group per execution segment so that records of a rolled-back segment never
// reach the store.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordType identifies a history record.
type RecordType string

const (
	TypeProcessStarted   RecordType = "process.started"
	TypeProcessSuspended RecordType = "process.suspended"
	TypeProcessResumed   RecordType = "process.resumed"
	TypeProcessCompleted RecordType = "process.completed"
	TypeProcessFailed    RecordType = "process.failed"

	TypeStepExecuted   RecordType = "step.executed"
	TypeStepRolledBack RecordType = "step.rolled_back"

	TypeNote RecordType = "note"
)

// Record is a minimal append-only audit entry. It is intentionally small
// and stable; richer detail belongs in Value and should stay low-volume.
type Record struct {
	ID     int64 // assigned by the store
	Type   RecordType
	At     time.Time
	Origin string // who caused the record (process name, client ID)
	Target string // what it refers to (instance ID, entity ID)
	Value  string // small, human-oriented detail
	Group  string // commit group ID; empty for direct appends
}

// RecordStore persists history records. AppendRecords must be atomic: either
// all records are stored or none.
type RecordStore interface {
	AppendRecords(ctx context.Context, recs []Record) error
	ListRecords(ctx context.Context, target string) ([]Record, error)
}

// ErrGroupClosed is returned when a committed or discarded group is used.
var ErrGroupClosed = errors.New("history group already closed")

// Manager writes history records to a store and hands out commit groups.
// It is safe for concurrent use.
type Manager struct {
	store RecordStore
}

// NewManager creates a Manager over the given store.
func NewManager(store RecordStore) *Manager {
	return &Manager{store: store}
}

// Record appends a single record directly, outside any group. The timestamp
// is filled in if zero.
func (m *Manager) Record(ctx context.Context, rec Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	return m.store.AppendRecords(ctx, []Record{rec})
}

// List returns the records for a target in append order.
func (m *Manager) List(ctx context.Context, target string) ([]Record, error) {
	return m.store.ListRecords(ctx, target)
}

// Begin opens a top-level group. Records added to the group are buffered
// until Commit writes them atomically; Discard drops them.
func (m *Manager) Begin(origin, target string) *Group {
	return &Group{
		manager: m,
		id:      uuid.NewString(),
		origin:  origin,
		target:  target,
	}
}

// Group buffers history records for a transactional commit. Groups nest:
// committing a child moves its records into the parent buffer, so they are
// only persisted when the outermost group commits.
type Group struct {
	manager *Manager
	parent  *Group
	id      string
	origin  string
	target  string

	mu      sync.Mutex
	records []Record
	closed  bool
}

// ID returns the group's commit ID, stamped on every record it buffers.
func (g *Group) ID() string {
	return g.id
}

// Add buffers a record of the given type with the group's origin and target.
func (g *Group) Add(t RecordType, value string) error {
	return g.AddRecord(Record{Type: t, Value: value})
}

// AddRecord buffers a record, filling in origin, target, group ID, and
// timestamp where unset.
func (g *Group) AddRecord(rec Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrGroupClosed
	}
	if rec.Origin == "" {
		rec.Origin = g.origin
	}
	if rec.Target == "" {
		rec.Target = g.target
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	rec.Group = g.id
	g.records = append(g.records, rec)
	return nil
}

// Begin opens a nested group. The child's records become part of this
// group's buffer when the child commits.
func (g *Group) Begin(origin, target string) *Group {
	if origin == "" {
		origin = g.origin
	}
	if target == "" {
		target = g.target
	}
	return &Group{
		manager: g.manager,
		parent:  g,
		id:      uuid.NewString(),
		origin:  origin,
		target:  target,
	}
}

// Commit writes the buffered records: atomically to the store for a
// top-level group, into the parent buffer for a nested one. The group is
// closed either way.
func (g *Group) Commit(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGroupClosed
	}
	g.closed = true
	records := g.records
	g.records = nil
	g.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	if g.parent != nil {
		g.parent.mu.Lock()
		defer g.parent.mu.Unlock()
		if g.parent.closed {
			return ErrGroupClosed
		}
		g.parent.records = append(g.parent.records, records...)
		return nil
	}
	return g.manager.store.AppendRecords(ctx, records)
}

// Discard drops the buffered records and closes the group. It is safe to
// call on an already-closed group.
func (g *Group) Discard() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.records = nil
}
