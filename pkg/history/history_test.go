package history

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// captureStore records every AppendRecords batch it receives.
type captureStore struct {
	mu      sync.Mutex
	batches [][]Record
}

func (s *captureStore) AppendRecords(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]Record, len(recs))
	copy(batch, recs)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *captureStore) ListRecords(ctx context.Context, target string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, batch := range s.batches {
		for _, rec := range batch {
			if rec.Target == target {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func TestGroup_BuffersUntilCommit(t *testing.T) {
	store := &captureStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	grp := mgr.Begin("proc-test", "inst-1")
	if err := grp.Add(TypeProcessStarted, ""); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := grp.Add(TypeStepExecuted, "stepA"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if len(store.batches) != 0 {
		t.Fatalf("records reached the store before commit: %v", store.batches)
	}

	if err := grp.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(store.batches) != 1 {
		t.Fatalf("expected one atomic batch, got %d", len(store.batches))
	}
	batch := store.batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected 2 records in batch, got %d", len(batch))
	}
	for i, rec := range batch {
		if rec.Origin != "proc-test" || rec.Target != "inst-1" {
			t.Fatalf("record %d missing origin/target: %+v", i, rec)
		}
		if rec.Group != grp.ID() {
			t.Fatalf("record %d missing group ID: %+v", i, rec)
		}
		if rec.At.IsZero() {
			t.Fatalf("record %d missing timestamp", i)
		}
	}
}

func TestGroup_DiscardDropsRecords(t *testing.T) {
	store := &captureStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	grp := mgr.Begin("proc-test", "inst-1")
	_ = grp.Add(TypeStepExecuted, "stepA")
	grp.Discard()

	if err := grp.Commit(ctx); !errors.Is(err, ErrGroupClosed) {
		t.Fatalf("expected ErrGroupClosed after discard, got %v", err)
	}
	if len(store.batches) != 0 {
		t.Fatalf("discarded records reached the store: %v", store.batches)
	}
}

func TestGroup_ClosedGroupRejectsUse(t *testing.T) {
	store := &captureStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	grp := mgr.Begin("proc-test", "inst-1")
	_ = grp.Add(TypeProcessStarted, "")
	if err := grp.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := grp.Add(TypeStepExecuted, "stepA"); !errors.Is(err, ErrGroupClosed) {
		t.Fatalf("expected ErrGroupClosed on Add, got %v", err)
	}
	if err := grp.Commit(ctx); !errors.Is(err, ErrGroupClosed) {
		t.Fatalf("expected ErrGroupClosed on second Commit, got %v", err)
	}
}

func TestGroup_NestedCommitMergesIntoParent(t *testing.T) {
	store := &captureStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	parent := mgr.Begin("proc-test", "inst-1")
	_ = parent.Add(TypeProcessStarted, "")

	child := parent.Begin("", "")
	_ = child.Add(TypeStepExecuted, "stepA")

	if err := child.Commit(ctx); err != nil {
		t.Fatalf("child Commit failed: %v", err)
	}
	if len(store.batches) != 0 {
		t.Fatalf("child commit reached the store before parent commit: %v", store.batches)
	}

	if err := parent.Commit(ctx); err != nil {
		t.Fatalf("parent Commit failed: %v", err)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Fatalf("expected one batch with 2 records, got %v", store.batches)
	}

	// Nested records keep their own group ID and inherit origin/target.
	childRec := store.batches[0][1]
	if childRec.Group != child.ID() {
		t.Fatalf("expected child group ID %s, got %s", child.ID(), childRec.Group)
	}
	if childRec.Origin != "proc-test" || childRec.Target != "inst-1" {
		t.Fatalf("child record did not inherit origin/target: %+v", childRec)
	}
}

func TestGroup_NestedCommitAfterParentClosed(t *testing.T) {
	store := &captureStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	parent := mgr.Begin("proc-test", "inst-1")
	child := parent.Begin("", "")
	_ = child.Add(TypeStepExecuted, "stepA")

	_ = parent.Add(TypeProcessStarted, "")
	if err := parent.Commit(ctx); err != nil {
		t.Fatalf("parent Commit failed: %v", err)
	}

	if err := child.Commit(ctx); !errors.Is(err, ErrGroupClosed) {
		t.Fatalf("expected ErrGroupClosed committing child into closed parent, got %v", err)
	}
}

func TestManager_DirectRecord(t *testing.T) {
	store := &captureStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	err := mgr.Record(ctx, Record{Type: TypeNote, Origin: "proc-test", Target: "inst-1", Value: "manual note"})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := mgr.List(ctx, "inst-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Type != TypeNote || got[0].Group != "" {
		t.Fatalf("unexpected record: %+v", got[0])
	}
	if got[0].At.IsZero() {
		t.Fatal("expected timestamp to be filled in")
	}
}
