package persistence

import (
	"errors"
	"testing"

	"github.com/petrijr/processo/pkg/api"
)

func sampleInstance(id, process string, status api.Status) *api.ProcessInstance {
	return &api.ProcessInstance{
		ID:          id,
		Name:        process,
		Status:      status,
		CurrentStep: 1,
		Params:      map[string]any{"msg": "hello", "n": 42},
		Executed:    []int{0},
	}
}

func TestInMemoryStore_SaveGetUpdate(t *testing.T) {
	store := NewInMemoryStore()

	inst := sampleInstance("mem-1", "proc-test", api.StatusRunning)
	if err := store.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance failed: %v", err)
	}

	got, err := store.GetInstance("mem-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.ID != "mem-1" || got.Name != "proc-test" || got.Status != api.StatusRunning {
		t.Fatalf("unexpected instance after Get: %+v", got)
	}
	if got.Params["msg"] != "hello" || got.Params["n"] != 42 {
		t.Fatalf("unexpected params: %+v", got.Params)
	}

	got.Status = api.StatusCompleted
	got.CurrentStep = 2
	got.Executed = append(got.Executed, 1)
	got.Err = errors.New("something happened")

	if err := store.UpdateInstance(got); err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}

	got2, err := store.GetInstance("mem-1")
	if err != nil {
		t.Fatalf("GetInstance after update failed: %v", err)
	}
	if got2.Status != api.StatusCompleted || got2.CurrentStep != 2 {
		t.Fatalf("unexpected status/current_step after update: %+v", got2)
	}
	if len(got2.Executed) != 2 {
		t.Fatalf("expected 2 executed steps, got %v", got2.Executed)
	}
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	store := NewInMemoryStore()

	if _, err := store.GetInstance("nope"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
	if err := store.UpdateInstance(sampleInstance("nope", "p", api.StatusRunning)); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound on update, got %v", err)
	}
}

func TestInMemoryStore_ClonesOnReadAndWrite(t *testing.T) {
	store := NewInMemoryStore()

	inst := sampleInstance("mem-clone", "proc-test", api.StatusRunning)
	if err := store.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	inst.Params["msg"] = "mutated"
	inst.Executed[0] = 99

	got, err := store.GetInstance("mem-clone")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Params["msg"] != "hello" {
		t.Fatalf("stored params mutated through caller copy: %v", got.Params["msg"])
	}
	if got.Executed[0] != 0 {
		t.Fatalf("stored executed stack mutated through caller copy: %v", got.Executed)
	}

	// And mutating a read result must not leak either.
	got.Params["msg"] = "mutated again"

	got2, _ := store.GetInstance("mem-clone")
	if got2.Params["msg"] != "hello" {
		t.Fatalf("stored params mutated through read copy: %v", got2.Params["msg"])
	}
}

func TestInMemoryStore_ListInstancesFilters(t *testing.T) {
	store := NewInMemoryStore()

	seed := []*api.ProcessInstance{
		sampleInstance("list-1", "proc-A", api.StatusRunning),
		sampleInstance("list-2", "proc-A", api.StatusCompleted),
		sampleInstance("list-3", "proc-B", api.StatusCompleted),
	}
	for _, inst := range seed {
		if err := store.SaveInstance(inst); err != nil {
			t.Fatalf("SaveInstance(%s) failed: %v", inst.ID, err)
		}
	}

	all, err := store.ListInstances(InstanceFilter{})
	if err != nil {
		t.Fatalf("ListInstances (no filter) failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(all))
	}

	procA, err := store.ListInstances(InstanceFilter{ProcessName: "proc-A"})
	if err != nil {
		t.Fatalf("ListInstances (proc-A) failed: %v", err)
	}
	if len(procA) != 2 {
		t.Fatalf("expected 2 proc-A instances, got %d", len(procA))
	}

	completed, err := store.ListInstances(InstanceFilter{Status: api.StatusCompleted})
	if err != nil {
		t.Fatalf("ListInstances (COMPLETED) failed: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected 2 COMPLETED instances, got %d", len(completed))
	}

	completedA, err := store.ListInstances(InstanceFilter{ProcessName: "proc-A", Status: api.StatusCompleted})
	if err != nil {
		t.Fatalf("ListInstances (proc-A + COMPLETED) failed: %v", err)
	}
	if len(completedA) != 1 || completedA[0].ID != "list-2" {
		t.Fatalf("unexpected combined filter result: %+v", completedA)
	}
}
