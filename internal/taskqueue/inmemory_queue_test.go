package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue(8)
	ctx := context.Background()

	tasks := []Task{
		{ID: "t1", Type: TaskTypeStartProcess, ProcessName: "proc-A"},
		{ID: "t2", Type: TaskTypeStartProcess, ProcessName: "proc-B"},
		{ID: "t3", Type: TaskTypeInteraction, InstanceID: "inst-1"},
	}
	for _, task := range tasks {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", task.ID, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued tasks, got %d", q.Len())
	}

	for _, want := range tasks {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.ID != want.ID || got.Type != want.Type {
			t.Fatalf("expected task %s, got %+v", want.ID, got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestInMemoryQueue_DequeueRespectsContext(t *testing.T) {
	q := NewInMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded on empty queue, got %v", err)
	}
}
