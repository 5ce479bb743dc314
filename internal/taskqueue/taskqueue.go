package taskqueue

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/petrijr/processo/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	TaskTypeStartProcess TaskType = "start-process"
	TaskTypeInteraction  TaskType = "interaction"
)

// Task represents a unit of work for the worker: either starting a new
// process instance or delivering an interaction event to a suspended one.
type Task struct {
	ID   string
	Type TaskType

	// For start-process tasks
	ProcessName string
	Params      map[string]any

	// For interaction tasks
	InstanceID string
	Event      api.InteractionEvent

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time
}

// encode gob-encodes the task for durable queues.
func (t Task) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeTask is the inverse of Task.encode.
func decodeTask(data []byte) (*Task, error) {
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
