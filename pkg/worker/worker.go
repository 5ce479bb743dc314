package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/processo/internal/taskqueue"
	"github.com/petrijr/processo/pkg/api"
)

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// EnqueueStartProcess enqueues a task to start a process asynchronously.
// It does NOT run the process itself; that is done by ProcessOne.
func (w *Worker) EnqueueStartProcess(ctx context.Context, processName string, params map[string]any) error {
	t := taskqueue.Task{
		ID:          uuid.NewString(),
		Type:        taskqueue.TaskTypeStartProcess,
		ProcessName: processName,
		Params:      params,
		EnqueuedAt:  time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueStartProcessAt enqueues a task to start a process no earlier than
// the given time 'at'.
func (w *Worker) EnqueueStartProcessAt(ctx context.Context, processName string, params map[string]any, at time.Time) error {
	t := taskqueue.Task{
		ID:          uuid.NewString(),
		Type:        taskqueue.TaskTypeStartProcess,
		ProcessName: processName,
		Params:      params,
		EnqueuedAt:  time.Now(),
		NotBefore:   at,
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueInteraction enqueues a task to deliver an interaction event to a
// suspended process instance. The event will be dispatched asynchronously
// by ProcessOne.
func (w *Worker) EnqueueInteraction(ctx context.Context, instanceID string, ev api.InteractionEvent) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeInteraction,
		InstanceID: instanceID,
		Event:      ev,
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: no task processed (context cancelled
//     or dequeue failure)
//   - processed == true: a task was processed; err indicates whether the
//     handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeStartProcess:
		_, startErr := w.engine.Start(ctx, task.ProcessName, task.Params)
		return true, startErr

	case taskqueue.TaskTypeInteraction:
		_, evErr := w.engine.Interact(ctx, task.InstanceID, task.Event)
		return true, evErr

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until the context is cancelled. Task handler errors
// are not fatal; the loop keeps going. It returns the context error on exit.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// A failed task is recorded on its instance; keep serving.
		}
	}
}
