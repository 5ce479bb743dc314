package processo

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/processo/internal/taskqueue"
	"github.com/petrijr/processo/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := processo.NewLocalRunner()
//	proc := processo.New("my-process").Step(...)
//	proc.MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	inst, err := processo.Start(ctx, runner.Engine, proc.Name(), params)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartProcessAsync(ctx, proc.Name(), params)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory process engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithObserver(nil)
}

// NewLocalRunnerWithObserver is like NewLocalRunner with an Observer attached
// to the engine.
func NewLocalRunnerWithObserver(obs Observer) *LocalRunner {
	eng := NewInMemoryEngineWithObserver(obs)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("processo: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// Cancellation is the shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Log and keep going so a single bad task does not kill
					// the worker loop.
					slog.Error("local runner worker error", "err", err)
					continue
				}
				if !processed {
					// Only happens when ctx was cancelled before a task
					// arrived; the next Dequeue returns context.Canceled.
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartProcessAsync enqueues a task to start the given process asynchronously.
// The process must already be registered on LocalRunner.Engine.
func (r *LocalRunner) StartProcessAsync(ctx context.Context, processName string, params map[string]any) error {
	return r.Worker.EnqueueStartProcess(ctx, processName, params)
}

// InteractAsync enqueues a task to deliver an interaction event to a process
// instance. The instance will process the event when a worker picks up the task.
func (r *LocalRunner) InteractAsync(ctx context.Context, instanceID string, ev InteractionEvent) error {
	return r.Worker.EnqueueInteraction(ctx, instanceID, ev)
}
