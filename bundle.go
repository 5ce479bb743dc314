package processo

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/processo/internal/taskqueue"
	workerpkg "github.com/petrijr/processo/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported for now; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Process instances, history records, and queued
// tasks are persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:processo.db?_journal=WAL")
//	bundle, err := processo.NewSQLiteBundle(db)
//	// register processes on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.New(eng, q)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}

// NewRedisBundle constructs a durable Engine + Queue + Worker combo sharing
// the same Redis client. Process instances and queued tasks live in Redis.
func NewRedisBundle(client *redis.Client) *WorkerBundle {
	eng := NewRedisEngine(client)
	q := taskqueue.NewRedisQueue(client, "")
	w := workerpkg.New(eng, q)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}
}
