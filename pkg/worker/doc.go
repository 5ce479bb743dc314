// Package worker provides the background worker used to drive processes
// asynchronously.
//
// Workers consume tasks from a task queue and execute them against an engine:
// starting new process instances and delivering interaction events to
// suspended ones. They are lightweight, easy to embed in existing services,
// and multiple workers can safely operate on the same queue.
//
// Most applications construct workers via helper functions in the processo
// package, which wire engines and queues together with sensible defaults;
// this package provides the underlying types for more advanced scenarios
// such as custom queue backends.
//
// Workers are decoupled from any particular persistence backend. They rely
// on the api.Engine interface and the task queue abstraction, so in-memory,
// SQLite, and Redis queues can be plugged in interchangeably.
package worker
