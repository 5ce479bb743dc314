package persistence

import "github.com/petrijr/processo/pkg/history"

// Persistence bundles the store interfaces so the engine can depend on a
// single abstraction.
type Persistence struct {
	Instances InstanceStore
	History   history.RecordStore
}
