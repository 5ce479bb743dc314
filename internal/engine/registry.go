package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/processo/pkg/api"
)

// processRegistry keeps registered process definitions in memory. Step
// functions are Go code and cannot be persisted, so definitions are
// re-registered on startup.
type processRegistry struct {
	mu     sync.RWMutex
	byName map[string]api.ProcessDefinition
}

func newProcessRegistry() *processRegistry {
	return &processRegistry{
		byName: make(map[string]api.ProcessDefinition),
	}
}

func (r *processRegistry) Register(def api.ProcessDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("process %q already registered", def.Name)
	}

	r.byName[def.Name] = def
	return nil
}

func (r *processRegistry) Get(name string) (api.ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byName[name]
	if !ok {
		return api.ProcessDefinition{}, fmt.Errorf("process %q not found", name)
	}

	return def, nil
}

func (r *processRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
