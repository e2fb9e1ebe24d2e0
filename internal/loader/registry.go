package loader

import (
	"slices"
	"sync"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/ulib"
)

// Registry maps entry point names found in image headers to programs.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]ulib.Program
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]ulib.Program)}
}

// Register binds entry to prog, replacing any earlier binding.
func (r *Registry) Register(entry string, prog ulib.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[entry] = prog
}

// Lookup returns the program bound to entry.
func (r *Registry) Lookup(entry string) (ulib.Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[entry]
	return p, ok
}

// Entries returns the registered entry names in sorted order.
func (r *Registry) Entries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
