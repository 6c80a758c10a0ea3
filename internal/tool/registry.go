package tool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const NoHelp = "no documentation found"

var (
	ErrAlreadyRegistered = errors.New("tool already registered")
	ErrNotFound          = errors.New("tool not found")
)

// Spec is a registered tool: its handler plus the human-readable help shown
// by archon.tools.help.
type Spec struct {
	Name    string
	Help    string
	Handler Handler
}

// Registry maps tool names to specs. Registration happens at startup;
// lookups happen on every dispatch, so reads take the cheap path.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %q has no handler", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// MustRegister panics on registration failure. Startup wiring only.
func (r *Registry) MustRegister(spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.specs[name]
	return ok
}

func (r *Registry) Get(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return spec, nil
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Help returns the tool's documentation, or the NoHelp placeholder for
// registered tools without any. Unknown tools are an error.
func (r *Registry) Help(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if spec.Help == "" {
		return NoHelp, nil
	}
	return spec.Help, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
