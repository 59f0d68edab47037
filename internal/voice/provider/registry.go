package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter under its name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// Select returns the adapter for name, re-targeted at model when one is
// given and the adapter supports it.
func (r *Registry) Select(name, model string) (Adapter, error) {
	a, err := r.Get(name)
	if err != nil || model == "" {
		return a, err
	}
	sel, ok := a.(ModelSelector)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support model selection", name)
	}
	return sel.WithModel(model)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status is a registry entry as shown to users.
type Status struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	Configured bool   `json:"configured"`
	Dialogue   bool   `json:"dialogue"`
}

// Statuses describes every registered adapter.
func (r *Registry) Statuses() []Status {
	names := r.Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		a, _ := r.Get(name)
		s := Status{Name: name, Configured: a.IsConfigured()}
		if m, ok := a.(interface{ Model() string }); ok {
			s.Model = m.Model()
		}
		if d, ok := a.(DialogueAdapter); ok {
			s.Dialogue = d.NativeDialogue()
		}
		out = append(out, s)
	}
	return out
}
