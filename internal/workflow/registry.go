package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Action is a capability a step can dispatch.
type Action interface {
	Run(ctx context.Context, ac *ActionContext) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, ac *ActionContext) error

// Run implements Action.
func (f ActionFunc) Run(ctx context.Context, ac *ActionContext) error { return f(ctx, ac) }

// Generic is implemented by actions that wrap external modules. For them the
// executor also treats ERROR lines written to the run log as a failure.
type Generic interface {
	Generic() bool
}

func isGeneric(a Action) bool {
	g, ok := a.(Generic)
	return ok && g.Generic()
}

// Registry maps action names to implementations.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action under name. Names are unique.
func (r *Registry) Register(name string, action Action) error {
	name = strings.TrimSpace(name)
	if name == "" || action == nil {
		return fmt.Errorf("register action: name and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	r.actions[name] = action
	return nil
}

// MustRegister is Register for wiring code that cannot recover.
func (r *Registry) MustRegister(name string, action Action) {
	if err := r.Register(name, action); err != nil {
		panic(err)
	}
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Names lists registered actions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
