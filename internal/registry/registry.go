package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Result is what a handler produces: the raw file bytes plus the metadata
// needed to serve them back.
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Handler executes one job kind. The context carries the execution deadline,
// but handlers are not required to honor it; the worker stops waiting on its
// own.
type Handler func(ctx context.Context, payload json.RawMessage) (*Result, error)

// Registry maps job kinds to handlers. It is populated during startup,
// before the API accepts jobs or workers start pulling.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(kind string, h Handler) error {
	if kind == "" {
		return fmt.Errorf("empty job kind")
	}
	if h == nil {
		return fmt.Errorf("nil handler for kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("kind %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

func (r *Registry) Has(kind string) bool {
	_, ok := r.Get(kind)
	return ok
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultKind returns the single registered kind, if there is exactly one.
// Deployments running one handler can then omit the kind on admission.
func (r *Registry) DefaultKind() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.handlers) != 1 {
		return "", false
	}
	for k := range r.handlers {
		return k, true
	}
	return "", false
}
