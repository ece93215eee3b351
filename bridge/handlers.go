package bridge

import (
	"sort"
	"sync"
)

// Responder sends a handler's reply back to the caller. It does nothing when
// the caller did not ask for a reply, and only the first reply is delivered.
// Safe to call from any goroutine.
type Responder func(data string)

// Handler serves one named capability.
type Handler func(data string, reply Responder)

// HandlerRegistry maps capability names to handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
// An empty name or a nil handler is ignored and reports false.
func (r *HandlerRegistry) Register(name string, h Handler) bool {
	if name == "" || h == nil {
		return false
	}
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return true
}

// Lookup returns the handler for name.
func (r *HandlerRegistry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether a handler is registered for name.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
