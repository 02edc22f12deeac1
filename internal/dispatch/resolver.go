package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrUnknownHandler reports a handler reference with no registration
var ErrUnknownHandler = errors.New("unknown handler reference")

// Resolver turns a string handler reference into the handler it names
type Resolver interface {
	Resolve(ref string) (http.Handler, error)
}

// Registry is the default map-backed Resolver. Handlers register under a
// name at startup and routes refer to them by that name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]http.Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]http.Handler)}
}

// Register binds a handler to a reference name, replacing any previous
// registration under that name
func (r *Registry) Register(name string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterFunc binds a handler function to a reference name
func (r *Registry) RegisterFunc(name string, h http.HandlerFunc) {
	r.Register(name, h)
}

// Resolve looks up the handler registered under ref
func (r *Registry) Resolve(ref string) (http.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, ref)
	}
	return h, nil
}
