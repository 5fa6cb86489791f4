package relay

import (
	"sync"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
)

// Registry is the set of live connections.
//
// ForEach holds the read lock for its whole iteration and Remove takes the
// write lock, so a removal lands either before or after a fan-out. Once
// Remove returns the connection is closed and never receives again.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

// Add registers a connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(n))
}

// Remove unregisters and closes a connection. It reports whether the
// connection was registered; removing twice is a no-op.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	_, ok := r.conns[c]
	delete(r.conns, c)
	n := len(r.conns)
	r.mu.Unlock()

	c.Close()
	if ok {
		metrics.ConnectionsActive.Set(float64(n))
	}
	return ok
}

// ForEach calls fn for every registered connection. fn must not call
// Add or Remove.
func (r *Registry) ForEach(fn func(*Conn)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.conns {
		fn(c)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Contains reports whether c is registered.
func (r *Registry) Contains(c *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[c]
	return ok
}

// snapshot returns the registered connections at this instant.
func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
