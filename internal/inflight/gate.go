// Package inflight guards model-backed operations against re-entry.
package inflight

import "sync"

// Gate tracks keys with a call in progress. The zero value is ready to use.
type Gate struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// Key joins an operation name and a scope (project or session id).
func Key(operation, scope string) string {
	return operation + ":" + scope
}

// TryAcquire claims key. When it is already held ok is false and release is nil.
// release is idempotent.
func (g *Gate) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]struct{})
	}
	if _, busy := g.active[key]; busy {
		return nil, false
	}
	g.active[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether key is currently held.
func (g *Gate) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return busy
}
