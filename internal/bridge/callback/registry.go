// Package callback correlates asynchronous host replies with the script call
// that requested them.
package callback

import "sync"

// NoCallback is the id sent when a call has no pending callback.
const NoCallback int32 = 0

// Registry maps callback ids to pending values. Ids increase monotonically
// for the life of the registry, start at 1 and are never reused.
type Registry[T any] struct {
	mu      sync.Mutex
	lastID  int32
	pending map[int32]T
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		pending: make(map[int32]T),
	}
}

// Register stores v under a fresh id and returns the id.
func (r *Registry[T]) Register(v T) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	r.pending[r.lastID] = v
	return r.lastID
}

// Take removes and returns the value for id. The second result is false when
// the id is unknown or was already consumed.
func (r *Registry[T]) Take(id int32) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return v, ok
}

// Len returns the number of pending callbacks
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// LastID returns the most recently allocated id (0 before the first call).
func (r *Registry[T]) LastID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastID
}
