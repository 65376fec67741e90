package source

import (
	"sync"

	"github.com/GriffinCanCode/browser-source/internal/shared/id"
)

// Handle refers to a registry slot. A handle outlives its source safely:
// once the slot is reused the generation no longer matches.
type Handle struct {
	index      uint32
	generation uint32
}

type slot struct {
	source     *Source
	generation uint32
}

// Registry holds the live sources. One mutex guards it and is held for the
// whole of a traversal, so a source removed before Each started is never
// visited.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	byID  map[id.SourceID]Handle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byID: make(map[id.SourceID]Handle)}
}

// Insert adds src and returns its handle.
func (r *Registry) Insert(src *Source) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}
	r.slots[idx].source = src
	h := Handle{index: idx, generation: r.slots[idx].generation}
	r.byID[src.ID()] = h
	return h
}

// Remove frees the slot of h. Stale handles are ignored.
func (r *Registry) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slotLocked(h)
	if !ok {
		return false
	}
	delete(r.byID, s.source.ID())
	s.source = nil
	s.generation++
	r.free = append(r.free, h.index)
	return true
}

func (r *Registry) slotLocked(h Handle) (*slot, bool) {
	if int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[h.index]
	if s.source == nil || s.generation != h.generation {
		return nil, false
	}
	return s, true
}

// Get returns the source behind h.
func (r *Registry) Get(h Handle) (*Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slotLocked(h)
	if !ok {
		return nil, false
	}
	return s.source, true
}

// Lookup finds a source by id.
func (r *Registry) Lookup(sid id.SourceID) (*Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byID[sid]
	if !ok {
		return nil, false
	}
	s, ok := r.slotLocked(h)
	if !ok {
		return nil, false
	}
	return s.source, true
}

// Each calls fn for every live source in slot order until fn returns false.
// The registry lock is held throughout; fn must not call back into the
// registry or destroy sources.
func (r *Registry) Each(fn func(src *Source) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		src := r.slots[i].source
		if src == nil || src.Destroying() {
			continue
		}
		if !fn(src) {
			return
		}
	}
}

// List returns a snapshot of the live sources.
func (r *Registry) List() []*Source {
	var out []*Source
	r.Each(func(src *Source) bool {
		out = append(out, src)
		return true
	})
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
