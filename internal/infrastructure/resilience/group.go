package resilience

import (
	"sort"
	"sync"
	"time"
)

// Group holds one breaker per key, created on first use. Keys are
// typically hosts, so one failing origin does not block the others.
type Group struct {
	prefix   string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a group whose breakers are named prefix:key.
func NewGroup(prefix string, settings Settings) *Group {
	return &Group{
		prefix:   prefix,
		settings: settings.withDefaults(),
		now:      time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = newBreaker(g.prefix+":"+key, g.settings, g.now)
		g.breakers[key] = b
	}
	return b
}

// State returns the state of key's breaker. Unknown keys are closed.
func (g *Group) State(key string) State {
	g.mu.Lock()
	b, ok := g.breakers[key]
	g.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// Open lists the keys whose breakers are not closed.
func (g *Group) Open() []string {
	g.mu.Lock()
	breakers := make(map[string]*Breaker, len(g.breakers))
	for k, b := range g.breakers {
		breakers[k] = b
	}
	g.mu.Unlock()

	var keys []string
	for k, b := range breakers {
		if b.State() != StateClosed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
