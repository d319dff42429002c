package nbslot

import "sync"

// Gates hands out per-name read/write locks. Entries are dropped once no
// holder or waiter references them, so the map only grows with concurrent
// names, not with every name ever seen.
type Gates struct {
	mu    sync.Mutex
	gates map[string]*gate
}

type gate struct {
	rw   sync.RWMutex
	refs int
}

// NewGates creates an empty gate set.
func NewGates() *Gates {
	return &Gates{gates: make(map[string]*gate)}
}

// Lock takes the write gate for name and returns its release function.
func (g *Gates) Lock(name string) func() {
	e := g.acquire(name)
	e.rw.Lock()
	return func() {
		e.rw.Unlock()
		g.release(name, e)
	}
}

// RLock takes the read gate for name and returns its release function.
func (g *Gates) RLock(name string) func() {
	e := g.acquire(name)
	e.rw.RLock()
	return func() {
		e.rw.RUnlock()
		g.release(name, e)
	}
}

// Len returns the number of names currently referenced.
func (g *Gates) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.gates)
}

func (g *Gates) acquire(name string) *gate {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.gates[name]
	if !ok {
		e = &gate{}
		g.gates[name] = e
	}
	e.refs++
	return e
}

func (g *Gates) release(name string, e *gate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(g.gates, name)
	}
}
