package tid

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

var defaultGenerator = NewGenerator(time.Now)

// Generator issues strictly increasing TIDs. The package-level New and
// Observe use a process-wide Generator; tests construct their own with a
// fixed clock.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	random  [5]byte
	counter uint32
	last    TID
}

// NewGenerator creates a generator reading time from now.
func NewGenerator(now func() time.Time) *Generator {
	g := &Generator{now: now}
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err == nil {
		copy(g.random[:], seed[:5])
		g.counter = binary.BigEndian.Uint32(seed[4:8]) & 0xffffff
	}
	return g
}

// New returns a TID strictly greater than every TID this generator returned
// or observed.
func (g *Generator) New() TID {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter = (g.counter + 1) & 0xffffff

	var candidate TID
	binary.BigEndian.PutUint32(candidate[0:4], uint32(g.now().Unix()))
	copy(candidate[4:9], g.random[:])
	candidate[9] = byte(g.counter >> 16)
	candidate[10] = byte(g.counter >> 8)
	candidate[11] = byte(g.counter)

	// Clock went backwards, the counter wrapped within a second, or a larger
	// TID was observed from storage: continue from the last value.
	if candidate.Compare(g.last) <= 0 {
		candidate = g.last.increment()
	}
	g.last = candidate
	return candidate
}

// Observe raises the generator's floor to t when t is greater.
func (g *Generator) Observe(t TID) {
	if t == Max {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last.Less(t) {
		g.last = t
	}
}

// Last returns the greatest TID issued or observed so far.
func (g *Generator) Last() TID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
