// Package admission bounds concurrent work across the whole process.
// All counter mutation goes through the Controller; nothing else in the
// gateway touches the counts directly.
package admission

import (
	"log/slog"
	"sync"
)

// Controller tracks active streaming generations (capacity-tracked,
// never limited) and active RLM agent loops (hard-limited). Acquire and
// release calls must be paired on every exit path; callers defer the
// release immediately after a successful acquire.
type Controller struct {
	mu          sync.Mutex
	generations int
	loops       int
	maxLoops    int
}

// NewController creates a controller allowing at most maxLoops
// concurrent agent loops.
func NewController(maxLoops int) *Controller {
	return &Controller{maxLoops: maxLoops}
}

// AcquireGeneration registers a streaming generation. Generations are
// counted for the stats endpoint but never refused.
func (c *Controller) AcquireGeneration() {
	c.mu.Lock()
	c.generations++
	c.mu.Unlock()
}

// ReleaseGeneration releases a generation slot.
func (c *Controller) ReleaseGeneration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations == 0 {
		slog.Warn("admission: generation release without acquire")
		return
	}
	c.generations--
}

// TryAcquireLoop reserves an agent-loop slot. The capacity check and
// the increment happen under one lock, so the active count can never
// exceed the maximum at any observation point.
func (c *Controller) TryAcquireLoop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loops >= c.maxLoops {
		return false
	}
	c.loops++
	return true
}

// ReleaseLoop releases an agent-loop slot.
func (c *Controller) ReleaseLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loops == 0 {
		slog.Warn("admission: loop release without acquire")
		return
	}
	c.loops--
}

// ActiveGenerations returns the current generation count.
func (c *Controller) ActiveGenerations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations
}

// ActiveLoops returns the current agent-loop count.
func (c *Controller) ActiveLoops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loops
}

// MaxLoops returns the configured loop limit.
func (c *Controller) MaxLoops() int { return c.maxLoops }
