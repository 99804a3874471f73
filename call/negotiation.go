package call

import (
	"context"
	"sync"
)

// negotiationChain serializes renegotiation tasks so that at most one
// is ever in flight and a second arriving mid-task is chained behind
// the current one, per the negotiation serializer's FIFO guarantee.
// Modeled as a worker draining a task queue rather than a channel of
// closures directly, so that Close can empty pending tasks without
// running them (cancellation on Ended).
type negotiationChain struct {
	mu      sync.Mutex
	pending []func(ctx context.Context)
	running bool
	closed  bool
}

func newNegotiationChain() *negotiationChain {
	return &negotiationChain{}
}

// Enqueue appends task to the chain. If no task is currently running,
// it starts draining immediately on the calling goroutine; a task
// arriving while another is running is appended and will run later on
// whichever goroutine is draining the queue.
func (c *negotiationChain) Enqueue(ctx context.Context, task func(ctx context.Context)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, task)
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.drain(ctx)
}

func (c *negotiationChain) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.closed || len(c.pending) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		task := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		task(ctx)
	}
}

// Close discards every pending task without running it. Already
// running tasks are not interrupted; their re-check of state against
// Ended is what makes them a no-op.
func (c *negotiationChain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
}
