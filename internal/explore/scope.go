package explore

import "context"

// scope is one batch-resolution run. Only the scope installed in
// Controller.active may write cell or center state.
type scope struct {
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newScope(parent context.Context, epoch uint64) *scope {
	ctx, cancel := context.WithCancel(parent)
	return &scope{
		epoch:  epoch,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// cancelled reports whether the scope was superseded or its parent ended.
func (s *scope) cancelled() bool {
	return s.ctx.Err() != nil
}

// await blocks until s has released, or ctx ends first.
func (s *scope) await(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

// install atomically replaces the active scope with a fresh one, then cancels
// the previous scope and waits for it to release. Pending cells are reset.
func (c *Controller) install(parent context.Context) *scope {
	c.mu.Lock()
	prev := c.active
	c.epoch++
	s := newScope(parent, c.epoch)
	c.active = s
	c.state = StateBatchRunning
	c.centerInFlight = false
	for i := range c.cells {
		c.cells[i].Asset = nil
		c.cells[i].InFlight = false
		c.cells[i].ResolvedSeed = 0
	}
	c.touch()
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		prev.await(s.ctx)
	}
	c.notify()
	return s
}

// owns must be called with c.mu held.
func (c *Controller) owns(s *scope) bool {
	return c.active == s && !s.cancelled()
}

// release ends s. The controller only returns to Idle if s was still active.
func (c *Controller) release(s *scope) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
		c.state = StateIdle
		c.centerInFlight = false
		for i := range c.cells {
			c.cells[i].InFlight = false
		}
		c.touch()
	}
	c.mu.Unlock()

	s.cancel()
	close(s.done)
	c.notify()
}

// supersede cancels the active scope without starting a new one.
func (c *Controller) supersede() {
	c.mu.Lock()
	prev := c.active
	if prev != nil {
		c.epoch++
		c.active = nil
		c.state = StateIdle
		c.centerInFlight = false
		for i := range c.cells {
			c.cells[i].InFlight = false
		}
		c.touch()
	}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		c.notify()
	}
}
