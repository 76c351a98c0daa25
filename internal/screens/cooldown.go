package screens

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Cooldown blocks resubmission for a while after a successful submit. It
// counts down once per second on the injected clock and releases its ticker
// when it reaches zero.
type Cooldown struct {
	clock    clock.Clock
	duration time.Duration

	mu        sync.Mutex
	remaining int
	stop      chan struct{}
	onChange  func(int)
}

// NewCooldown creates an idle cooldown
func NewCooldown(clk clock.Clock, d time.Duration) *Cooldown {
	return &Cooldown{clock: clk, duration: d}
}

// OnChange registers a callback receiving the seconds left after each tick
func (c *Cooldown) OnChange(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Remaining returns the whole seconds left
func (c *Cooldown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Active reports whether submissions are blocked
func (c *Cooldown) Active() bool {
	return c.Remaining() > 0
}

// Start (re)starts the countdown from the full duration
func (c *Cooldown) Start() {
	seconds := int(c.duration / time.Second)
	if seconds <= 0 {
		return
	}

	c.mu.Lock()
	c.stopLocked()
	c.remaining = seconds
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clock.Ticker(time.Second)
	c.mu.Unlock()

	go c.run(ticker, stop)
}

func (c *Cooldown) run(ticker *clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stop != stop {
				c.mu.Unlock()
				return
			}
			if c.remaining > 1 {
				c.remaining--
			} else {
				c.remaining = 0
			}
			left := c.remaining
			if left == 0 {
				c.stop = nil
			}
			fn := c.onChange
			c.mu.Unlock()

			if fn != nil {
				fn(left)
			}
			if left == 0 {
				return
			}
		}
	}
}

// Stop cancels the countdown
func (c *Cooldown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = 0
}

func (c *Cooldown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
