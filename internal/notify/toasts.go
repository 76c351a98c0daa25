package notify

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// DefaultToastTTL is how long a toast stays visible
const DefaultToastTTL = 2500 * time.Millisecond

// Accent colors a toast
type Accent string

const (
	AccentPlain       Accent = ""
	AccentAchievement Accent = "achievement"
	AccentRecommend   Accent = "recommendation"
	AccentError       Accent = "error"
)

// Toast is a short-lived message
type Toast struct {
	ID      string
	Message string
	Accent  Accent
}

// Toasts is the queue of visible toasts. Each toast removes itself after
// the TTL, measured on the injected clock.
type Toasts struct {
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	items    []Toast
	timers   map[string]*clock.Timer
	onChange func()
}

// NewToasts creates an empty queue. A ttl of zero uses DefaultToastTTL.
func NewToasts(clk clock.Clock, ttl time.Duration) *Toasts {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &Toasts{
		clock:  clk,
		ttl:    ttl,
		timers: make(map[string]*clock.Timer),
	}
}

// OnChange registers the callback fired when a toast appears or expires
func (t *Toasts) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Add shows message and returns the toast id
func (t *Toasts) Add(message string, accent Accent) string {
	id := uuid.NewString()

	t.mu.Lock()
	t.items = append(t.items, Toast{ID: id, Message: message, Accent: accent})
	t.timers[id] = t.clock.AfterFunc(t.ttl, func() { t.remove(id) })
	notify := t.onChange
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
	return id
}

// List returns the visible toasts, oldest first
func (t *Toasts) List() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Toast, len(t.items))
	copy(out, t.items)
	return out
}

// Close cancels every pending expiry and empties the queue
func (t *Toasts) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.items = nil
}

func (t *Toasts) remove(id string) {
	t.mu.Lock()
	delete(t.timers, id)
	found := false
	for i, item := range t.items {
		if item.ID == id {
			t.items = append(t.items[:i], t.items[i+1:]...)
			found = true
			break
		}
	}
	notify := t.onChange
	t.mu.Unlock()

	if found && notify != nil {
		notify()
	}
}
