package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/nav"
)

// Activity is a user interaction that proves the user is still present
type Activity int

const (
	PointerMove Activity = iota
	PointerDown
	KeyDown
	Scroll
	TouchStart
)

func (a Activity) String() string {
	switch a {
	case PointerMove:
		return "pointer_move"
	case PointerDown:
		return "pointer_down"
	case KeyDown:
		return "key_down"
	case Scroll:
		return "scroll"
	case TouchStart:
		return "touch_start"
	default:
		return "unknown"
	}
}

// Monitor logs the user out after a window without activity. Only one timer
// exists at a time; every activity or auth change replaces it. Admin views
// never arm it. Whether a user token exists is read from storage only on
// start and on auth changes, not on every activity.
type Monitor struct {
	tokens *auth.Store
	nav    nav.Navigator
	bus    *events.Bus
	clock  clock.Clock
	window time.Duration
	logger zerolog.Logger

	mu          sync.Mutex
	timer       *clock.Timer
	gen         uint64
	running     bool
	admin       bool
	hasToken    bool
	unsubscribe func()
}

// NewMonitor creates a stopped monitor
func NewMonitor(tokens *auth.Store, navigator nav.Navigator, bus *events.Bus, clk clock.Clock, window time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		tokens: tokens,
		nav:    navigator,
		bus:    bus,
		clock:  clk,
		window: window,
		logger: logger.With().Str("component", "inactivity").Logger(),
	}
}

// Start listens for auth changes and arms the timer if a user is signed in
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.unsubscribe = m.bus.Subscribe(events.AuthChanged, m.authChanged)
	m.mu.Unlock()

	m.authChanged()
}

// Stop disarms the timer and stops listening
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.disarmLocked()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Touch records a user interaction
func (m *Monitor) Touch(a Activity) {
	m.reset()
}

// SetAdmin tells the monitor whether the active view is an admin view
func (m *Monitor) SetAdmin(admin bool) {
	m.mu.Lock()
	changed := m.admin != admin
	m.admin = admin
	m.mu.Unlock()

	if changed {
		m.reset()
	}
}

// Armed reports whether an expiry is pending
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Monitor) disarmLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// authChanged re-reads the token, then re-arms
func (m *Monitor) authChanged() {
	hasToken := m.tokens.Has(context.Background(), auth.User)

	m.mu.Lock()
	m.hasToken = hasToken
	m.mu.Unlock()

	m.reset()
}

// reset replaces any pending timer with a fresh full window
func (m *Monitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disarmLocked()
	if !m.running || m.admin || !m.hasToken {
		return
	}

	gen := m.gen
	m.timer = m.clock.AfterFunc(m.window, func() { m.expire(gen) })
}

// expire ends the session. A timer that was replaced after it fired is
// ignored, so each arming expires at most once.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.running || m.admin {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.timer = nil
	m.mu.Unlock()

	ctx := context.Background()
	if !m.tokens.Has(ctx, auth.User) {
		return
	}

	m.logger.Info().Dur("idle", m.window).Msg("inactivity timeout, signing out")

	// Clear publishes AuthChanged, which calls reset; the lock is not held here
	if err := m.tokens.Clear(ctx, auth.User); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear token")
	}
	m.nav.HardNavigate(auth.User.LoginPath())
}
