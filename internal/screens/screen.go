package screens

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/nav"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/poll"
	"github.com/recach/recach/internal/session"
)

var (
	// ErrLoginRequired is returned by actions that need a signed-in viewer
	ErrLoginRequired = errors.New("login required")

	// ErrRedirected is returned by Mount when the screen navigated away
	// instead of showing its content
	ErrRedirected = errors.New("redirected")
)

// Gate decides whether a protected screen may show its content
type Gate interface {
	Mount(ctx context.Context) session.GuardState
	Unmount()
}

// Deps are the collaborators shared by every screen
type Deps struct {
	Tokens    *auth.Store
	Bus       *events.Bus
	Clock     clock.Clock
	Navigator nav.Navigator
	Toasts    *notify.Toasts
	Metrics   *metrics.Registry
	Logger    zerolog.Logger
}

func (d Deps) clock() clock.Clock {
	if d.Clock == nil {
		return clock.New()
	}
	return d.Clock
}

func (d Deps) pollOptions() []poll.Option {
	return []poll.Option{poll.WithMetrics(d.Metrics), poll.WithLogger(d.Logger)}
}

func (d Deps) toast(message string, accent notify.Accent) {
	if d.Toasts != nil {
		d.Toasts.Add(message, accent)
	}
}

type errSource interface {
	Err() error
}

// base carries what every screen shares: its pollers, an optional gate, and
// the transient error string views display.
type base struct {
	name     string
	deps     Deps
	logger   zerolog.Logger
	gate     Gate
	pollers  []*poll.Poller
	sources  []errSource
	fallback string

	mu        sync.Mutex
	actionErr string
	onChange  func()
}

func newBase(name, fallback string, deps Deps) *base {
	return &base{
		name:     name,
		deps:     deps,
		logger:   deps.Logger.With().Str("screen", name).Logger(),
		fallback: fallback,
	}
}

// poller adds a poller refreshing loaders every interval. Every poller
// also refreshes when the server pushes a change.
func (b *base) poller(interval time.Duration, loaders ...poll.Loader) *poll.Poller {
	p := poll.NewPoller(b.name, interval, b.deps.clock(), b.deps.Logger, loaders...)
	p.OnChange(b.changed)
	if b.deps.Bus != nil {
		p.TriggerOn(b.deps.Bus, events.RemoteUpdate)
	}
	for _, l := range loaders {
		if s, ok := l.(errSource); ok {
			b.sources = append(b.sources, s)
		}
	}
	b.pollers = append(b.pollers, p)
	return p
}

// OnChange registers the callback fired whenever the screen needs a redraw
func (b *base) OnChange(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *base) changed() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Mount checks the gate and starts polling. The error joins first-load
// failures; they are also reflected in Error.
func (b *base) Mount(ctx context.Context) error {
	if b.gate != nil && b.gate.Mount(ctx) != session.GuardReady {
		return ErrRedirected
	}
	b.clearError()

	var errs []error
	for _, p := range b.pollers {
		if err := p.Mount(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unmount stops polling; responses still in flight are dropped
func (b *base) Unmount() {
	for _, p := range b.pollers {
		p.Unmount()
	}
	if b.gate != nil {
		b.gate.Unmount()
	}
}

// Mounted reports whether any of the screen's pollers is running
func (b *base) Mounted() bool {
	for _, p := range b.pollers {
		if p.Mounted() {
			return true
		}
	}
	return false
}

// Wait blocks until background refreshes finish after Unmount
func (b *base) Wait() {
	for _, p := range b.pollers {
		p.Wait()
	}
}

// Refresh reloads every resource visibly
func (b *base) Refresh(ctx context.Context) error {
	b.clearError()
	var errs []error
	for _, p := range b.pollers {
		if err := p.Refresh(ctx, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Error is the message to show, or "" when there is nothing to report. An
// action failure wins over a load failure.
func (b *base) Error() string {
	b.mu.Lock()
	msg := b.actionErr
	b.mu.Unlock()
	if msg != "" {
		return msg
	}

	for _, s := range b.sources {
		if s.Err() != nil {
			return b.fallback
		}
	}
	return ""
}

// fail records err for display and returns it. Validation details from the
// server replace fallback when present.
func (b *base) fail(err error, fallback string) error {
	msg := api.Message(err, fallback)
	b.logger.Debug().Err(err).Str("kind", api.KindOf(err).String()).Msg(fallback)

	b.mu.Lock()
	b.actionErr = msg
	b.mu.Unlock()
	b.changed()
	return err
}

func (b *base) clearError() {
	b.mu.Lock()
	cleared := b.actionErr != ""
	b.actionErr = ""
	b.mu.Unlock()
	if cleared {
		b.changed()
	}
}

func (b *base) signedIn(ctx context.Context) bool {
	return b.deps.Tokens.Has(ctx, auth.User)
}

// settle drops the load outcomes that are not failures from the caller's
// point of view
func settle(err error) error {
	if errors.Is(err, poll.ErrStale) || errors.Is(err, poll.ErrCanceled) {
		return nil
	}
	return err
}
