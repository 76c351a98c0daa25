package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/nav"
)

// GuardState is where a guarded view stands
type GuardState int

const (
	GuardIdle GuardState = iota
	GuardPending
	GuardReady
	GuardRedirected
)

func (s GuardState) String() string {
	switch s {
	case GuardPending:
		return "pending"
	case GuardReady:
		return "ready"
	case GuardRedirected:
		return "redirected"
	default:
		return "idle"
	}
}

// Prober confirms that the stored user token is still valid server-side
type Prober interface {
	AchievementScore(ctx context.Context) (models.Score, error)
}

// Guard gates views that need a signed-in user. It checks the token on mount
// and on every interval while mounted, and redirects to login on failure.
type Guard struct {
	tokens   *auth.Store
	prober   Prober
	nav      nav.Navigator
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	state    GuardState
	gen      uint64
	mounted  bool
	cancel   context.CancelFunc
	onChange func(GuardState)
}

// NewGuard creates a guard re-validating every interval
func NewGuard(tokens *auth.Store, prober Prober, navigator nav.Navigator, clk clock.Clock, interval time.Duration, logger zerolog.Logger) *Guard {
	return &Guard{
		tokens:   tokens,
		prober:   prober,
		nav:      navigator,
		clock:    clk,
		interval: interval,
		logger:   logger.With().Str("component", "guard").Logger(),
	}
}

// OnChange registers a callback invoked after every state change
func (g *Guard) OnChange(fn func(GuardState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// State returns the current state
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready reports whether guarded content may render
func (g *Guard) Ready() bool {
	return g.State() == GuardReady
}

// Mount runs the first validation and starts periodic re-validation. It
// returns the state after the first validation.
func (g *Guard) Mount(ctx context.Context) GuardState {
	g.mu.Lock()
	if g.mounted {
		state := g.state
		g.mu.Unlock()
		return state
	}
	g.mounted = true
	g.mu.Unlock()

	if !g.tokens.Has(ctx, auth.User) {
		g.redirect(ctx, g.currentGen(), false)
		return g.State()
	}

	g.setState(GuardPending)

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := g.clock.Ticker(g.interval)

	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				g.validate(loopCtx)
			}
		}
	}()

	g.validate(loopCtx)
	return g.State()
}

// Unmount stops re-validation. Results of validations still in flight are
// dropped.
func (g *Guard) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unmountLocked()
	g.state = GuardIdle
}

func (g *Guard) unmountLocked() {
	g.mounted = false
	g.gen++
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Guard) currentGen() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// validate runs one probe. Each run takes a new generation; a result is
// applied only if no newer run started and the guard is still mounted.
func (g *Guard) validate(ctx context.Context) {
	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return
	}
	g.gen++
	gen := g.gen
	g.mu.Unlock()

	if !g.tokens.Has(ctx, auth.User) {
		g.redirect(ctx, gen, false)
		return
	}

	_, err := g.prober.AchievementScore(ctx)

	g.mu.Lock()
	if !g.mounted || gen != g.gen {
		g.mu.Unlock()
		g.logger.Debug().Uint64("gen", gen).Msg("dropping stale validation")
		return
	}
	if err != nil {
		g.mu.Unlock()
		g.logger.Info().Err(err).Msg("session validation failed")
		g.redirect(ctx, gen, true)
		return
	}
	changed := g.state != GuardReady
	g.state = GuardReady
	fn := g.onChange
	g.mu.Unlock()

	if changed && fn != nil {
		fn(GuardReady)
	}
}

// redirect sends the view to login, clearing the token first when the server
// rejected it
func (g *Guard) redirect(ctx context.Context, gen uint64, clearToken bool) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.unmountLocked()
	g.state = GuardRedirected
	fn := g.onChange
	g.mu.Unlock()

	if clearToken {
		if err := g.tokens.Clear(context.WithoutCancel(ctx), auth.User); err != nil {
			g.logger.Error().Err(err).Msg("failed to clear token")
		}
	}
	g.nav.Replace(auth.User.LoginPath())

	if fn != nil {
		fn(GuardRedirected)
	}
}

func (g *Guard) setState(state GuardState) {
	g.mu.Lock()
	changed := g.state != state
	g.state = state
	fn := g.onChange
	g.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}
