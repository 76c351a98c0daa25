package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/nav"
	"github.com/recach/recach/internal/storage"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeProber struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
	block chan struct{}
}

func (p *fakeProber) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProber) AchievementScore(ctx context.Context) (models.Score, error) {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.Score{}, p.err
}

type fixture struct {
	tokens *auth.Store
	bus    *events.Bus
	nav    *nav.Recorder
	clock  *clock.Mock
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	bus := events.NewBus()
	tokens := auth.NewStore(storage.NewMemory(), bus, zerolog.Nop())
	if token != "" {
		require.NoError(t, tokens.Set(context.Background(), auth.User, token))
	}
	return &fixture{tokens: tokens, bus: bus, nav: &nav.Recorder{}, clock: clock.NewMock()}
}

func (f *fixture) guard(p Prober) *Guard {
	return NewGuard(f.tokens, p, f.nav, f.clock, 60*time.Second, zerolog.Nop())
}

func (f *fixture) monitor() *Monitor {
	return NewMonitor(f.tokens, f.nav, f.bus, f.clock, 30*time.Minute, zerolog.Nop())
}

func TestGuardMissingTokenRedirects(t *testing.T) {
	f := newFixture(t, "")
	prober := &fakeProber{}
	g := f.guard(prober)

	assert.Equal(t, GuardRedirected, g.Mount(context.Background()))
	assert.False(t, g.Ready())
	assert.Equal(t, int32(0), prober.calls.Load())
	assert.Equal(t, 1, f.nav.Count(false, "/login"))
}

func TestGuardValidTokenRenders(t *testing.T) {
	f := newFixture(t, "tok")
	prober := &fakeProber{}
	g := f.guard(prober)

	var states []GuardState
	g.OnChange(func(s GuardState) { states = append(states, s) })

	assert.Equal(t, GuardReady, g.Mount(context.Background()))
	assert.True(t, g.Ready())
	assert.Equal(t, []GuardState{GuardPending, GuardReady}, states)
	assert.Empty(t, f.nav.Calls())
	g.Unmount()
}

func TestGuardInvalidTokenClearsAndRedirects(t *testing.T) {
	f := newFixture(t, "revoked")
	prober := &fakeProber{err: errors.New("401")}
	g := f.guard(prober)

	assert.Equal(t, GuardRedirected, g.Mount(context.Background()))
	assert.False(t, f.tokens.Has(context.Background(), auth.User))
	assert.Equal(t, 1, f.nav.Count(false, "/login"))
}

func TestGuardRevalidatesOnInterval(t *testing.T) {
	f := newFixture(t, "tok")
	prober := &fakeProber{}
	g := f.guard(prober)

	require.Equal(t, GuardReady, g.Mount(context.Background()))
	defer g.Unmount()

	f.clock.Add(60 * time.Second)
	require.Eventually(t, func() bool { return prober.calls.Load() == 2 }, waitFor, tick)
	assert.True(t, g.Ready())

	// Revoked mid-session
	prober.setErr(errors.New("401"))
	f.clock.Add(60 * time.Second)
	require.Eventually(t, func() bool { return g.State() == GuardRedirected }, waitFor, tick)
	assert.False(t, f.tokens.Has(context.Background(), auth.User))
	assert.Equal(t, 1, f.nav.Count(false, "/login"))
}

func TestGuardDropsResultAfterUnmount(t *testing.T) {
	f := newFixture(t, "tok")
	prober := &fakeProber{block: make(chan struct{}), err: errors.New("401")}
	g := f.guard(prober)

	done := make(chan GuardState)
	go func() { done <- g.Mount(context.Background()) }()

	require.Eventually(t, func() bool { return prober.calls.Load() == 1 }, waitFor, tick)
	g.Unmount()
	close(prober.block)
	<-done

	// The failed probe arrived after unmount: no token change, no navigation
	assert.True(t, f.tokens.Has(context.Background(), auth.User))
	assert.Empty(t, f.nav.Calls())
	assert.Equal(t, GuardIdle, g.State())
}

func TestMonitorExpiresOnceAfterIdleWindow(t *testing.T) {
	f := newFixture(t, "tok")
	m := f.monitor()
	m.Start()
	defer m.Stop()
	require.True(t, m.Armed())

	f.clock.Add(30 * time.Minute)
	require.Eventually(t, func() bool { return f.nav.Count(true, "/login") == 1 }, waitFor, tick)
	assert.False(t, f.tokens.Has(context.Background(), auth.User))

	// Nothing left to expire
	f.clock.Add(60 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.nav.Count(true, "/login"))
	assert.False(t, m.Armed())
}

func TestMonitorActivityRearmsFullWindow(t *testing.T) {
	f := newFixture(t, "tok")
	m := f.monitor()
	m.Start()
	defer m.Stop()

	f.clock.Add(29 * time.Minute)
	m.Touch(KeyDown)
	f.clock.Add(29 * time.Minute)
	m.Touch(PointerMove)
	f.clock.Add(29 * time.Minute)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.nav.Calls())
	assert.True(t, f.tokens.Has(context.Background(), auth.User))

	f.clock.Add(time.Minute)
	require.Eventually(t, func() bool { return f.nav.Count(true, "/login") == 1 }, waitFor, tick)
}

// countingBackend counts reads of the wrapped backend
type countingBackend struct {
	storage.Backend
	gets atomic.Int32
}

func (c *countingBackend) Get(ctx context.Context, key string) (string, bool, error) {
	c.gets.Add(1)
	return c.Backend.Get(ctx, key)
}

func TestMonitorActivityDoesNotReadStorage(t *testing.T) {
	backend := &countingBackend{Backend: storage.NewMemory()}
	bus := events.NewBus()
	tokens := auth.NewStore(backend, bus, zerolog.Nop())
	require.NoError(t, tokens.Set(context.Background(), auth.User, "tok"))
	m := NewMonitor(tokens, &nav.Recorder{}, bus, clock.NewMock(), 30*time.Minute, zerolog.Nop())
	m.Start()
	defer m.Stop()

	before := backend.gets.Load()
	for i := 0; i < 100; i++ {
		m.Touch(PointerMove)
	}
	assert.Equal(t, before, backend.gets.Load())
	assert.True(t, m.Armed())

	require.NoError(t, tokens.Clear(context.Background(), auth.User))
	assert.False(t, m.Armed())
	m.Touch(KeyDown)
	assert.False(t, m.Armed())
}

func TestMonitorNotArmedWithoutToken(t *testing.T) {
	f := newFixture(t, "")
	m := f.monitor()
	m.Start()
	defer m.Stop()

	assert.False(t, m.Armed())
	m.Touch(Scroll)
	assert.False(t, m.Armed())

	// Signing in arms it through the auth signal
	require.NoError(t, f.tokens.Set(context.Background(), auth.User, "tok"))
	assert.True(t, m.Armed())
}

func TestMonitorSkipsAdminViews(t *testing.T) {
	f := newFixture(t, "tok")
	m := f.monitor()
	m.Start()
	defer m.Stop()

	m.SetAdmin(true)
	assert.False(t, m.Armed())
	m.Touch(TouchStart)
	assert.False(t, m.Armed())

	f.clock.Add(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.nav.Calls())

	m.SetAdmin(false)
	assert.True(t, m.Armed())
}

func TestMonitorStopDisarms(t *testing.T) {
	f := newFixture(t, "tok")
	m := f.monitor()
	m.Start()
	m.Stop()

	f.clock.Add(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.nav.Calls())
	assert.Equal(t, 0, f.bus.Count(events.AuthChanged))
}
