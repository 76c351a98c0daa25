package poll

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

	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// gate hands out scripted responses and can hold a fetch until released
type gate[T any] struct {
	mu      sync.Mutex
	started chan int
	release map[int]chan struct{}
	results map[int]T
	errs    map[int]error
	n       int
}

func newGate[T any]() *gate[T] {
	return &gate[T]{
		started: make(chan int, 16),
		release: make(map[int]chan struct{}),
		results: make(map[int]T),
		errs:    make(map[int]error),
	}
}

func (g *gate[T]) hold(call int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release[call] = make(chan struct{})
}

func (g *gate[T]) open(call int) {
	g.mu.Lock()
	ch := g.release[call]
	g.mu.Unlock()
	close(ch)
}

func (g *gate[T]) respond(call int, value T, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[call] = value
	g.errs[call] = err
}

func (g *gate[T]) fetch(ctx context.Context) (T, error) {
	g.mu.Lock()
	g.n++
	call := g.n
	ch := g.release[call]
	g.mu.Unlock()

	g.started <- call
	if ch != nil {
		<-ch
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.results[call], g.errs[call]
}

func TestSilentLoadNeverShowsLoading(t *testing.T) {
	var r *Resource[int]
	sawLoading := false
	r = NewResource("count", func(ctx context.Context) (int, error) {
		if r.Snapshot().Loading {
			sawLoading = true
		}
		return 1, nil
	})

	var loadingSeen atomic.Bool
	r.OnChange(func() {
		if r.Snapshot().Loading {
			loadingSeen.Store(true)
		}
	})

	require.NoError(t, r.Load(context.Background(), true))
	assert.False(t, sawLoading)
	assert.False(t, loadingSeen.Load())

	failing := NewResource("broken", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	failing.OnChange(func() { assert.False(t, failing.Snapshot().Loading) })
	assert.Error(t, failing.Load(context.Background(), true))
	assert.False(t, failing.Snapshot().Loading)
}

func TestVisibleLoadTogglesLoading(t *testing.T) {
	var r *Resource[int]
	r = NewResource("count", func(ctx context.Context) (int, error) {
		assert.True(t, r.Snapshot().Loading)
		return 3, nil
	})

	require.NoError(t, r.Load(context.Background(), false))
	state := r.Snapshot()
	assert.False(t, state.Loading)
	assert.True(t, state.Loaded)
	assert.Equal(t, 3, state.Value)
}

func TestErrorSemantics(t *testing.T) {
	g := newGate[int]()
	r := NewResource("count", g.fetch)
	ctx := context.Background()

	g.respond(1, 10, nil)
	require.NoError(t, r.Load(ctx, false))

	// Silent failure: keep last good value, surface nothing
	g.respond(2, 0, errors.New("down"))
	assert.Error(t, r.Load(ctx, true))
	assert.Equal(t, 10, r.Snapshot().Value)
	assert.NoError(t, r.Snapshot().Err)

	// Visible failure surfaces the error, value kept
	g.respond(3, 0, errors.New("down"))
	assert.Error(t, r.Load(ctx, false))
	assert.Error(t, r.Snapshot().Err)
	assert.Equal(t, 10, r.Snapshot().Value)

	// Any success clears it, silent or not
	g.respond(4, 11, nil)
	require.NoError(t, r.Load(ctx, true))
	assert.NoError(t, r.Snapshot().Err)
	assert.Equal(t, 11, r.Snapshot().Value)
}

func TestOlderResponseNeverOverwritesNewer(t *testing.T) {
	g := newGate[string]()
	reg := metrics.New()
	r := NewResource("feed", g.fetch, WithMetrics(reg), WithLogger(zerolog.Nop()))
	ctx := context.Background()

	g.hold(1)
	g.respond(1, "old", nil)
	g.respond(2, "new", nil)

	slow := make(chan error, 1)
	go func() { slow <- r.Load(ctx, true) }()
	require.Equal(t, 1, <-g.started)

	require.NoError(t, r.Load(ctx, true))
	<-g.started
	assert.Equal(t, "new", r.Snapshot().Value)

	g.open(1)
	assert.ErrorIs(t, <-slow, ErrStale)
	assert.Equal(t, "new", r.Snapshot().Value)
}

func TestLoadingClearedOnlyByLatestVisibleLoad(t *testing.T) {
	g := newGate[int]()
	r := NewResource("count", g.fetch)
	ctx := context.Background()

	g.hold(1)
	g.respond(1, 1, nil)
	g.respond(2, 2, nil)

	visible := make(chan error, 1)
	go func() { visible <- r.Load(ctx, false) }()
	<-g.started
	assert.True(t, r.Snapshot().Loading)

	// A faster silent load lands first and leaves Loading alone
	require.NoError(t, r.Load(ctx, true))
	<-g.started
	assert.True(t, r.Snapshot().Loading)
	assert.Equal(t, 2, r.Snapshot().Value)

	g.open(1)
	assert.ErrorIs(t, <-visible, ErrStale)
	assert.False(t, r.Snapshot().Loading)
	assert.Equal(t, 2, r.Snapshot().Value)
}

func TestCancelFreezesState(t *testing.T) {
	g := newGate[int]()
	r := NewResource("count", g.fetch)
	ctx := context.Background()

	g.respond(1, 5, nil)
	require.NoError(t, r.Load(ctx, false))

	g.hold(2)
	g.respond(2, 99, nil)
	done := make(chan error, 1)
	go func() { done <- r.Load(ctx, false) }()
	<-g.started

	before := r.Snapshot()
	r.Cancel()
	g.open(2)

	assert.ErrorIs(t, <-done, ErrCanceled)
	assert.Equal(t, before, r.Snapshot())
	assert.ErrorIs(t, r.Load(ctx, true), ErrCanceled)

	r.Resume()
	g.respond(3, 7, nil)
	require.NoError(t, r.Load(ctx, true))
	assert.Equal(t, 7, r.Snapshot().Value)
}

func TestCancelAbortsInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	r := NewResource("slow", func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	done := make(chan error, 1)
	go func() { done <- r.Load(context.Background(), true) }()
	<-started
	r.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(waitFor):
		t.Fatal("load did not return after cancel")
	}
}

func postKey(p models.Post) int64 { return p.ID }

func TestOptimisticCaretSurvivesOlderPoll(t *testing.T) {
	g := newGate[[]models.Post]()
	posts := NewCollection("posts", g.fetch, postKey)
	ctx := context.Background()

	g.respond(1, []models.Post{{ID: 1, CaretCount: 5}, {ID: 2, CaretCount: 1}}, nil)
	require.NoError(t, posts.Load(ctx, false))

	// A poll goes out before the mutation and answers with pre-mutation data
	g.hold(2)
	g.respond(2, []models.Post{{ID: 1, CaretCount: 5}, {ID: 2, CaretCount: 1}}, nil)
	inflight := make(chan error, 1)
	go func() { inflight <- posts.Load(ctx, true) }()
	<-g.started

	toggle := models.CaretToggle{PostID: 1, CaretCount: 6, HasCaret: true}
	require.True(t, posts.Patch(1, toggle.Apply))

	got, _ := posts.Item(1)
	assert.Equal(t, 6, got.CaretCount)
	assert.True(t, got.HasCaret)

	g.open(2)
	require.NoError(t, <-inflight)
	got, _ = posts.Item(1)
	assert.Equal(t, 6, got.CaretCount, "no flicker back")
	assert.True(t, got.HasCaret)

	// A poll issued after the mutation is authoritative
	g.respond(3, []models.Post{{ID: 1, CaretCount: 7, HasCaret: false}, {ID: 2, CaretCount: 1}}, nil)
	require.NoError(t, posts.Load(ctx, true))
	got, _ = posts.Item(1)
	assert.Equal(t, 7, got.CaretCount)
	assert.False(t, got.HasCaret)
	assert.Equal(t, 0, posts.Pending())
}

func TestPatchIsIdempotentOverConfirmingSnapshot(t *testing.T) {
	g := newGate[[]models.Post]()
	posts := NewCollection("posts", g.fetch, postKey)
	ctx := context.Background()

	g.respond(1, []models.Post{{ID: 1, CaretCount: 5}}, nil)
	require.NoError(t, posts.Load(ctx, false))

	g.hold(2)
	// The in-flight poll already reflects the mutation
	g.respond(2, []models.Post{{ID: 1, CaretCount: 6, HasCaret: true}}, nil)
	inflight := make(chan error, 1)
	go func() { inflight <- posts.Load(ctx, true) }()
	<-g.started

	posts.Patch(1, models.CaretToggle{PostID: 1, CaretCount: 6, HasCaret: true}.Apply)
	g.open(2)
	require.NoError(t, <-inflight)

	got, _ := posts.Item(1)
	assert.Equal(t, 6, got.CaretCount)
	assert.True(t, got.HasCaret)
}

func TestRemoveHidesRecordFromOlderPoll(t *testing.T) {
	g := newGate[[]models.Post]()
	posts := NewCollection("posts", g.fetch, postKey)
	ctx := context.Background()

	g.respond(1, []models.Post{{ID: 1}, {ID: 2}}, nil)
	require.NoError(t, posts.Load(ctx, false))

	g.hold(2)
	g.respond(2, []models.Post{{ID: 1}, {ID: 2}}, nil)
	inflight := make(chan error, 1)
	go func() { inflight <- posts.Load(ctx, true) }()
	<-g.started

	require.True(t, posts.Remove(2))
	assert.False(t, posts.Remove(2))
	g.open(2)
	require.NoError(t, <-inflight)

	_, ok := posts.Item(2)
	assert.False(t, ok)
	assert.Len(t, posts.Snapshot().Value, 1)

	// The next fresh poll is authoritative again
	g.respond(3, []models.Post{{ID: 1}, {ID: 2}}, nil)
	require.NoError(t, posts.Load(ctx, true))
	assert.Len(t, posts.Snapshot().Value, 2)
}

func TestPatchMissingRecord(t *testing.T) {
	posts := NewCollection("posts", func(ctx context.Context) ([]models.Post, error) {
		return []models.Post{{ID: 1}}, nil
	}, postKey)
	require.NoError(t, posts.Load(context.Background(), false))

	assert.False(t, posts.Patch(42, func(p models.Post) models.Post { return p }))
	assert.Equal(t, 0, posts.Pending())
}

func TestPatchDoesNotMutatePreviousSnapshot(t *testing.T) {
	posts := NewCollection("posts", func(ctx context.Context) ([]models.Post, error) {
		return []models.Post{{ID: 1, CaretCount: 1}}, nil
	}, postKey)
	require.NoError(t, posts.Load(context.Background(), false))

	before := posts.Snapshot().Value
	posts.Patch(1, func(p models.Post) models.Post { p.CaretCount = 2; return p })
	assert.Equal(t, 1, before[0].CaretCount)
}

func TestOnApplyHook(t *testing.T) {
	r := NewResource("n", func(ctx context.Context) (int, error) { return 4, nil })
	var got []int
	r.OnApply(func(v int) { got = append(got, v) })

	require.NoError(t, r.Load(context.Background(), true))
	assert.Equal(t, []int{4}, got)
}

func TestPollerMountAndInterval(t *testing.T) {
	mock := clock.NewMock()
	var okCalls, badCalls atomic.Int32
	var silentSeen atomic.Int32

	var ok *Resource[int]
	ok = NewResource("ok", func(ctx context.Context) (int, error) {
		okCalls.Add(1)
		if !ok.Snapshot().Loading {
			silentSeen.Add(1)
		}
		return int(okCalls.Load()), nil
	})
	bad := NewResource("bad", func(ctx context.Context) (int, error) {
		badCalls.Add(1)
		return 0, errors.New("boom")
	})

	p := NewPoller("screen", 15*time.Second, mock, zerolog.Nop(), ok, bad)
	changes := atomic.Int32{}
	p.OnChange(func() { changes.Add(1) })

	err := p.Mount(context.Background())
	require.Error(t, err, "first load reports the failing loader")
	assert.Equal(t, 1, ok.Snapshot().Value, "one failing loader does not block the other")
	assert.Error(t, bad.Snapshot().Err)
	assert.Positive(t, changes.Load())

	mock.Add(15 * time.Second)
	require.Eventually(t, func() bool { return okCalls.Load() == 2 }, waitFor, tick)
	assert.Equal(t, int32(1), silentSeen.Load())
	require.Eventually(t, func() bool { return badCalls.Load() == 2 }, waitFor, tick)

	p.Unmount()
	p.Wait()
	mock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), okCalls.Load())
	assert.False(t, p.Mounted())
}

func TestPollerTriggerOnSignal(t *testing.T) {
	bus := events.NewBus()
	var calls atomic.Int32
	r := NewResource("badge", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})

	p := NewPoller("badge", time.Hour, clock.NewMock(), zerolog.Nop(), r)
	p.TriggerOn(bus, events.CaretUpdated)

	// Not mounted yet: nothing listens
	assert.Equal(t, 0, bus.Count(events.CaretUpdated))

	require.NoError(t, p.Mount(context.Background()))
	assert.Equal(t, 1, bus.Count(events.CaretUpdated))

	bus.Publish(events.CaretUpdated)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, tick)

	p.Unmount()
	p.Wait()
	assert.Equal(t, 0, bus.Count(events.CaretUpdated))
	bus.Publish(events.CaretUpdated)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPollerRemount(t *testing.T) {
	var calls atomic.Int32
	r := NewResource("n", func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	})
	p := NewPoller("n", time.Hour, clock.NewMock(), zerolog.Nop(), r)

	require.NoError(t, p.Mount(context.Background()))
	p.Unmount()
	require.NoError(t, p.Mount(context.Background()))
	defer p.Unmount()

	assert.Equal(t, 2, r.Snapshot().Value)
}
