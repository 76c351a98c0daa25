package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/metrics"
)

var (
	// ErrCanceled is returned by loads on a canceled resource
	ErrCanceled = errors.New("resource canceled")

	// ErrStale is returned by a load whose response lost to a newer one
	ErrStale = errors.New("stale response discarded")
)

// State is a resource snapshot as views render it
type State[T any] struct {
	Value   T
	Loading bool
	Err     error
	Loaded  bool
}

// Fetcher produces a fresh server snapshot
type Fetcher[T any] func(ctx context.Context) (T, error)

// Option configures a resource
type Option func(*options)

type options struct {
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// WithMetrics records load durations and stale discards
func WithMetrics(m *metrics.Registry) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the resource logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Resource is one polled server collection or record. Every Load takes a
// generation number; a response is applied only if its generation is newer
// than the last applied one, so a slow response never overwrites a faster,
// newer one. Silent loads never touch Loading.
type Resource[T any] struct {
	name    string
	fetch   Fetcher[T]
	metrics *metrics.Registry
	logger  zerolog.Logger

	mu         sync.Mutex
	state      State[T]
	issued     uint64
	applied    uint64
	loadingGen uint64
	canceled   bool
	inflight   map[uint64]context.CancelFunc
	onChange   func()
	onApply    []func(T)

	// merge lets Collection overlay optimistic patches; called with mu held
	merge func(gen uint64, value T) T
}

// NewResource creates a resource around fetch
func NewResource[T any](name string, fetch Fetcher[T], opts ...Option) *Resource[T] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Resource[T]{
		name:     name,
		fetch:    fetch,
		metrics:  o.metrics,
		logger:   o.logger.With().Str("resource", name).Logger(),
		inflight: make(map[uint64]context.CancelFunc),
	}
}

// Name returns the resource name
func (r *Resource[T]) Name() string { return r.name }

// OnChange registers the callback fired after every state change
func (r *Resource[T]) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// OnApply registers a callback fired with each snapshot that gets applied
func (r *Resource[T]) OnApply(fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onApply = append(r.onApply, fn)
}

// Snapshot returns the current state
func (r *Resource[T]) Snapshot() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error of the last failed visible load, cleared by any
// applied success
func (r *Resource[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Err
}

// Loading reports whether a visible load is in flight
func (r *Resource[T]) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Loading
}

// Load fetches once. A non-silent load shows Loading until it, as the latest
// non-silent load, finishes. A failed silent load keeps the last good value
// and surfaces no error; any applied success clears the error.
func (r *Resource[T]) Load(ctx context.Context, silent bool) error {
	r.mu.Lock()
	if r.canceled {
		r.mu.Unlock()
		return ErrCanceled
	}
	r.issued++
	gen := r.issued
	if !silent {
		r.state.Loading = true
		r.loadingGen = gen
	}
	loadCtx, cancel := context.WithCancel(ctx)
	r.inflight[gen] = cancel
	notify := r.onChange
	r.mu.Unlock()

	if !silent && notify != nil {
		notify()
	}

	start := time.Now()
	value, err := r.fetch(loadCtx)
	cancel()
	r.metrics.ObservePoll(r.name, err, time.Since(start))

	r.mu.Lock()
	delete(r.inflight, gen)
	if r.canceled {
		r.mu.Unlock()
		return ErrCanceled
	}

	changed := false
	if r.loadingGen == gen {
		r.state.Loading = false
		r.loadingGen = 0
		changed = true
	}

	if gen <= r.applied {
		notify = r.onChange
		r.mu.Unlock()
		r.metrics.CountStale(r.name)
		r.logger.Debug().Uint64("gen", gen).Msg("discarding stale response")
		if changed && notify != nil {
			notify()
		}
		return ErrStale
	}

	if err != nil {
		if !silent {
			r.state.Err = err
			changed = true
		}
		notify = r.onChange
		r.mu.Unlock()
		r.logger.Debug().Err(err).Bool("silent", silent).Msg("load failed")
		if changed && notify != nil {
			notify()
		}
		return err
	}

	if r.merge != nil {
		value = r.merge(gen, value)
	}
	r.state.Value = value
	r.state.Err = nil
	r.state.Loaded = true
	r.applied = gen
	notify = r.onChange
	hooks := make([]func(T), len(r.onApply))
	copy(hooks, r.onApply)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(value)
	}
	if notify != nil {
		notify()
	}
	return nil
}

// Cancel marks the resource canceled: responses still in flight are dropped
// and their requests aborted. The state stays as it was at the moment of
// the call.
func (r *Resource[T]) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.canceled = true
	for gen, cancel := range r.inflight {
		cancel()
		delete(r.inflight, gen)
	}
}

// Resume makes a canceled resource loadable again
func (r *Resource[T]) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = false
}

// Set replaces the value directly, as after a mutation whose response is the
// full new value. Loads issued before the call are discarded when they land.
func (r *Resource[T]) Set(value T) {
	r.mu.Lock()
	r.issued++
	r.applied = r.issued
	r.state.Value = value
	r.state.Err = nil
	r.state.Loaded = true
	notify := r.onChange
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}
