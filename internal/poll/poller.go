package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/recach/recach/internal/events"
)

// Loader is anything a Poller can refresh
type Loader interface {
	Name() string
	Load(ctx context.Context, silent bool) error
	OnChange(fn func())
	Cancel()
	Resume()
}

// Poller drives the loaders of one screen: a visible load on mount, silent
// loads on a fixed interval, and cancellation on unmount.
type Poller struct {
	name     string
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
	loaders  []Loader

	mu       sync.Mutex
	mounted  bool
	ctx      context.Context
	cancel   context.CancelFunc
	unsubs   []func()
	triggers []trigger
	wg       sync.WaitGroup
}

type trigger struct {
	bus    *events.Bus
	signal events.Signal
}

// NewPoller creates an unmounted poller. A nil clock is the wall clock.
func NewPoller(name string, interval time.Duration, clk clock.Clock, logger zerolog.Logger, loaders ...Loader) *Poller {
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{
		name:     name,
		interval: interval,
		clock:    clk,
		logger:   logger.With().Str("poller", name).Logger(),
		loaders:  loaders,
	}
}

// Add registers another loader. Loaders added while mounted join at the next
// refresh.
func (p *Poller) Add(l Loader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaders = append(p.loaders, l)
}

// OnChange routes every loader's change notifications to fn
func (p *Poller) OnChange(fn func()) {
	for _, l := range p.snapshotLoaders() {
		l.OnChange(fn)
	}
}

// TriggerOn refreshes silently whenever signal fires while mounted
func (p *Poller) TriggerOn(bus *events.Bus, signal events.Signal) {
	p.mu.Lock()
	p.triggers = append(p.triggers, trigger{bus: bus, signal: signal})
	mounted := p.mounted
	p.mu.Unlock()

	if mounted {
		p.subscribe(trigger{bus: bus, signal: signal})
	}
}

func (p *Poller) subscribe(t trigger) {
	unsub := t.bus.Subscribe(t.signal, func() {
		p.mu.Lock()
		ctx, mounted := p.ctx, p.mounted
		if mounted {
			p.wg.Add(1)
		}
		p.mu.Unlock()
		if !mounted {
			return
		}

		// Listeners run on the publisher's goroutine; do the I/O elsewhere
		go func() {
			defer p.wg.Done()
			p.refresh(ctx, true)
		}()
	})

	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsub)
	p.mu.Unlock()
}

// Mount loads every loader visibly, then refreshes silently every interval
// until Unmount. The returned error joins the failures of the first load;
// each loader's failure only affects its own state.
func (p *Poller) Mount(ctx context.Context) error {
	p.mu.Lock()
	if p.mounted {
		p.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.mounted = true
	p.ctx = loopCtx
	p.cancel = cancel
	triggers := append([]trigger(nil), p.triggers...)
	ticker := p.clock.Ticker(p.interval)
	p.wg.Add(1)
	p.mu.Unlock()

	for _, l := range p.snapshotLoaders() {
		l.Resume()
	}
	for _, t := range triggers {
		p.subscribe(t)
	}

	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.refresh(loopCtx, true)
			}
		}
	}()

	p.logger.Debug().Dur("interval", p.interval).Msg("mounted")
	return p.refresh(loopCtx, false)
}

// Refresh loads every loader now
func (p *Poller) Refresh(ctx context.Context, silent bool) error {
	return p.refresh(ctx, silent)
}

func (p *Poller) refresh(ctx context.Context, silent bool) error {
	loaders := p.snapshotLoaders()
	errs := make([]error, len(loaders))

	var g errgroup.Group
	for i, l := range loaders {
		i, l := i, l
		g.Go(func() error {
			err := l.Load(ctx, silent)
			if err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrCanceled) {
				errs[i] = err
			}
			// Never fail the group: one loader's failure must not stop the others
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

// Unmount stops the interval, drops signal subscriptions and cancels every
// loader so in-flight responses are discarded
func (p *Poller) Unmount() {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = false
	p.cancel()
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, l := range p.snapshotLoaders() {
		l.Cancel()
	}
	p.logger.Debug().Msg("unmounted")
}

// Wait blocks until background refreshes started before Unmount finish
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Mounted reports whether the poller is running
func (p *Poller) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mounted
}

func (p *Poller) snapshotLoaders() []Loader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Loader(nil), p.loaders...)
}
