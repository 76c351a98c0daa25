package notify

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/poll"
)

// CaretFetchLimit is how many caret notifications badges and the inbox load
const CaretFetchLimit = 50

// Badge names as exported to metrics
const (
	BadgeCarets   = "carets"
	BadgeContacts = "contacts"
	BadgeInbox    = "inbox"
)

// Source is the API surface the badges poll
type Source interface {
	CaretNotifications(ctx context.Context, limit int) ([]models.CaretNotification, error)
	Inbox(ctx context.Context) ([]models.InboxItem, error)
}

// BadgeState is what the sidebar shows
type BadgeState struct {
	Carets   bool
	Contacts bool
	Inbox    bool
}

// Any reports whether any badge is lit
func (s BadgeState) Any() bool {
	return s.Carets || s.Contacts || s.Inbox
}

// Badges polls the notification collections for the sidebar. It only reads
// the watermark; the inbox screen is what advances it.
type Badges struct {
	tokens    *auth.Store
	watermark *Watermark
	bus       *events.Bus
	metrics   *metrics.Registry
	logger    zerolog.Logger

	carets *poll.Resource[[]models.CaretNotification]
	inbox  *poll.Resource[[]models.InboxItem]
	poller *poll.Poller

	mu       sync.Mutex
	last     BadgeState
	onChange func(BadgeState)
	unsubs   []func()
}

// BadgesConfig wires a Badges
type BadgesConfig struct {
	Source    Source
	Tokens    *auth.Store
	Watermark *Watermark
	Bus       *events.Bus
	Clock     clock.Clock
	Interval  time.Duration
	Metrics   *metrics.Registry
	Logger    zerolog.Logger
}

// NewBadges creates unmounted badges
func NewBadges(cfg BadgesConfig) *Badges {
	b := &Badges{
		tokens:    cfg.Tokens,
		watermark: cfg.Watermark,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("component", "badges").Logger(),
	}

	opts := []poll.Option{poll.WithMetrics(cfg.Metrics), poll.WithLogger(cfg.Logger)}
	b.carets = poll.NewResource("badge-carets", func(ctx context.Context) ([]models.CaretNotification, error) {
		if !b.tokens.Has(ctx, auth.User) {
			return nil, nil
		}
		return cfg.Source.CaretNotifications(ctx, CaretFetchLimit)
	}, opts...)
	b.inbox = poll.NewResource("badge-inbox", func(ctx context.Context) ([]models.InboxItem, error) {
		if !b.tokens.Has(ctx, auth.User) {
			return nil, nil
		}
		return cfg.Source.Inbox(ctx)
	}, opts...)

	b.poller = poll.NewPoller("badges", cfg.Interval, cfg.Clock, cfg.Logger, b.carets, b.inbox)
	b.poller.OnChange(b.publish)
	b.poller.TriggerOn(cfg.Bus, events.CaretUpdated)
	b.poller.TriggerOn(cfg.Bus, events.AuthChanged)
	b.poller.TriggerOn(cfg.Bus, events.RemoteUpdate)
	return b
}

// OnChange registers the callback fired when the badge state changes
func (b *Badges) OnChange(fn func(BadgeState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Mount starts polling. Polling failures never light or clear a badge, but
// a watermark or sign-in change recomputes them against the data at hand.
func (b *Badges) Mount(ctx context.Context) error {
	if b.bus != nil {
		b.mu.Lock()
		if b.unsubs == nil {
			b.unsubs = []func(){
				b.bus.Subscribe(events.CaretUpdated, b.publish),
				b.bus.Subscribe(events.AuthChanged, b.publish),
			}
		}
		b.mu.Unlock()
	}
	err := b.poller.Mount(ctx)
	b.publish()
	return err
}

// Unmount stops polling
func (b *Badges) Unmount() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	b.poller.Unmount()
	b.poller.Wait()
}

// Refresh polls now
func (b *Badges) Refresh(ctx context.Context) error {
	return b.poller.Refresh(ctx, true)
}

// State computes the badges from the latest snapshots. Logged out viewers
// have no badges.
func (b *Badges) State(ctx context.Context) BadgeState {
	if !b.tokens.Has(ctx, auth.User) {
		return BadgeState{}
	}

	carets := b.carets.Snapshot().Value
	items := b.inbox.Snapshot().Value
	return BadgeState{
		Carets:   UnreadCarets(carets, b.watermark.Seen(ctx)),
		Contacts: PendingContacts(items),
		Inbox:    UnreadInbox(items),
	}
}

func (b *Badges) publish() {
	state := b.State(context.Background())

	b.mu.Lock()
	changed := state != b.last
	b.last = state
	notify := b.onChange
	b.mu.Unlock()

	b.metrics.SetBadge(BadgeCarets, state.Carets)
	b.metrics.SetBadge(BadgeContacts, state.Contacts)
	b.metrics.SetBadge(BadgeInbox, state.Inbox)

	if !changed {
		return
	}
	b.logger.Debug().
		Bool("carets", state.Carets).
		Bool("contacts", state.Contacts).
		Bool("inbox", state.Inbox).
		Msg("badges changed")
	if notify != nil {
		notify(state)
	}
}
