package screens

import (
	"context"
	"time"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/poll"
)

const feedLimit = 50

// FeedAPI is the API surface the feed screen needs
type FeedAPI interface {
	Feed(ctx context.Context, limit int) ([]models.FeedItem, error)
}

// Feed is the public activity feed
type Feed struct {
	*base
	items *poll.Resource[[]models.FeedItem]
}

// NewFeed creates the feed screen
func NewFeed(client FeedAPI, deps Deps, interval time.Duration) *Feed {
	s := &Feed{base: newBase("feed", "Unable to load feed.", deps)}
	s.items = poll.NewResource("feed", func(ctx context.Context) ([]models.FeedItem, error) {
		return client.Feed(ctx, feedLimit)
	}, deps.pollOptions()...)
	s.poller(interval, s.items)
	return s
}

// Items returns the feed state
func (s *Feed) Items() poll.State[[]models.FeedItem] {
	return s.items.Snapshot()
}
