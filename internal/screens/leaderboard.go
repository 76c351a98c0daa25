package screens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/poll"
)

const leaderboardLimit = 50

// LeaderboardAPI is the API surface the leaderboard screen needs
type LeaderboardAPI interface {
	Leaderboard(ctx context.Context, kind models.LeaderboardKind, limit int) ([]models.LeaderboardRow, error)
}

// Leaderboard ranks users by the selected score
type Leaderboard struct {
	*base
	rows *poll.Resource[[]models.LeaderboardRow]

	kindMu sync.Mutex
	kind   models.LeaderboardKind
}

// NewLeaderboard creates the leaderboard screen showing kind
func NewLeaderboard(client LeaderboardAPI, deps Deps, interval time.Duration, kind models.LeaderboardKind) *Leaderboard {
	if kind == "" {
		kind = models.LeaderboardCombined
	}
	s := &Leaderboard{
		base: newBase("leaderboard", "Unable to load leaderboard.", deps),
		kind: kind,
	}
	s.rows = poll.NewResource("leaderboard", func(ctx context.Context) ([]models.LeaderboardRow, error) {
		return client.Leaderboard(ctx, s.Kind(), leaderboardLimit)
	}, deps.pollOptions()...)
	s.poller(interval, s.rows)
	return s
}

// Kind returns the selected leaderboard
func (s *Leaderboard) Kind() models.LeaderboardKind {
	s.kindMu.Lock()
	defer s.kindMu.Unlock()
	return s.kind
}

// SetKind switches leaderboards and loads the new one. Responses for the
// previous kind still in flight are discarded.
func (s *Leaderboard) SetKind(ctx context.Context, kind models.LeaderboardKind) error {
	if _, ok := models.ParseLeaderboardKind(string(kind)); !ok {
		return s.fail(fmt.Errorf("unknown leaderboard %q", kind), "Unknown leaderboard.")
	}

	s.kindMu.Lock()
	s.kind = kind
	s.kindMu.Unlock()

	s.clearError()
	return settle(s.rows.Load(ctx, false))
}

// Rows returns the leaderboard state
func (s *Leaderboard) Rows() poll.State[[]models.LeaderboardRow] {
	return s.rows.Snapshot()
}
