package screens

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/poll"
)

const (
	searchLimit    = 20
	searchDebounce = 300 * time.Millisecond
)

// SearchAPI is the API surface the search screen needs
type SearchAPI interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSearchResult, error)
	PublicProfile(ctx context.Context, username string) (models.PublicUser, error)
	RequestRecommendation(ctx context.Context, req models.RecommendationRequest) error
}

// Search finds users by name. Typed queries are debounced; an empty query
// shows nothing without asking the server.
type Search struct {
	*base
	client  SearchAPI
	results *poll.Resource[[]models.UserSearchResult]

	qmu      sync.Mutex
	query    string
	debounce *clock.Timer
}

// NewSearch creates the search screen
func NewSearch(client SearchAPI, deps Deps, interval time.Duration) *Search {
	s := &Search{
		base:   newBase("search", "Unable to search users.", deps),
		client: client,
	}
	s.results = poll.NewResource("search", func(ctx context.Context) ([]models.UserSearchResult, error) {
		q := s.Query()
		if q == "" {
			return nil, nil
		}
		return client.SearchUsers(ctx, q, searchLimit)
	}, deps.pollOptions()...)
	s.poller(interval, s.results)
	return s
}

// Query returns the query currently searched for
func (s *Search) Query() string {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.query
}

// Type updates the query after the debounce delay, as when typing
func (s *Search) Type(ctx context.Context, query string) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = s.deps.clock().AfterFunc(searchDebounce, func() {
		s.SetQuery(context.WithoutCancel(ctx), query)
	})
}

// Unmount drops a pending typed query along with polling
func (s *Search) Unmount() {
	s.qmu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.qmu.Unlock()
	s.base.Unmount()
}

// SetQuery searches for query right away
func (s *Search) SetQuery(ctx context.Context, query string) error {
	s.qmu.Lock()
	s.query = strings.TrimSpace(query)
	s.qmu.Unlock()

	s.clearError()
	return settle(s.results.Load(ctx, false))
}

// Results returns the search state
func (s *Search) Results() poll.State[[]models.UserSearchResult] {
	return s.results.Snapshot()
}

// PublicProfile loads one user's public profile
func (s *Search) PublicProfile(ctx context.Context, username string) (models.PublicUser, error) {
	user, err := s.client.PublicProfile(ctx, username)
	if err != nil {
		if api.IsNotFound(err) {
			return user, s.fail(err, "User not found.")
		}
		return user, s.fail(err, "Unable to load user.")
	}
	return user, nil
}

// RequestRecommendation asks a user found here for a recommendation
func (s *Search) RequestRecommendation(ctx context.Context, req models.RecommendationRequest) error {
	if !s.signedIn(ctx) {
		s.deps.toast("Login to request recommendation.", notify.AccentRecommend)
		return ErrLoginRequired
	}
	if err := s.client.RequestRecommendation(ctx, req); err != nil {
		return s.fail(err, "Unable to send request.")
	}
	s.clearError()
	s.deps.toast("Recommendation request sent.", notify.AccentRecommend)
	return nil
}
