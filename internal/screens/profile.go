package screens

import (
	"context"
	"time"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/poll"
)

// ProfileAPI is the API surface the profile screen needs
type ProfileAPI interface {
	MyProfile(ctx context.Context) (models.UserProfile, error)
	UpdateMyProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error)
	AchievementScore(ctx context.Context) (models.Score, error)
	RecommendationScore(ctx context.Context) (models.Score, error)
	CaretScore(ctx context.Context) (models.CaretScore, error)
}

// Profile is the viewer's own profile with their scores. A viewer without a
// profile yet is shown as not onboarded rather than as an error.
type Profile struct {
	*base
	client ProfileAPI

	profile        *poll.Resource[*models.UserProfile]
	achievement    *poll.Resource[models.Score]
	recommendation *poll.Resource[models.Score]
	caret          *poll.Resource[models.CaretScore]
}

// NewProfile creates the profile screen. tracker may be nil to skip score
// toasts.
func NewProfile(client ProfileAPI, tracker *notify.ScoreTracker, gate Gate, deps Deps, interval time.Duration) *Profile {
	s := &Profile{
		base:   newBase("profile", "Unable to load profile.", deps),
		client: client,
	}
	s.gate = gate

	opts := deps.pollOptions()
	s.profile = poll.NewResource("profile", func(ctx context.Context) (*models.UserProfile, error) {
		p, err := client.MyProfile(ctx)
		if api.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &p, nil
	}, opts...)
	s.achievement = poll.NewResource("achievement-score", client.AchievementScore, opts...)
	s.recommendation = poll.NewResource("recommendation-score", client.RecommendationScore, opts...)
	s.caret = poll.NewResource("caret-score", client.CaretScore, opts...)

	if tracker != nil {
		s.achievement.OnApply(func(score models.Score) {
			tracker.Achievement(context.Background(), score)
		})
		s.recommendation.OnApply(func(score models.Score) {
			tracker.Recommendation(context.Background(), score)
		})
	}

	s.poller(interval, s.profile, s.achievement, s.recommendation, s.caret)
	return s
}

// Profile returns the viewer's profile, nil when not onboarded
func (s *Profile) Profile() poll.State[*models.UserProfile] {
	return s.profile.Snapshot()
}

// Onboarded reports whether the viewer has created a profile. It is false
// until the first load completes.
func (s *Profile) Onboarded() bool {
	state := s.profile.Snapshot()
	return state.Loaded && state.Value != nil
}

// Scores returns the achievement, recommendation and caret scores
func (s *Profile) Scores() (achievement, recommendation float64, carets int) {
	return s.achievement.Snapshot().Value.Achievement(),
		s.recommendation.Snapshot().Value.Recommendation(),
		s.caret.Snapshot().Value.CaretScore
}

// Save updates the viewer's profile
func (s *Profile) Save(ctx context.Context, profile models.UserProfile) error {
	updated, err := s.client.UpdateMyProfile(ctx, profile)
	if err != nil {
		return s.fail(err, "Unable to update profile.")
	}
	s.clearError()
	s.profile.Set(&updated)
	s.deps.toast("Profile updated.", notify.AccentPlain)
	return nil
}
