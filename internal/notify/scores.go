package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/storage"
)

// ScoreTracker turns score increases into toasts. The last seen value of
// each score is cached locally; the cache is never treated as authoritative.
type ScoreTracker struct {
	backend storage.Backend
	toasts  *Toasts
	logger  zerolog.Logger
}

// NewScoreTracker creates a tracker. toasts may be nil.
func NewScoreTracker(backend storage.Backend, toasts *Toasts, logger zerolog.Logger) *ScoreTracker {
	return &ScoreTracker{
		backend: backend,
		toasts:  toasts,
		logger:  logger.With().Str("component", "scores").Logger(),
	}
}

// Achievement records a fetched achievement score and returns the increase
func (s *ScoreTracker) Achievement(ctx context.Context, score models.Score) float64 {
	return s.track(ctx, storage.KeyAchievementScore, "Achievement", AccentAchievement, score.Achievement())
}

// Recommendation records a fetched recommendation score and returns the increase
func (s *ScoreTracker) Recommendation(ctx context.Context, score models.Score) float64 {
	return s.track(ctx, storage.KeyRecommendationScore, "Recommendation", AccentRecommend, score.Recommendation())
}

func (s *ScoreTracker) track(ctx context.Context, key, label string, accent Accent, next float64) float64 {
	prev := 0.0
	if raw, ok, err := s.backend.Get(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("score cache read failed")
	} else if ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			prev = v
		}
	}

	delta := 0.0
	if next > prev {
		delta = next - prev
		if s.toasts != nil {
			s.toasts.Add(fmt.Sprintf("+%s %s points added", formatScore(delta), label), accent)
		}
	}

	if err := s.backend.Set(ctx, key, formatScore(next)); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("score cache write failed")
	}
	return delta
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
