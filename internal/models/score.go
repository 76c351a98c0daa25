package models

// Score holds the viewer's achievement or recommendation total. Which field
// is set depends on the endpoint.
type Score struct {
	UserID              int64    `json:"user_id"`
	AchievementScore    *float64 `json:"achievement_score,omitempty"`
	RecommendationScore *float64 `json:"recommendation_score,omitempty"`
}

// Achievement returns the achievement score or 0
func (s Score) Achievement() float64 {
	if s.AchievementScore == nil {
		return 0
	}
	return *s.AchievementScore
}

// Recommendation returns the recommendation score or 0
func (s Score) Recommendation() float64 {
	if s.RecommendationScore == nil {
		return 0
	}
	return *s.RecommendationScore
}

// CaretScore is the viewer's caret total
type CaretScore struct {
	UserID     int64 `json:"user_id"`
	CaretScore int   `json:"caret_score"`
}

// LeaderboardKind selects a leaderboard
type LeaderboardKind string

const (
	LeaderboardRecommendations LeaderboardKind = "recommendations"
	LeaderboardAchievements    LeaderboardKind = "achievements"
	LeaderboardCombined        LeaderboardKind = "combined"
)

// ParseLeaderboardKind validates a kind name
func ParseLeaderboardKind(s string) (LeaderboardKind, bool) {
	switch k := LeaderboardKind(s); k {
	case LeaderboardRecommendations, LeaderboardAchievements, LeaderboardCombined:
		return k, true
	}
	return "", false
}

// LeaderboardRow covers both the single-score and combined leaderboards
type LeaderboardRow struct {
	Rank                int     `json:"rank"`
	Score               float64 `json:"score,omitempty"`
	CombinedScore       float64 `json:"combined_score,omitempty"`
	AchievementScore    float64 `json:"achievement_score,omitempty"`
	RecommendationScore float64 `json:"recommendation_score,omitempty"`
	PA                  float64 `json:"pA,omitempty"`
	PR                  float64 `json:"pR,omitempty"`
	User                UserRef `json:"user"`
}

// Value is the score the row is ranked by
func (r LeaderboardRow) Value() float64 {
	if r.CombinedScore != 0 {
		return r.CombinedScore
	}
	return r.Score
}

// FeedItem is one entry of the public activity feed
type FeedItem struct {
	Type      string         `json:"type"`
	Timestamp Timestamp      `json:"timestamp"`
	Message   string         `json:"message"`
	User      *UserRef       `json:"user,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}
