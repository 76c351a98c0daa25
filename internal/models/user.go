package models

// Visibility controls who can see a profile
type Visibility string

const (
	VisibilityPublic          Visibility = "PUBLIC"
	VisibilityOnlyConnections Visibility = "ONLY_CONNECTIONS"
	VisibilityPrivate         Visibility = "PRIVATE"
)

// UserRef is the compact user shape embedded in other records
type UserRef struct {
	ID              int64  `json:"id"`
	Username        string `json:"username,omitempty"`
	FullName        string `json:"full_name"`
	University      string `json:"university,omitempty"`
	ProfilePhotoURL string `json:"profile_photo_url,omitempty"`
}

// Name returns the best label for the user
func (u *UserRef) Name() string {
	if u == nil {
		return "Unknown"
	}
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return "^" + u.Username
	}
	return "Unknown"
}

// UserProfile is the viewer's editable profile
type UserProfile struct {
	ID                      int64      `json:"id"`
	UserID                  int64      `json:"user_id"`
	Username                string     `json:"username,omitempty"`
	Email                   string     `json:"email,omitempty"`
	FullName                string     `json:"full_name,omitempty"`
	ProfilePhotoURL         string     `json:"profile_photo_url,omitempty"`
	Headline                string     `json:"headline,omitempty"`
	About                   string     `json:"about,omitempty"`
	Location                string     `json:"location,omitempty"`
	Pronouns                string     `json:"pronouns,omitempty"`
	WebsiteURL              string     `json:"website_url,omitempty"`
	GithubURL               string     `json:"github_url,omitempty"`
	LinkedinURL             string     `json:"linkedin_url,omitempty"`
	CurrentProject          string     `json:"current_project,omitempty"`
	CurrentGoal             string     `json:"current_goal,omitempty"`
	Interests               []string   `json:"interests,omitempty"`
	TopSkills               []string   `json:"top_skills,omitempty"`
	IsOpenToRecommendations *bool      `json:"is_open_to_recommendations,omitempty"`
	IsHiring                *bool      `json:"is_hiring,omitempty"`
	Visibility              Visibility `json:"visibility"`
}

// VerifiedEducation is a verified education entry shown publicly
type VerifiedEducation struct {
	UniversityName string `json:"university_name"`
	DegreeType     string `json:"degree_type"`
}

// VerifiedWork is a verified work entry shown publicly
type VerifiedWork struct {
	CompanyName string `json:"company_name"`
	Title       string `json:"title"`
}

// PublicUser is another user's public profile
type PublicUser struct {
	ID                  int64               `json:"id"`
	FullName            string              `json:"full_name"`
	Username            string              `json:"username"`
	RecommendedBy       []UserRef           `json:"recommended_by"`
	RecommenderCount    int                 `json:"recommender_count"`
	ProfilePhotoURL     string              `json:"profile_photo_url,omitempty"`
	AchievementTotal    float64             `json:"achievement_total,omitempty"`
	RecommendationTotal float64             `json:"recommendation_total,omitempty"`
	CaretScore          int                 `json:"caret_score,omitempty"`
	VerifiedEducation   []VerifiedEducation `json:"verified_education,omitempty"`
	VerifiedWork        []VerifiedWork      `json:"verified_work,omitempty"`
}

// UserSearchResult is one row of the public user search
type UserSearchResult struct {
	UserID              int64               `json:"user_id"`
	FullName            string              `json:"full_name"`
	Headline            string              `json:"headline,omitempty"`
	AchievementTotal    float64             `json:"achievement_total"`
	RecommendationTotal float64             `json:"recommendation_total"`
	CaretScore          int                 `json:"caret_score,omitempty"`
	Username            string              `json:"username,omitempty"`
	VerifiedEducation   []VerifiedEducation `json:"verified_education,omitempty"`
	VerifiedWork        []VerifiedWork      `json:"verified_work,omitempty"`
}

// Registration is the sign-up payload
type Registration struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// TokenResponse is returned by both login endpoints
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
