package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
)

// Login exchanges user credentials for a token. The token is returned, not
// stored.
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (models.TokenResponse, error) {
	var out models.TokenResponse
	err := c.do(ctx, request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   "/auth/login",
		form:   url.Values{"username": {usernameOrEmail}, "password": {password}},
	}, &out)
	return out, err
}

// AdminLogin exchanges admin credentials for an admin token
func (c *Client) AdminLogin(ctx context.Context, creds models.AdminCredentials) (models.TokenResponse, error) {
	var out models.TokenResponse
	err := c.do(ctx, request{scope: auth.Admin, method: http.MethodPost, path: "/admin/auth/login", body: creds}, &out)
	return out, err
}

// Register creates a user account
func (c *Client) Register(ctx context.Context, reg models.Registration) error {
	return c.do(ctx, request{scope: auth.User, method: http.MethodPost, path: "/users", body: reg}, nil)
}

// AchievementScore is also the session liveness probe
func (c *Client) AchievementScore(ctx context.Context) (models.Score, error) {
	var out models.Score
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/users/me/achievement"}, &out)
	return out, err
}

func (c *Client) RecommendationScore(ctx context.Context) (models.Score, error) {
	var out models.Score
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/users/me/recommendation-score"}, &out)
	return out, err
}

func (c *Client) CaretScore(ctx context.Context) (models.CaretScore, error) {
	var out models.CaretScore
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/users/me/caret-score"}, &out)
	return out, err
}

// MyProfile returns the viewer's profile. A 404 means the viewer has not
// onboarded yet; check it with IsNotFound.
func (c *Client) MyProfile(ctx context.Context) (models.UserProfile, error) {
	var out models.UserProfile
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/me/profile"}, &out)
	return out, err
}

func (c *Client) UpdateMyProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	var out models.UserProfile
	err := c.do(ctx, request{scope: auth.User, method: http.MethodPut, path: "/me/profile", body: profile}, &out)
	return out, err
}

func (c *Client) Feed(ctx context.Context, limit int) ([]models.FeedItem, error) {
	var out []models.FeedItem
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/feed", query: limitQuery(limit)}, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, kind models.LeaderboardKind, limit int) ([]models.LeaderboardRow, error) {
	var out []models.LeaderboardRow
	err := c.do(ctx, request{
		scope:  auth.User,
		method: http.MethodGet,
		path:   "/leaderboard/" + url.PathEscape(string(kind)),
		query:  limitQuery(limit),
	}, &out)
	return out, err
}

// Inbox and the other endpoints outside the protected prefixes opt in to the
// token with WithAuth.
func (c *Client) Inbox(ctx context.Context) ([]models.InboxItem, error) {
	var out []models.InboxItem
	err := c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodGet, path: "/inbox"}, &out)
	return out, err
}

func (c *Client) CaretNotifications(ctx context.Context, limit int) ([]models.CaretNotification, error) {
	var out []models.CaretNotification
	err := c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodGet,
		path:   "/caret-notifications",
		query:  limitQuery(limit),
	}, &out)
	return out, err
}

func (c *Client) AcceptContactRequest(ctx context.Context, requestID int64) error {
	return c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/contact-requests/%d/accept", requestID),
	}, nil)
}

func (c *Client) IgnoreContactRequest(ctx context.Context, requestID int64) error {
	return c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/contact-requests/%d/ignore", requestID),
	}, nil)
}

func (c *Client) RevealContact(ctx context.Context, requestID int64) (models.ContactReveal, error) {
	var out models.ContactReveal
	err := c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodGet,
		path:   fmt.Sprintf("/contact-requests/%d/contact", requestID),
	}, &out)
	return out, err
}

func (c *Client) PendingRecommendations(ctx context.Context) ([]models.PendingRecommendation, error) {
	var out []models.PendingRecommendation
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/recommendations/pending"}, &out)
	return out, err
}

func (c *Client) RequestRecommendation(ctx context.Context, req models.RecommendationRequest) error {
	return c.do(ctx, request{scope: auth.User, method: http.MethodPost, path: "/recommendations/request", body: req}, nil)
}

func (c *Client) ApproveRecommendation(ctx context.Context, id int64, note models.ApprovalNote) error {
	return c.do(ctx, request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/recommendations/%d/approve", id),
		body:   note,
	}, nil)
}

func (c *Client) RejectRecommendation(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/recommendations/%d/reject", id),
	}, nil)
}

// Posts lists circle posts; with a token, has_caret reflects the viewer
func (c *Client) Posts(ctx context.Context, limit int, userID int64) ([]models.Post, error) {
	query := limitQuery(limit)
	if userID > 0 {
		if query == nil {
			query = url.Values{}
		}
		query.Set("user_id", fmt.Sprint(userID))
	}

	var out []models.Post
	err := c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodGet, path: "/posts", query: query}, &out)
	return out, err
}

func (c *Client) CreatePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	var out models.Post
	err := c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodPost, path: "/posts", body: in}, &out)
	return out, err
}

func (c *Client) UpdatePost(ctx context.Context, id int64, in models.PostInput) (models.Post, error) {
	var out models.Post
	err := c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodPut,
		path:   fmt.Sprintf("/posts/%d", id),
		body:   in,
	}, &out)
	return out, err
}

func (c *Client) DeletePost(ctx context.Context, id int64) error {
	return c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodDelete, path: fmt.Sprintf("/posts/%d", id)}, nil)
}

// TogglePostCaret returns the post's new caret count and given state
func (c *Client) TogglePostCaret(ctx context.Context, id int64) (models.CaretToggle, error) {
	var out models.CaretToggle
	err := c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodPost, path: fmt.Sprintf("/posts/%d/caret", id)}, &out)
	return out, err
}

func (c *Client) PostReplies(ctx context.Context, postID int64) ([]models.PostReply, error) {
	var out []models.PostReply
	err := c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodGet, path: fmt.Sprintf("/posts/%d/replies", postID)}, &out)
	return out, err
}

func (c *Client) CreatePostReply(ctx context.Context, postID int64, in models.ReplyInput) (models.PostReply, error) {
	var out models.PostReply
	err := c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/posts/%d/replies", postID),
		body:   in,
	}, &out)
	return out, err
}

func (c *Client) TogglePostReplyCaret(ctx context.Context, replyID int64) (models.ReplyCaretToggle, error) {
	var out models.ReplyCaretToggle
	err := c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/post-replies/%d/caret", replyID),
	}, &out)
	return out, err
}

func (c *Client) SetPostReplyReaction(ctx context.Context, replyID int64, reaction models.Reaction) (models.ReactionResult, error) {
	var out models.ReactionResult
	err := c.do(WithAuth(ctx), request{
		scope:  auth.User,
		method: http.MethodPost,
		path:   fmt.Sprintf("/post-replies/%d/owner-reaction", replyID),
		body:   map[string]models.Reaction{"reaction": reaction},
	}, &out)
	return out, err
}

func (c *Client) Reflections(ctx context.Context, limit int) ([]models.Reflection, error) {
	var out []models.Reflection
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/reflections", query: limitQuery(limit)}, &out)
	return out, err
}

func (c *Client) CreateReflection(ctx context.Context, in models.ReflectionInput) (models.Reflection, error) {
	var out models.Reflection
	err := c.do(WithAuth(ctx), request{scope: auth.User, method: http.MethodPost, path: "/reflections", body: in}, &out)
	return out, err
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSearchResult, error) {
	q := limitQuery(limit)
	if q == nil {
		q = url.Values{}
	}
	q.Set("q", query)

	var out []models.UserSearchResult
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/public/users/search", query: q}, &out)
	return out, err
}

func (c *Client) PublicProfile(ctx context.Context, username string) (models.PublicUser, error) {
	var out models.PublicUser
	err := c.do(ctx, request{
		scope:  auth.User,
		method: http.MethodGet,
		path:   "/public/users/" + url.PathEscape(username),
	}, &out)
	return out, err
}

func (c *Client) AddEducation(ctx context.Context, in models.EducationInput) (models.Education, error) {
	var out models.Education
	err := c.do(ctx, request{scope: auth.User, method: http.MethodPost, path: "/education", body: in}, &out)
	return out, err
}

func (c *Client) EducationScore(ctx context.Context, id int64) (models.EducationScore, error) {
	var out models.EducationScore
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: fmt.Sprintf("/education/%d/score", id)}, &out)
	return out, err
}

func (c *Client) AddWork(ctx context.Context, in models.WorkInput) (models.Work, error) {
	var out models.Work
	err := c.do(ctx, request{scope: auth.User, method: http.MethodPost, path: "/work", body: in}, &out)
	return out, err
}

func (c *Client) WorkScore(ctx context.Context, id int64) (models.WorkScore, error) {
	var out models.WorkScore
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: fmt.Sprintf("/work/%d/score", id)}, &out)
	return out, err
}

// AdminVerifications lists verification requests with status (PENDING when empty)
func (c *Client) AdminVerifications(ctx context.Context, status string) ([]models.Verification, error) {
	if status == "" {
		status = models.VerificationPending
	}

	var out []models.Verification
	err := c.do(ctx, request{
		scope:  auth.Admin,
		method: http.MethodGet,
		path:   "/admin/verifications",
		query:  url.Values{"status": {status}},
	}, &out)
	return out, err
}

func (c *Client) ApproveVerification(ctx context.Context, id int64, notes string) (models.Verification, error) {
	var out models.Verification
	err := c.do(ctx, request{
		scope:  auth.Admin,
		method: http.MethodPost,
		path:   fmt.Sprintf("/admin/verifications/%d/approve", id),
		body:   models.AdminDecision{AdminNotes: notes},
	}, &out)
	return out, err
}

func (c *Client) RejectVerification(ctx context.Context, id int64, notes string) (models.Verification, error) {
	var out models.Verification
	err := c.do(ctx, request{
		scope:  auth.Admin,
		method: http.MethodPost,
		path:   fmt.Sprintf("/admin/verifications/%d/reject", id),
		body:   models.AdminDecision{AdminNotes: notes},
	}, &out)
	return out, err
}
