package screens

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/nav"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/session"
	"github.com/recach/recach/internal/storage"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeAPI serves every screen from in-memory fixtures and counts calls
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error

	feed            []models.FeedItem
	posts           []models.Post
	reflections     []models.Reflection
	replies         []models.PostReply
	leaderboardKind []models.LeaderboardKind
	carets          []models.CaretNotification
	recommendations []models.PendingRecommendation
	inbox           []models.InboxItem
	profile         *models.UserProfile
	achievement     float64
	verifications   []models.Verification
	searchQueries   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeAPI) hit(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) failWith(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeAPI) Feed(ctx context.Context, limit int) ([]models.FeedItem, error) {
	if err := f.hit("Feed"); err != nil {
		return nil, err
	}
	return f.feed, nil
}

func (f *fakeAPI) Posts(ctx context.Context, limit int, userID int64) ([]models.Post, error) {
	if err := f.hit("Posts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Post(nil), f.posts...), nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	if err := f.hit("CreatePost"); err != nil {
		return models.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := models.Post{ID: int64(len(f.posts) + 100), Type: in.Type, Content: in.Content}
	f.posts = append(f.posts, p)
	return p, nil
}

func (f *fakeAPI) UpdatePost(ctx context.Context, id int64, in models.PostInput) (models.Post, error) {
	if err := f.hit("UpdatePost"); err != nil {
		return models.Post{}, err
	}
	return models.Post{ID: id, Type: in.Type, Content: in.Content}, nil
}

func (f *fakeAPI) DeletePost(ctx context.Context, id int64) error {
	return f.hit("DeletePost")
}

func (f *fakeAPI) TogglePostCaret(ctx context.Context, id int64) (models.CaretToggle, error) {
	if err := f.hit("TogglePostCaret"); err != nil {
		return models.CaretToggle{}, err
	}
	return models.CaretToggle{PostID: id, CaretCount: 6, HasCaret: true}, nil
}

func (f *fakeAPI) Reflections(ctx context.Context, limit int) ([]models.Reflection, error) {
	if err := f.hit("Reflections"); err != nil {
		return nil, err
	}
	return f.reflections, nil
}

func (f *fakeAPI) CreateReflection(ctx context.Context, in models.ReflectionInput) (models.Reflection, error) {
	if err := f.hit("CreateReflection"); err != nil {
		return models.Reflection{}, err
	}
	return models.Reflection{ID: 1, Type: in.Type, Content: in.Content}, nil
}

func (f *fakeAPI) PostReplies(ctx context.Context, postID int64) ([]models.PostReply, error) {
	if err := f.hit("PostReplies"); err != nil {
		return nil, err
	}
	return f.replies, nil
}

func (f *fakeAPI) CreatePostReply(ctx context.Context, postID int64, in models.ReplyInput) (models.PostReply, error) {
	if err := f.hit("CreatePostReply"); err != nil {
		return models.PostReply{}, err
	}
	return models.PostReply{ID: 50, PostID: postID, Type: in.Type, Message: in.Message}, nil
}

func (f *fakeAPI) TogglePostReplyCaret(ctx context.Context, replyID int64) (models.ReplyCaretToggle, error) {
	if err := f.hit("TogglePostReplyCaret"); err != nil {
		return models.ReplyCaretToggle{}, err
	}
	return models.ReplyCaretToggle{ReplyID: replyID, IsGiven: true}, nil
}

func (f *fakeAPI) SetPostReplyReaction(ctx context.Context, replyID int64, reaction models.Reaction) (models.ReactionResult, error) {
	if err := f.hit("SetPostReplyReaction"); err != nil {
		return models.ReactionResult{}, err
	}
	return models.ReactionResult{ReplyID: replyID, Reaction: reaction}, nil
}

func (f *fakeAPI) Leaderboard(ctx context.Context, kind models.LeaderboardKind, limit int) ([]models.LeaderboardRow, error) {
	if err := f.hit("Leaderboard"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaderboardKind = append(f.leaderboardKind, kind)
	return []models.LeaderboardRow{{Rank: 1, Score: 10}}, nil
}

func (f *fakeAPI) CaretNotifications(ctx context.Context, limit int) ([]models.CaretNotification, error) {
	if err := f.hit("CaretNotifications"); err != nil {
		return nil, err
	}
	return f.carets, nil
}

func (f *fakeAPI) PendingRecommendations(ctx context.Context) ([]models.PendingRecommendation, error) {
	if err := f.hit("PendingRecommendations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PendingRecommendation(nil), f.recommendations...), nil
}

func (f *fakeAPI) Inbox(ctx context.Context) ([]models.InboxItem, error) {
	if err := f.hit("Inbox"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.InboxItem(nil), f.inbox...), nil
}

func (f *fakeAPI) AcceptContactRequest(ctx context.Context, requestID int64) error {
	return f.hit("AcceptContactRequest")
}

func (f *fakeAPI) IgnoreContactRequest(ctx context.Context, requestID int64) error {
	return f.hit("IgnoreContactRequest")
}

func (f *fakeAPI) RevealContact(ctx context.Context, requestID int64) (models.ContactReveal, error) {
	if err := f.hit("RevealContact"); err != nil {
		return models.ContactReveal{}, err
	}
	return models.ContactReveal{RequestID: models.FlexID(requestID), Contact: "ada@example.com"}, nil
}

func (f *fakeAPI) ApproveRecommendation(ctx context.Context, id int64, note models.ApprovalNote) error {
	return f.hit("ApproveRecommendation")
}

func (f *fakeAPI) RejectRecommendation(ctx context.Context, id int64) error {
	return f.hit("RejectRecommendation")
}

func (f *fakeAPI) MyProfile(ctx context.Context) (models.UserProfile, error) {
	if err := f.hit("MyProfile"); err != nil {
		return models.UserProfile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile == nil {
		return models.UserProfile{}, &api.Error{Status: http.StatusNotFound, Method: "GET", Path: "/me/profile"}
	}
	return *f.profile, nil
}

func (f *fakeAPI) UpdateMyProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	if err := f.hit("UpdateMyProfile"); err != nil {
		return models.UserProfile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = &profile
	return profile, nil
}

func (f *fakeAPI) AchievementScore(ctx context.Context) (models.Score, error) {
	if err := f.hit("AchievementScore"); err != nil {
		return models.Score{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.achievement
	return models.Score{AchievementScore: &v}, nil
}

func (f *fakeAPI) RecommendationScore(ctx context.Context) (models.Score, error) {
	if err := f.hit("RecommendationScore"); err != nil {
		return models.Score{}, err
	}
	v := 0.0
	return models.Score{RecommendationScore: &v}, nil
}

func (f *fakeAPI) CaretScore(ctx context.Context) (models.CaretScore, error) {
	if err := f.hit("CaretScore"); err != nil {
		return models.CaretScore{}, err
	}
	return models.CaretScore{CaretScore: 3}, nil
}

func (f *fakeAPI) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSearchResult, error) {
	if err := f.hit("SearchUsers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchQueries = append(f.searchQueries, query)
	return []models.UserSearchResult{{}}, nil
}

func (f *fakeAPI) PublicProfile(ctx context.Context, username string) (models.PublicUser, error) {
	if err := f.hit("PublicProfile"); err != nil {
		return models.PublicUser{}, err
	}
	return models.PublicUser{}, nil
}

func (f *fakeAPI) RequestRecommendation(ctx context.Context, req models.RecommendationRequest) error {
	return f.hit("RequestRecommendation")
}

func (f *fakeAPI) AddEducation(ctx context.Context, in models.EducationInput) (models.Education, error) {
	if err := f.hit("AddEducation"); err != nil {
		return models.Education{}, err
	}
	f.mu.Lock()
	f.achievement += 5
	f.mu.Unlock()
	return models.Education{ID: 7, DegreeType: in.DegreeType}, nil
}

func (f *fakeAPI) EducationScore(ctx context.Context, id int64) (models.EducationScore, error) {
	if err := f.hit("EducationScore"); err != nil {
		return models.EducationScore{}, err
	}
	return models.EducationScore{EducationID: id, Total: 5}, nil
}

func (f *fakeAPI) AddWork(ctx context.Context, in models.WorkInput) (models.Work, error) {
	if err := f.hit("AddWork"); err != nil {
		return models.Work{}, err
	}
	return models.Work{ID: 8, CompanyName: in.CompanyName}, nil
}

func (f *fakeAPI) WorkScore(ctx context.Context, id int64) (models.WorkScore, error) {
	if err := f.hit("WorkScore"); err != nil {
		return models.WorkScore{}, err
	}
	return models.WorkScore{WorkID: id, Total: 2}, nil
}

func (f *fakeAPI) AdminVerifications(ctx context.Context, status string) ([]models.Verification, error) {
	if err := f.hit("AdminVerifications"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Verification
	for _, v := range f.verifications {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeAPI) ApproveVerification(ctx context.Context, id int64, notes string) (models.Verification, error) {
	if err := f.hit("ApproveVerification"); err != nil {
		return models.Verification{}, err
	}
	return models.Verification{ID: id, Status: models.VerificationApproved, AdminNotes: notes}, nil
}

func (f *fakeAPI) RejectVerification(ctx context.Context, id int64, notes string) (models.Verification, error) {
	if err := f.hit("RejectVerification"); err != nil {
		return models.Verification{}, err
	}
	return models.Verification{ID: id, Status: models.VerificationRejected, AdminNotes: notes}, nil
}

type gateStub struct {
	state    session.GuardState
	mounts   int
	unmounts int
}

func (g *gateStub) Mount(ctx context.Context) session.GuardState {
	g.mounts++
	return g.state
}

func (g *gateStub) Unmount() { g.unmounts++ }

type harness struct {
	api     *fakeAPI
	deps    Deps
	clock   *clock.Mock
	nav     *nav.Recorder
	backend storage.Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	backend := storage.NewMemory()
	recorder := &nav.Recorder{}

	return &harness{
		api:     newFakeAPI(),
		clock:   mock,
		nav:     recorder,
		backend: backend,
		deps: Deps{
			Tokens:    auth.NewStore(backend, bus, zerolog.Nop()),
			Bus:       bus,
			Clock:     mock,
			Navigator: recorder,
			Toasts:    notify.NewToasts(mock, time.Hour),
			Logger:    zerolog.Nop(),
		},
	}
}

func (h *harness) signIn(t *testing.T, scope auth.Scope) {
	t.Helper()
	require.NoError(t, h.deps.Tokens.Set(context.Background(), scope, "tok-"+string(scope)))
}

func (h *harness) toastMessages() []string {
	var out []string
	for _, t := range h.deps.Toasts.List() {
		out = append(out, t.Message)
	}
	return out
}

func TestFeedLoadAndError(t *testing.T) {
	h := newHarness(t)
	h.api.feed = []models.FeedItem{{Type: "post"}}
	feed := NewFeed(h.api, h.deps, 15*time.Second)
	ctx := context.Background()

	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()
	assert.Len(t, feed.Items().Value, 1)
	assert.Empty(t, feed.Error())

	h.api.failWith("Feed", errors.New("offline"))
	h.clock.Add(15 * time.Second)
	require.Eventually(t, func() bool { return h.api.count("Feed") == 2 }, waitFor, tick)
	assert.Empty(t, feed.Error(), "silent failures stay quiet")
	assert.Len(t, feed.Items().Value, 1)

	assert.Error(t, feed.Refresh(ctx))
	assert.Equal(t, "Unable to load feed.", feed.Error())
}

func TestFeedUnmountStopsPolling(t *testing.T) {
	h := newHarness(t)
	feed := NewFeed(h.api, h.deps, 15*time.Second)

	require.NoError(t, feed.Mount(context.Background()))
	feed.Unmount()
	feed.Wait()

	h.clock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.api.count("Feed"))
}

func TestCircleCaretNeedsLogin(t *testing.T) {
	h := newHarness(t)
	h.api.posts = []models.Post{{ID: 1, Type: models.PostCurrentlyBuilding, CaretCount: 5}}
	circle := NewCircle(h.api, h.deps, 30*time.Second, time.Minute)
	ctx := context.Background()
	require.NoError(t, circle.Mount(ctx))
	defer circle.Unmount()

	assert.ErrorIs(t, circle.ToggleCaret(ctx, 1), ErrLoginRequired)
	assert.Equal(t, 0, h.api.count("TogglePostCaret"))
	assert.Contains(t, h.toastMessages(), "Login to add a caret.")
}

func TestCircleOptimisticCaret(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.posts = []models.Post{{ID: 1, Type: models.PostCurrentlyBuilding, CaretCount: 5}, {ID: 2, Type: models.PostCurrentlyBuilding}}
	circle := NewCircle(h.api, h.deps, 30*time.Second, time.Minute)
	ctx := context.Background()
	require.NoError(t, circle.Mount(ctx))
	defer circle.Unmount()

	require.NoError(t, circle.ToggleCaret(ctx, 1))
	post, ok := circle.Post(1)
	require.True(t, ok)
	assert.Equal(t, 6, post.CaretCount)
	assert.True(t, post.HasCaret)
	assert.Equal(t, 1, h.api.count("Posts"), "no reload needed")
}

func TestCircleMutations(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.posts = []models.Post{{ID: 1, Type: models.PostCurrentlyBuilding, Content: "old"}}
	circle := NewCircle(h.api, h.deps, 30*time.Second, time.Minute)
	ctx := context.Background()
	require.NoError(t, circle.Mount(ctx))
	defer circle.Unmount()

	require.NoError(t, circle.EditPost(ctx, 1, models.PostInput{Type: models.PostCurrentlyBuilding, Content: "new"}))
	post, _ := circle.Post(1)
	assert.Equal(t, "new", post.Content)

	require.NoError(t, circle.CreatePost(ctx, models.PostInput{Type: models.PostCurrentlyBuilding, Content: "hello"}))
	assert.Len(t, circle.Posts().Value, 2)

	err := circle.CreatePost(ctx, models.PostInput{Type: "bogus", Content: "x"})
	assert.Error(t, err)
	assert.NotEmpty(t, circle.Error())

	require.NoError(t, circle.DeletePost(ctx, 1))
	_, ok := circle.Post(1)
	assert.False(t, ok)
	assert.Empty(t, circle.Error(), "a successful action clears the last error")
}

func TestCircleReflectionWindow(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.api.reflections = []models.Reflection{
		{ID: 1, Content: "fresh", CreatedAt: models.Timestamp{Time: now.Add(-time.Hour)}},
		{ID: 2, Content: "expired", CreatedAt: models.Timestamp{Time: now.Add(-25 * time.Hour)}},
	}
	circle := NewCircle(h.api, h.deps, 30*time.Second, time.Minute)
	require.NoError(t, circle.Mount(context.Background()))
	defer circle.Unmount()

	live := circle.Reflections()
	require.Len(t, live, 1)
	assert.Equal(t, "fresh", live[0].Content)

	h.clock.Add(24 * time.Hour)
	assert.Empty(t, circle.Reflections())
}

func TestThreadReactions(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.replies = []models.PostReply{{ID: 9, PostID: 1, Message: "hi"}}
	circle := NewCircle(h.api, h.deps, 30*time.Second, time.Minute)
	thread := circle.Thread(1)
	ctx := context.Background()
	require.NoError(t, thread.Mount(ctx))
	defer thread.Unmount()

	require.NoError(t, thread.ToggleReplyCaret(ctx, 9))
	require.NoError(t, thread.SetReaction(ctx, 9, models.ReactionFire))

	replies := thread.Replies().Value
	require.Len(t, replies, 1)
	assert.True(t, replies[0].IsGiven)
	assert.Equal(t, models.ReactionFire, replies[0].OwnerReaction)

	assert.Error(t, thread.Reply(ctx, models.ReplyInput{Message: "  "}))
	require.NoError(t, thread.Reply(ctx, models.ReplyInput{Message: "thanks"}))
	assert.Equal(t, 1, h.api.count("CreatePostReply"))
}

func TestLeaderboardSwitch(t *testing.T) {
	h := newHarness(t)
	lb := NewLeaderboard(h.api, h.deps, 30*time.Second, "")
	ctx := context.Background()
	require.NoError(t, lb.Mount(ctx))
	defer lb.Unmount()

	require.NoError(t, lb.SetKind(ctx, models.LeaderboardAchievements))
	assert.Equal(t, models.LeaderboardAchievements, lb.Kind())
	assert.Equal(t, []models.LeaderboardKind{models.LeaderboardCombined, models.LeaderboardAchievements}, h.api.leaderboardKind)

	assert.Error(t, lb.SetKind(ctx, "weekly"))
	assert.Equal(t, "Unknown leaderboard.", lb.Error())
}

func contactItem(id, requestID int64, status models.ContactStatus) models.InboxItem {
	return models.InboxItem{
		ID:      id,
		Type:    models.InboxContactRequest,
		Status:  string(status),
		Payload: []byte(`{"request_id": "` + strconv.FormatInt(requestID, 10) + `", "requester_name": "Ada"}`),
	}
}

func newInbox(h *harness, gate Gate) (*Inbox, *notify.Watermark) {
	w := notify.NewWatermark(h.backend, h.deps.Bus, zerolog.Nop())
	return NewInbox(h.api, w, gate, h.deps, 15*time.Second), w
}

func TestInboxAdvancesWatermark(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.carets = []models.CaretNotification{{ID: 3}, {ID: 9}, {ID: 7}}
	inbox, w := newInbox(h, nil)
	ctx := context.Background()

	assert.Equal(t, int64(0), w.Seen(ctx))
	require.NoError(t, inbox.Mount(ctx))
	defer inbox.Unmount()
	assert.Equal(t, int64(9), w.Seen(ctx))
	assert.Len(t, inbox.Carets().Value, 3)
}

func TestInboxGuarded(t *testing.T) {
	h := newHarness(t)
	gate := &gateStub{state: session.GuardRedirected}
	inbox, _ := newInbox(h, gate)

	assert.ErrorIs(t, inbox.Mount(context.Background()), ErrRedirected)
	assert.Equal(t, 0, h.api.count("Inbox"))
	assert.Equal(t, 0, h.api.count("CaretNotifications"))

	gate.state = session.GuardReady
	require.NoError(t, inbox.Mount(context.Background()))
	inbox.Unmount()
	assert.Equal(t, 1, gate.unmounts)
}

func TestInboxContactStateMachine(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.inbox = []models.InboxItem{
		contactItem(1, 11, models.ContactPending),
		contactItem(2, 12, models.ContactPending),
		{ID: 3, Type: models.InboxPostReply, Status: models.InboxUnread},
	}
	inbox, _ := newInbox(h, nil)
	ctx := context.Background()
	require.NoError(t, inbox.Mount(ctx))
	defer inbox.Unmount()

	require.Len(t, inbox.ContactRequests(), 2)
	require.Len(t, inbox.Items(), 1)

	_, err := inbox.Reveal(ctx, 11)
	assert.ErrorIs(t, err, ErrNotAccepted)
	assert.Equal(t, 0, h.api.count("RevealContact"))

	require.NoError(t, inbox.Accept(ctx, 11))
	require.NoError(t, inbox.Ignore(ctx, 12))

	err = inbox.Accept(ctx, 12)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, "Request already answered.", inbox.Error())
	assert.Equal(t, 1, h.api.count("AcceptContactRequest"))

	contact, err := inbox.Reveal(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", contact)
	_, err = inbox.Reveal(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.count("RevealContact"), "revealed once per request")

	_, err = inbox.Reveal(ctx, 12)
	assert.ErrorIs(t, err, ErrNotAccepted)
}

func TestInboxRecommendations(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.recommendations = []models.PendingRecommendation{{ID: 1}, {ID: 2}}
	inbox, _ := newInbox(h, nil)
	ctx := context.Background()
	require.NoError(t, inbox.Mount(ctx))
	defer inbox.Unmount()

	require.NoError(t, inbox.Approve(ctx, 1, models.ApprovalNote{Title: "Great", Body: "Ship it"}))
	assert.Len(t, inbox.Recommendations().Value, 1)

	h.api.failWith("RejectRecommendation", &api.Error{Status: http.StatusConflict, Detail: "Already decided"})
	assert.Error(t, inbox.Reject(ctx, 2))
	assert.Equal(t, "Already decided", inbox.Error())
	assert.Len(t, inbox.Recommendations().Value, 1)
}

func TestProfileNotOnboarded(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.achievement = 4
	tracker := notify.NewScoreTracker(h.backend, h.deps.Toasts, zerolog.Nop())
	profile := NewProfile(h.api, tracker, nil, h.deps, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, profile.Mount(ctx))
	defer profile.Unmount()
	assert.False(t, profile.Onboarded())
	assert.Empty(t, profile.Error(), "404 is a state, not an error")

	achievement, _, carets := profile.Scores()
	assert.Equal(t, 4.0, achievement)
	assert.Equal(t, 3, carets)
	assert.Contains(t, h.toastMessages(), "+4 Achievement points added")

	require.NoError(t, profile.Save(ctx, models.UserProfile{Headline: "Builder"}))
	assert.True(t, profile.Onboarded())
}

func TestProfileLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	h.api.failWith("MyProfile", &api.Error{Status: http.StatusInternalServerError})
	profile := NewProfile(h.api, nil, nil, h.deps, 30*time.Second)

	assert.Error(t, profile.Mount(context.Background()))
	defer profile.Unmount()
	assert.Equal(t, "Unable to load profile.", profile.Error())
}

func TestSearchQuery(t *testing.T) {
	h := newHarness(t)
	search := NewSearch(h.api, h.deps, 30*time.Second)
	ctx := context.Background()
	require.NoError(t, search.Mount(ctx))
	defer search.Unmount()
	assert.Equal(t, 0, h.api.count("SearchUsers"), "empty query asks nothing")

	search.Type(ctx, "ad")
	search.Type(ctx, " ada ")
	h.clock.Add(searchDebounce)
	require.Eventually(t, func() bool { return h.api.count("SearchUsers") == 1 }, waitFor, tick)
	assert.Equal(t, "ada", search.Query())
	h.api.mu.Lock()
	assert.Equal(t, []string{"ada"}, h.api.searchQueries)
	h.api.mu.Unlock()

	// Leaving the screen drops a query still waiting out the delay
	search.Type(ctx, "grace")
	search.Unmount()
	h.clock.Add(searchDebounce)
	assert.Never(t, func() bool { return h.api.count("SearchUsers") > 1 }, 50*time.Millisecond, tick)
	assert.Equal(t, "ada", search.Query())

	assert.ErrorIs(t, search.RequestRecommendation(ctx, models.RecommendationRequest{}), ErrLoginRequired)
	h.signIn(t, auth.User)
	require.NoError(t, search.RequestRecommendation(ctx, models.RecommendationRequest{RecommenderUsername: "ada"}))

	h.api.failWith("PublicProfile", &api.Error{Status: http.StatusNotFound})
	_, err := search.PublicProfile(ctx, "ghost")
	assert.Error(t, err)
	assert.Equal(t, "User not found.", search.Error())
}

func TestAdminRequiresAdminToken(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	admin := NewAdmin(h.api, h.deps, 30*time.Second)

	assert.ErrorIs(t, admin.Mount(context.Background()), ErrRedirected)
	assert.Equal(t, []nav.Call{{Path: "/admin/login"}}, h.nav.Calls())
	assert.Equal(t, 0, h.api.count("AdminVerifications"))
}

func TestAdminDecisions(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.Admin)
	h.api.verifications = []models.Verification{
		{ID: 1, Status: models.VerificationPending},
		{ID: 2, Status: models.VerificationPending},
		{ID: 3, Status: models.VerificationApproved},
	}
	admin := NewAdmin(h.api, h.deps, 30*time.Second)
	ctx := context.Background()
	require.NoError(t, admin.Mount(ctx))
	defer admin.Unmount()
	require.Len(t, admin.Verifications().Value, 2)

	require.NoError(t, admin.Approve(ctx, 1, "ok"))
	assert.Len(t, admin.Verifications().Value, 1)

	require.NoError(t, admin.SetStatus(ctx, models.VerificationApproved))
	require.Len(t, admin.Verifications().Value, 1)
	require.NoError(t, admin.Reject(ctx, 3, "mistake"))
	items := admin.Verifications().Value
	require.Len(t, items, 1)
	assert.Equal(t, models.VerificationRejected, items[0].Status)
}

func validEducation() models.EducationInput {
	return models.EducationInput{
		DegreeType:   "BS",
		CollegeID:    "mit",
		AdvisorName:  "Grace",
		AdvisorEmail: "grace@example.com",
	}
}

func TestFormsCooldown(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, auth.User)
	tracker := notify.NewScoreTracker(h.backend, h.deps.Toasts, zerolog.Nop())
	forms := NewForms(h.api, tracker, nil, h.deps, 20*time.Second)
	ctx := context.Background()
	require.NoError(t, forms.Mount(ctx))
	defer forms.Unmount()

	res, err := forms.SubmitEducation(ctx, validEducation())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Entry.ID)
	assert.Equal(t, 5.0, res.Score.Total)
	assert.Equal(t, "Education entry submitted.", forms.Status())
	assert.Contains(t, h.toastMessages(), "+5 Achievement points added")
	assert.Equal(t, 20, forms.Cooldown().Remaining())

	_, err = forms.SubmitEducation(ctx, validEducation())
	assert.ErrorIs(t, err, ErrCoolingDown)
	_, err = forms.SubmitWork(ctx, models.WorkInput{})
	assert.Error(t, err, "validation runs before the cooldown check")
	assert.Equal(t, 1, h.api.count("AddEducation"))

	for i := 0; i < 20; i++ {
		h.clock.Add(time.Second)
		want := 19 - i
		require.Eventually(t, func() bool { return forms.Cooldown().Remaining() == want }, waitFor, tick)
	}
	assert.False(t, forms.Cooldown().Active())

	_, err = forms.SubmitEducation(ctx, validEducation())
	require.NoError(t, err)
	assert.Equal(t, 2, h.api.count("AddEducation"))
}

func TestFormsFailure(t *testing.T) {
	h := newHarness(t)
	h.api.failWith("AddWork", errors.New("offline"))
	forms := NewForms(h.api, nil, nil, h.deps, 20*time.Second)

	_, err := forms.SubmitWork(context.Background(), models.WorkInput{
		CompanyName:     "Acme",
		Title:           "Engineer",
		StartDate:       "2024-01-01",
		SupervisorName:  "Lin",
		SupervisorEmail: "lin@example.com",
	})
	assert.Error(t, err)
	assert.Equal(t, "Unable to add work entry.", forms.Error())
	assert.False(t, forms.Cooldown().Active(), "no cooldown after a failure")
}

func TestCooldownStop(t *testing.T) {
	mock := clock.NewMock()
	c := NewCooldown(mock, 3*time.Second)
	c.Start()
	assert.Equal(t, 3, c.Remaining())
	c.Stop()
	assert.Equal(t, 0, c.Remaining())

	mock.Add(5 * time.Second)
	assert.Equal(t, 0, c.Remaining())
}
