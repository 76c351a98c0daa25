package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/nav"
	"github.com/recach/recach/internal/storage"
)

type seenRequest struct {
	Path          string
	Authorization string
	CacheControl  string
	Pragma        string
	RequestID     string
	ContentType   string
	Body          string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []seenRequest
	handler  http.HandlerFunc
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	f.mu.Lock()
	f.requests = append(f.requests, seenRequest{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		CacheControl:  r.Header.Get("Cache-Control"),
		Pragma:        r.Header.Get("Pragma"),
		RequestID:     r.Header.Get("X-Request-ID"),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          string(body),
	})
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{}`))
}

func (f *fakeAPI) last() seenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type harness struct {
	api    *fakeAPI
	server *httptest.Server
	client *Client
	tokens *auth.Store
	bus    *events.Bus
	nav    *nav.Recorder
}

func newHarness(t *testing.T, basePath string, breaker bool) *harness {
	t.Helper()

	fake := &fakeAPI{}
	mux := http.NewServeMux()
	mux.Handle("/", fake)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	bus := events.NewBus()
	tokens := auth.NewStore(storage.NewMemory(), bus, zerolog.Nop())
	recorder := &nav.Recorder{}

	client, err := New(Options{
		BaseURL:   server.URL + basePath,
		Tokens:    tokens,
		Navigator: recorder,
		Breaker:   breaker,
		Metrics:   metrics.New(),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	return &harness{api: fake, server: server, client: client, tokens: tokens, bus: bus, nav: recorder}
}

func TestDefaultHeaders(t *testing.T) {
	h := newHarness(t, "", false)

	_, err := h.client.Feed(context.Background(), 10)
	require.NoError(t, err)

	first := h.api.last()
	assert.Equal(t, "no-store", first.CacheControl)
	assert.Equal(t, "no-cache", first.Pragma)
	assert.NotEmpty(t, first.RequestID)

	_, err = h.client.Feed(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, h.api.last().RequestID)
}

func TestUserTokenAttachedByPathClassification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/api/v1", false)
	require.NoError(t, h.tokens.Set(ctx, auth.User, "user-tok"))
	require.NoError(t, h.tokens.Set(ctx, auth.Admin, "admin-tok"))

	tests := []struct {
		name string
		call func() error
		path string
		want string
	}{
		{"profile requires auth", func() error { _, err := h.client.MyProfile(ctx); return err }, "/api/v1/me/profile", "Bearer user-tok"},
		{"probe requires auth", func() error { _, err := h.client.AchievementScore(ctx); return err }, "/api/v1/users/me/achievement", "Bearer user-tok"},
		{"recommendations require auth", func() error { _, err := h.client.PendingRecommendations(ctx); return err }, "/api/v1/recommendations/pending", "Bearer user-tok"},
		{"feed is anonymous", func() error { _, err := h.client.Feed(ctx, 5); return err }, "/api/v1/feed", ""},
		{"leaderboard is anonymous", func() error { _, err := h.client.Leaderboard(ctx, models.LeaderboardCombined, 5); return err }, "/api/v1/leaderboard/combined", ""},
		{"public search is anonymous", func() error { _, err := h.client.SearchUsers(ctx, "ada", 5); return err }, "/api/v1/public/users/search", ""},
		{"inbox accepts auth", func() error { _, err := h.client.Inbox(ctx); return err }, "/api/v1/inbox", "Bearer user-tok"},
		{"posts accept auth", func() error { _, err := h.client.Posts(ctx, 5, 0); return err }, "/api/v1/posts", "Bearer user-tok"},
		{"admin always carries admin token", func() error { _, err := h.client.AdminVerifications(ctx, ""); return err }, "/api/v1/admin/verifications", "Bearer admin-tok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			got := h.api.last()
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.want, got.Authorization)
		})
	}
}

func TestNoTokenNoHeader(t *testing.T) {
	h := newHarness(t, "", false)

	_, err := h.client.MyProfile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.api.last().Authorization)
}

func TestRequiresAuthPrefixes(t *testing.T) {
	h := newHarness(t, "", false)
	user := h.client.Pipeline(auth.User)
	admin := h.client.Pipeline(auth.Admin)

	for _, path := range []string{"/me", "/me/profile", "/recommendations/3/approve", "/education", "/work/1/score", "/users/me/achievement"} {
		assert.True(t, user.RequiresAuth(path), path)
	}
	for _, path := range []string{"/feed", "/leaderboard/achievements", "/public/users/ada", "/users", "/auth/login"} {
		assert.False(t, user.RequiresAuth(path), path)
	}
	assert.True(t, admin.RequiresAuth("/admin/auth/login"))
}

func TestUnauthorizedEndsScopeSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", false)
	require.NoError(t, h.tokens.Set(ctx, auth.User, "user-tok"))
	require.NoError(t, h.tokens.Set(ctx, auth.Admin, "admin-tok"))

	signals := 0
	h.bus.Subscribe(events.AuthChanged, func() { signals++ })

	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Could not validate credentials"}`))
	}

	_, err := h.client.AchievementScore(ctx)
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	assert.False(t, h.tokens.Has(ctx, auth.User))
	assert.True(t, h.tokens.Has(ctx, auth.Admin), "admin scope untouched")
	assert.Equal(t, 1, signals)
	assert.Equal(t, 1, h.nav.Count(true, "/login"))

	_, err = h.client.AdminVerifications(ctx, "")
	require.Error(t, err)
	assert.False(t, h.tokens.Has(ctx, auth.Admin))
	assert.Equal(t, 1, h.nav.Count(true, "/admin/login"))
}

func TestNonUnauthorizedErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", false)
	require.NoError(t, h.tokens.Set(ctx, auth.User, "user-tok"))

	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/profile":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail": "Profile not found"}`))
		case "/recommendations/request":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"detail": "Request already pending"}`))
		case "/education":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail": [{"loc": ["body", "gpa"], "msg": "field required"}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}

	_, err := h.client.MyProfile(ctx)
	assert.True(t, IsNotFound(err))

	err = h.client.RequestRecommendation(ctx, models.RecommendationRequest{RecommenderUsername: "bo"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Request already pending", Message(err, "Unable to send request."))

	_, err = h.client.AddEducation(ctx, models.EducationInput{})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Unable to submit.", Message(err, "Unable to submit."))

	_, err = h.client.Feed(ctx, 1)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, "Unable to load feed.", Message(err, "Unable to load feed."))

	assert.True(t, h.tokens.Has(ctx, auth.User))
	assert.Empty(t, h.nav.Calls())
}

func TestLoginIsFormEncoded(t *testing.T) {
	h := newHarness(t, "", false)
	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		json.NewEncoder(w).Encode(models.TokenResponse{
			AccessToken: "tok-for-" + r.PostForm.Get("username"),
			TokenType:   "bearer",
		})
	}

	resp, err := h.client.Login(context.Background(), "ada", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-for-ada", resp.AccessToken)
	assert.Equal(t, "application/x-www-form-urlencoded", h.api.last().ContentType)

	// Logging in returns the token without storing it
	assert.False(t, h.tokens.Has(context.Background(), auth.User))
}

func TestTogglePostCaretDecodesServerShape(t *testing.T) {
	h := newHarness(t, "", false)
	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts/12/caret", r.URL.Path)
		fmt.Fprint(w, `{"post_id": 12, "caret_count": 6, "has_caret": true}`)
	}

	got, err := h.client.TogglePostCaret(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, models.CaretToggle{PostID: 12, CaretCount: 6, HasCaret: true}, got)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	h := newHarness(t, "", true)
	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := h.client.Feed(ctx, 1)
		var apiErr *Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	}

	_, err := h.client.Feed(ctx, 1)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, KindTransient, KindOf(err))
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	h := newHarness(t, "", true)
	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}

	for i := 0; i < 10; i++ {
		_, err := h.client.PublicProfile(context.Background(), "nobody")
		assert.True(t, IsNotFound(err))
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindTransient, KindOf(errors.New("dial tcp: refused")))
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("wrapped: %w", ErrCircuitOpen)))
	assert.Equal(t, KindUnauthorized, KindOf(fmt.Errorf("x: %w", &Error{Status: 401})))
	assert.Equal(t, KindValidation, KindOf(&Error{Status: 400}))
	assert.Equal(t, KindTransient, KindOf(&Error{Status: 503}))
}

func TestLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 5))

	var disabled *Limiter
	assert.NoError(t, disabled.Wait(context.Background(), "x"))

	l := NewLimiter(1, 1)
	require.NoError(t, l.Wait(context.Background(), "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "a"))
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", false)
	require.NoError(t, h.tokens.Set(ctx, auth.User, "user-tok"))

	res := h.client.Ping(ctx)
	assert.True(t, res.Healthy)
	assert.Equal(t, "/healthz", h.api.last().Path)
	assert.Empty(t, h.api.last().Authorization)

	h.api.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	res = h.client.Ping(ctx)
	assert.True(t, res.Reachable)
	assert.False(t, res.Healthy)
	assert.NotEmpty(t, res.Error)

	h.server.Close()
	res = h.client.Ping(ctx)
	assert.False(t, res.Reachable)
}
