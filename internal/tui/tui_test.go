package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/config"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/storage"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		name    string
		args    []string
		raw     string
		wantErr bool
	}{
		{input: "/help", name: "help"},
		{input: "/CARET 12", name: "caret", args: []string{"12"}, raw: "12"},
		{input: "/approve 3 Great work | Shipped on time", name: "approve",
			args: []string{"3", "Great", "work", "|", "Shipped", "on", "time"}, raw: "3 Great work | Shipped on time"},
		{input: `/work company="Acme Corp" title=Engineer`, name: "work",
			args: []string{"company=Acme Corp", "title=Engineer"}, raw: `company="Acme Corp" title=Engineer`},
		{input: "  /search   ada  ", name: "search", args: []string{"ada"}, raw: "ada"},
		{input: "hello", wantErr: true},
		{input: "/", wantErr: true},
		{input: `/post "unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, cmd.Name)
			assert.Equal(t, tt.args, cmd.Args)
			assert.Equal(t, tt.raw, cmd.Raw)
		})
	}
}

func TestParseApproval(t *testing.T) {
	note := parseApproval([]string{"Great", "mentor", "|", "Helped", "me", "ship"})
	assert.Equal(t, models.ApprovalNote{Title: "Great mentor", Body: "Helped me ship"}, note)

	note = parseApproval([]string{"Title", "only"})
	assert.Equal(t, models.ApprovalNote{Title: "Title only"}, note)
}

func TestFormInputs(t *testing.T) {
	kv, err := parseKV([]string{"degree=BSc", "college=42", "gpa=3.7", "completed=true", "advisor=Ada", "advisor_email=ada@example.com"})
	require.NoError(t, err)

	in, err := educationInput(kv)
	require.NoError(t, err)
	assert.Equal(t, "BSc", in.DegreeType)
	assert.Equal(t, "42", in.CollegeID)
	assert.Equal(t, 3.7, in.GPA)
	assert.True(t, in.IsCompleted)
	assert.Equal(t, "ada@example.com", in.AdvisorEmail)

	_, err = educationInput(map[string]string{"gpa": "high"})
	assert.Error(t, err)

	_, err = parseKV([]string{"novalue"})
	assert.Error(t, err)

	w := workInput(map[string]string{"company": "Acme", "title": "Engineer", "current": "1"})
	assert.Equal(t, "Acme", w.CompanyName)
	assert.True(t, w.IsCurrent)
}

func TestViewFor(t *testing.T) {
	tests := map[string]View{
		"/login":                  ViewLogin,
		"/inbox":                  ViewInbox,
		"/inbox/":                 ViewInbox,
		"/leaderboard?kind=x":     ViewLeaderboard,
		"/admin":                  ViewAdmin,
		"/admin/login":            ViewAdminLogin,
		"/admin/verifications":    ViewAdmin,
		"/somewhere/else":         ViewFeed,
		ViewProfile.Path():        ViewProfile,
		ViewForms.Path():          ViewForms,
		ViewAdminLogin.Path():     ViewAdminLogin,
		ViewLeaderboard.Path():    ViewLeaderboard,
		ViewSearch.Path() + "#q":  ViewSearch,
		ViewCircle.Path() + "?x=": ViewCircle,
	}
	for path, want := range tests {
		assert.Equal(t, want, ViewFor(path), path)
	}
}

func TestRouterDeliversNavigationFirst(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	r.Changed()
	r.Changed()
	r.HardNavigate("/login")

	assert.Equal(t, NavigateMsg{Path: "/login", Hard: true}, r.Listen()())
	assert.Equal(t, refreshMsg{}, r.Listen()())

	done := make(chan any, 1)
	go func() { done <- r.Listen()() }()
	r.Replace("/feed")
	select {
	case msg := <-done:
		assert.Equal(t, NavigateMsg{Path: "/feed"}, msg)
	case <-time.After(time.Second):
		t.Fatal("navigation not delivered")
	}
}

func TestRouterCloseReleasesListener(t *testing.T) {
	r := NewRouter()
	done := make(chan any, 1)
	go func() { done <- r.Listen()() }()
	r.Close()
	r.Close()

	select {
	case msg := <-done:
		assert.Nil(t, msg)
	case <-time.After(time.Second):
		t.Fatal("listener not released")
	}
}

// apiStub answers every request with an empty list and records paths
type apiStub struct {
	mu    sync.Mutex
	paths []string
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("[]"))
}

func (s *apiStub) saw(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.paths {
		if strings.Contains(p, fragment) {
			return true
		}
	}
	return false
}

type appHarness struct {
	app    *App
	clock  *clock.Mock
	router *Router
	tokens *auth.Store
	stub   *apiStub
}

func newAppHarness(t *testing.T) *appHarness {
	t.Helper()

	stub := &apiStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	bus := events.NewBus()
	backend := storage.NewMemory()
	tokens := auth.NewStore(backend, bus, zerolog.Nop())
	router := NewRouter()
	clk := clock.NewMock()

	client, err := api.New(api.Options{
		BaseURL:   srv.URL,
		Timeout:   time.Second,
		Tokens:    tokens,
		Navigator: router,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	app := NewApp(Options{
		Client:  client,
		Router:  router,
		Tokens:  tokens,
		Backend: backend,
		Bus:     bus,
		Clock:   clk,
		Config:  config.Default(),
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(app.Close)

	return &appHarness{app: app, clock: clk, router: router, tokens: tokens, stub: stub}
}

func (h *appHarness) nextNavigation(t *testing.T) NavigateMsg {
	t.Helper()
	msg, ok := h.router.Listen()().(NavigateMsg)
	require.True(t, ok, "expected a navigation")
	return msg
}

func TestAppNavigation(t *testing.T) {
	h := newAppHarness(t)
	a := h.app

	_, cmd := a.Update(NavigateMsg{Path: "/leaderboard"})
	assert.NotNil(t, cmd)
	assert.Equal(t, ViewLeaderboard, a.view)
	assert.Same(t, a.rt.screens.leaderboard, a.mounted)

	_, _ = a.Update(NavigateMsg{Path: "/admin/login"})
	assert.Equal(t, ViewAdminLogin, a.view)
	assert.Equal(t, noScreen{}, a.mounted)

	a.statusMessage = "stale"
	_, _ = a.Update(NavigateMsg{Path: "/login", Hard: true})
	assert.Equal(t, ViewLogin, a.view)
	assert.Empty(t, a.statusMessage)
	assert.Contains(t, a.View(), "Welcome to recach^")
}

func TestCommandSwitchesLeaderboard(t *testing.T) {
	h := newAppHarness(t)
	cmd, err := ParseCommand("/lb achievements")
	require.NoError(t, err)

	res := h.app.handler.Execute(context.Background(), cmd, ViewFeed, nil)
	require.NoError(t, res.err)

	assert.Equal(t, models.LeaderboardAchievements, h.app.rt.screens.leaderboard.Kind())
	assert.Equal(t, NavigateMsg{Path: "/leaderboard"}, h.nextNavigation(t))
	assert.True(t, h.stub.saw("leaderboard"))

	cmd, _ = ParseCommand("/lb weekly")
	res = h.app.handler.Execute(context.Background(), cmd, ViewLeaderboard, nil)
	assert.Error(t, res.err)
}

func TestCommandLogout(t *testing.T) {
	h := newAppHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Set(ctx, auth.User, "user-token"))
	require.NoError(t, h.tokens.Set(ctx, auth.Admin, "admin-token"))

	cmd, _ := ParseCommand("/logout")

	res := h.app.handler.Execute(ctx, cmd, ViewAdmin, nil)
	require.NoError(t, res.err)
	assert.False(t, h.tokens.Has(ctx, auth.Admin))
	assert.True(t, h.tokens.Has(ctx, auth.User))
	assert.Equal(t, NavigateMsg{Path: "/admin/login"}, h.nextNavigation(t))

	res = h.app.handler.Execute(ctx, cmd, ViewFeed, nil)
	require.NoError(t, res.err)
	assert.False(t, h.tokens.Has(ctx, auth.User))
	assert.Equal(t, NavigateMsg{Path: "/login", Hard: true}, h.nextNavigation(t))
}

func TestCommandErrors(t *testing.T) {
	h := newAppHarness(t)
	ctx := context.Background()

	for _, input := range []string{"/nope", "/caret", "/caret abc", "/reply hi", "/verify approve", "/react 1"} {
		cmd, err := ParseCommand(input)
		require.NoError(t, err)
		res := h.app.handler.Execute(ctx, cmd, ViewCircle, nil)
		assert.Error(t, res.err, input)
	}

	cmd, _ := ParseCommand("/caret 5")
	res := h.app.handler.Execute(ctx, cmd, ViewCircle, nil)
	assert.ErrorContains(t, res.err, "login required")
}

func TestCommandResultShowsStatus(t *testing.T) {
	h := newAppHarness(t)
	a := h.app

	_, _ = a.Update(commandResult{status: "Posted."})
	assert.Equal(t, "Posted.", a.statusMessage)
	assert.False(t, a.statusError)

	_, _ = a.Update(commandResult{err: assert.AnError})
	assert.True(t, a.statusError)
}

func TestLateMountAfterNavigationIsDropped(t *testing.T) {
	h := newAppHarness(t)
	a := h.app
	feed, leaderboard := a.rt.screens.feed, a.rt.screens.leaderboard

	feedMount := a.navigate(NavigateMsg{Path: "/feed"})
	require.NotNil(t, feedMount)
	lbMount := a.navigate(NavigateMsg{Path: "/leaderboard"})
	require.NotNil(t, lbMount)

	msg, ok := feedMount().(mountedMsg)
	require.True(t, ok)
	assert.ErrorIs(t, msg.err, errSuperseded)
	assert.False(t, feed.Mounted())

	msg, ok = lbMount().(mountedMsg)
	require.True(t, ok)
	assert.NotErrorIs(t, msg.err, errSuperseded)
	assert.True(t, leaderboard.Mounted())

	a.unmountAll()
	assert.False(t, leaderboard.Mounted())
}

// screenStub records its mount state and runs during while mounting
type screenStub struct {
	noScreen
	mu      sync.Mutex
	mounted bool
	during  func()
}

func (s *screenStub) Mount(context.Context) error {
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()
	if s.during != nil {
		s.during()
	}
	return nil
}

func (s *screenStub) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = false
}

func (s *screenStub) isMounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func TestMountSlotUndoesRacingMount(t *testing.T) {
	var slot mountSlot
	screen := &screenStub{}
	screen.during = slot.invalidate

	msg := slot.mount(context.Background(), ViewInbox, screen)().(mountedMsg)
	assert.ErrorIs(t, msg.err, errSuperseded)
	assert.False(t, screen.isMounted())

	screen.during = nil
	msg = slot.mount(context.Background(), ViewInbox, screen)().(mountedMsg)
	assert.NoError(t, msg.err)
	assert.True(t, screen.isMounted())
}

func TestSearchViewSearchesAsYouType(t *testing.T) {
	h := newAppHarness(t)
	a := h.app
	search := a.rt.screens.search

	_, _ = a.Update(NavigateMsg{Path: "/search"})
	require.Equal(t, ViewSearch, a.view)

	for _, r := range "ada" {
		_, _ = a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	require.Equal(t, "ada", a.input.Value())

	h.clock.Add(time.Second)
	require.Eventually(t, func() bool { return h.stub.saw("/users/search") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ada", search.Query())
}
