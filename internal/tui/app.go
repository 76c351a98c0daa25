package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/config"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/screens"
	"github.com/recach/recach/internal/session"
	"github.com/recach/recach/internal/storage"
	"github.com/recach/recach/internal/themes"
)

// Options wires the application to its collaborators
type Options struct {
	Client  *api.Client
	Router  *Router
	Tokens  *auth.Store
	Backend storage.Backend
	Bus     *events.Bus
	Clock   clock.Clock
	Config  *config.Config
	Metrics *metrics.Registry
	Theme   *themes.Theme
	Logger  zerolog.Logger
}

// mountable is what the app needs from a screen
type mountable interface {
	Mount(ctx context.Context) error
	Unmount()
	Refresh(ctx context.Context) error
	Error() string
}

type noScreen struct{}

func (noScreen) Mount(context.Context) error   { return nil }
func (noScreen) Unmount()                      {}
func (noScreen) Refresh(context.Context) error { return nil }
func (noScreen) Error() string                 { return "" }

type screenSet struct {
	feed        *screens.Feed
	circle      *screens.Circle
	leaderboard *screens.Leaderboard
	inbox       *screens.Inbox
	profile     *screens.Profile
	search      *screens.Search
	forms       *screens.Forms
	admin       *screens.Admin
}

// runtime is the state shared with command goroutines. Everything in it is
// safe for concurrent use.
type runtime struct {
	client  *api.Client
	tokens  *auth.Store
	router  *Router
	toasts  *notify.Toasts
	badges  *notify.Badges
	monitor *session.Monitor
	screens screenSet
	logger  zerolog.Logger

	badgeMu    sync.Mutex
	badgeState notify.BadgeState

	// view mounts the routed screen, thread the open reply thread
	view   mountSlot
	thread mountSlot
}

// errSuperseded reports a mount that lost to a later navigation
var errSuperseded = errors.New("mount superseded")

// mountSlot orders the mounts of one place on screen. Every teardown bumps
// the generation; a mount issued under an older generation is skipped, or
// undone when the teardown raced with it.
type mountSlot struct {
	mu  sync.Mutex
	gen atomic.Uint64
}

func (s *mountSlot) invalidate() {
	s.gen.Add(1)
}

func (s *mountSlot) mount(ctx context.Context, view View, screen mountable) tea.Cmd {
	gen := s.gen.Load()
	return func() tea.Msg {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen.Load() != gen {
			return mountedMsg{view: view, err: errSuperseded}
		}
		err := screen.Mount(ctx)
		if s.gen.Load() != gen {
			screen.Unmount()
			err = errSuperseded
		}
		return mountedMsg{view: view, err: err}
	}
}

func (rt *runtime) screen(v View) mountable {
	s := rt.screens
	switch v {
	case ViewFeed:
		return s.feed
	case ViewCircle:
		return s.circle
	case ViewLeaderboard:
		return s.leaderboard
	case ViewInbox:
		return s.inbox
	case ViewProfile:
		return s.profile
	case ViewSearch:
		return s.search
	case ViewForms:
		return s.forms
	case ViewAdmin:
		return s.admin
	default:
		return noScreen{}
	}
}

// current is the screen commands act on: the open thread, else the view
func (rt *runtime) current(v View, thread *screens.Thread) mountable {
	if thread != nil {
		return thread
	}
	return rt.screen(v)
}

func (rt *runtime) setBadges(state notify.BadgeState) {
	rt.badgeMu.Lock()
	rt.badgeState = state
	rt.badgeMu.Unlock()
	rt.router.Changed()
}

func (rt *runtime) badgeSnapshot() notify.BadgeState {
	rt.badgeMu.Lock()
	defer rt.badgeMu.Unlock()
	return rt.badgeState
}

// App represents the main application state
type App struct {
	// Window dimensions
	width  int
	height int

	view View
	rt   *runtime

	handler *CommandHandler
	ctx     context.Context
	cancel  context.CancelFunc

	// Theme
	theme  *themes.Theme
	styles *themes.Styles

	// mounted is the screen currently polling, thread its open reply thread
	mounted mountable
	thread  *screens.Thread
	profile *models.PublicUser

	// UI components
	input textinput.Model
	body  viewport.Model

	// Login form
	loginUser     textinput.Model
	loginPassword textinput.Model
	loginFocus    int
	loginError    string
	loggingIn     bool

	// Status message
	statusMessage string
	statusError   bool
}

// NewApp creates a new application instance
func NewApp(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger.With().Str("component", "tui").Logger()

	toasts := notify.NewToasts(clk, notify.DefaultToastTTL)
	watermark := notify.NewWatermark(opts.Backend, opts.Bus, opts.Logger)
	tracker := notify.NewScoreTracker(opts.Backend, toasts, opts.Logger)

	deps := screens.Deps{
		Tokens:    opts.Tokens,
		Bus:       opts.Bus,
		Clock:     clk,
		Navigator: opts.Router,
		Toasts:    toasts,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger,
	}
	guard := func() *session.Guard {
		return session.NewGuard(opts.Tokens, opts.Client, opts.Router, clk, cfg.Session.ValidateInterval.Duration, opts.Logger)
	}

	p := cfg.Polling
	rt := &runtime{
		client: opts.Client,
		tokens: opts.Tokens,
		router: opts.Router,
		toasts: toasts,
		logger: logger,
		badges: notify.NewBadges(notify.BadgesConfig{
			Source:    opts.Client,
			Tokens:    opts.Tokens,
			Watermark: watermark,
			Bus:       opts.Bus,
			Clock:     clk,
			Interval:  p.Badge.Duration,
			Metrics:   opts.Metrics,
			Logger:    opts.Logger,
		}),
		monitor: session.NewMonitor(opts.Tokens, opts.Router, opts.Bus, clk, cfg.Session.IdleTimeout.Duration, opts.Logger),
		screens: screenSet{
			feed:        screens.NewFeed(opts.Client, deps, p.Feed.Duration),
			circle:      screens.NewCircle(opts.Client, deps, p.Circle.Duration, p.Reflections.Duration),
			leaderboard: screens.NewLeaderboard(opts.Client, deps, p.Leaderboard.Duration, models.LeaderboardCombined),
			inbox:       screens.NewInbox(opts.Client, watermark, guard(), deps, p.Inbox.Duration),
			profile:     screens.NewProfile(opts.Client, tracker, guard(), deps, p.Profile.Duration),
			search:      screens.NewSearch(opts.Client, deps, p.Search.Duration),
			forms:       screens.NewForms(opts.Client, tracker, guard(), deps, cfg.Forms.Cooldown.Duration),
			admin:       screens.NewAdmin(opts.Client, deps, p.Inbox.Duration),
		},
	}

	// Screen and toast changes arrive on arbitrary goroutines
	for _, v := range sidebarViews {
		if s, ok := rt.screen(v).(interface{ OnChange(func()) }); ok {
			s.OnChange(rt.router.Changed)
		}
	}
	rt.screens.admin.OnChange(rt.router.Changed)
	toasts.OnChange(rt.router.Changed)
	rt.badges.OnChange(rt.setBadges)

	theme := opts.Theme
	if theme == nil {
		theme = themes.GetDefaultTheme()
	}

	input := textinput.New()
	input.Placeholder = "Type /help for commands..."
	input.CharLimit = 2000
	input.Width = 50
	input.Focus()

	loginUser := textinput.New()
	loginUser.Placeholder = "Username or email"
	loginUser.Focus()

	loginPassword := textinput.New()
	loginPassword.Placeholder = "Password"
	loginPassword.EchoMode = textinput.EchoPassword

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		view:          ViewLogin,
		rt:            rt,
		handler:       newCommandHandler(rt),
		ctx:           ctx,
		cancel:        cancel,
		theme:         theme,
		styles:        theme.BuildStyles(),
		mounted:       noScreen{},
		input:         input,
		loginUser:     loginUser,
		loginPassword: loginPassword,
	}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	a.rt.monitor.Start()
	rt, ctx := a.rt, a.ctx
	return tea.Batch(
		textinput.Blink,
		a.rt.router.Listen(),
		func() tea.Msg {
			if err := rt.badges.Mount(ctx); err != nil {
				rt.logger.Debug().Err(err).Msg("initial badge load failed")
			}
			return nil
		},
		func() tea.Msg {
			if rt.tokens.Has(ctx, auth.User) {
				return NavigateMsg{Path: ViewFeed.Path()}
			}
			return NavigateMsg{Path: ViewLogin.Path()}
		},
	)
}

// Close stops every background activity
func (a *App) Close() {
	a.unmountAll()
	a.rt.badges.Unmount()
	a.rt.monitor.Stop()
	a.rt.toasts.Close()
	a.rt.router.Close()
	a.cancel()
}

// --- Message types for tea.Cmd ---

// mountedMsg reports the outcome of mounting the screen of view
type mountedMsg struct {
	view View
	err  error
}

// loginResult reports a finished sign-in attempt
type loginResult struct {
	scope auth.Scope
	err   error
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		a.rt.monitor.Touch(session.KeyDown)
		if cmd := a.handleKeyPress(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		a.rt.monitor.Touch(mouseActivity(msg))
		var cmd tea.Cmd
		a.body, cmd = a.body.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewportSize()

	case NavigateMsg:
		cmds = append(cmds, a.navigate(msg), a.rt.router.Listen())

	case refreshMsg:
		cmds = append(cmds, a.rt.router.Listen())

	case mountedMsg:
		if msg.err != nil && !errors.Is(msg.err, screens.ErrRedirected) && !errors.Is(msg.err, errSuperseded) {
			a.rt.logger.Debug().Err(msg.err).Stringer("view", msg.view).Msg("first load failed")
		}

	case loginResult:
		a.loggingIn = false
		if msg.err != nil {
			a.loginError = api.Message(msg.err, "Unable to sign in.")
			break
		}
		a.loginError = ""
		a.loginPassword.Reset()
		if msg.scope == auth.Admin {
			a.rt.router.Replace(ViewAdmin.Path())
		} else {
			a.rt.router.Replace(ViewFeed.Path())
		}

	case commandResult:
		cmds = append(cmds, a.applyResult(msg))
	}

	// Update focused component
	switch {
	case a.loginView():
		cmds = append(cmds, a.updateLoginForm(msg))
	default:
		if _, ok := msg.(tea.KeyMsg); ok {
			before := a.input.Value()
			var cmd tea.Cmd
			a.input, cmd = a.input.Update(msg)
			cmds = append(cmds, cmd)
			a.searchAsYouType(before)
		}
	}

	a.updateBody()
	return a, tea.Batch(cmds...)
}

// searchAsYouType feeds the input to the search screen while it is shown
func (a *App) searchAsYouType(before string) {
	text := a.input.Value()
	if a.view != ViewSearch || a.thread != nil || text == before || strings.HasPrefix(text, "/") {
		return
	}
	a.rt.screens.search.Type(a.ctx, text)
}

func mouseActivity(msg tea.MouseMsg) session.Activity {
	switch {
	case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown:
		return session.Scroll
	case msg.Action == tea.MouseActionPress:
		return session.PointerDown
	default:
		return session.PointerMove
	}
}

func (a *App) loginView() bool {
	return a.view == ViewLogin || a.view == ViewAdminLogin
}

// navigate switches views. A hard navigation tears every screen down and
// forgets view state, like a page reload.
func (a *App) navigate(msg NavigateMsg) tea.Cmd {
	target := ViewFor(msg.Path)

	if msg.Hard {
		a.unmountAll()
		a.profile = nil
		a.input.Reset()
		a.statusMessage = ""
		a.statusError = false
		a.loginPassword.Reset()
	} else if target == a.view {
		return nil
	}

	a.unmountAll()
	a.view = target
	a.rt.monitor.SetAdmin(target.Admin())
	a.body.GotoTop()

	if a.loginView() {
		a.loginFocus = 0
		a.loginUser.Focus()
		a.loginPassword.Blur()
		return nil
	}

	screen := a.rt.screen(target)
	a.mounted = screen
	return a.rt.view.mount(a.ctx, target, screen)
}

func (a *App) unmountAll() {
	a.closeThread()
	a.rt.view.invalidate()
	a.mounted.Unmount()
	a.mounted = noScreen{}
}

func (a *App) closeThread() {
	a.rt.thread.invalidate()
	if a.thread != nil {
		a.thread.Unmount()
		a.thread = nil
	}
}

func (a *App) applyResult(res commandResult) tea.Cmd {
	var cmd tea.Cmd

	switch {
	case res.err != nil:
		a.statusMessage = res.err.Error()
		a.statusError = true
	case res.status != "":
		a.statusMessage = res.status
		a.statusError = false
	}

	if res.theme != nil {
		a.SetTheme(res.theme)
	}
	if res.profile != nil {
		a.profile = res.profile
	}
	if res.closeThread {
		a.closeThread()
	}
	if res.thread != nil {
		// Switch first: leaving a view closes its thread
		if a.view != ViewCircle {
			cmd = a.navigate(NavigateMsg{Path: ViewCircle.Path()})
		}
		a.closeThread()
		a.thread = res.thread
		a.thread.OnChange(a.rt.router.Changed)
		cmd = tea.Batch(cmd, a.rt.thread.mount(a.ctx, ViewCircle, a.thread))
	}
	return cmd
}

// handleKeyPress handles keyboard input
func (a *App) handleKeyPress(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		a.Close()
		return tea.Quit

	case "tab":
		if a.loginView() {
			a.cycleLoginFocus()
			return nil
		}
		a.cycleView(1)
		return nil

	case "shift+tab":
		if !a.loginView() {
			a.cycleView(-1)
		}
		return nil

	case "enter":
		if a.loginView() {
			return a.handleLoginSubmit()
		}
		return a.handleSubmit()

	case "esc":
		a.closeThread()
		a.profile = nil

	case "pgup":
		a.body.HalfViewUp()

	case "pgdown":
		a.body.HalfViewDown()

	case "ctrl+a":
		if !a.view.Admin() {
			a.rt.router.Replace(ViewAdmin.Path())
		}
	}

	return nil
}

func (a *App) cycleLoginFocus() {
	a.loginFocus = (a.loginFocus + 1) % 2
	if a.loginFocus == 0 {
		a.loginUser.Focus()
		a.loginPassword.Blur()
	} else {
		a.loginUser.Blur()
		a.loginPassword.Focus()
	}
}

// cycleView moves through the sidebar
func (a *App) cycleView(delta int) {
	idx := 0
	for i, v := range sidebarViews {
		if v == a.view {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(sidebarViews)) % len(sidebarViews)
	a.rt.router.Replace(sidebarViews[idx].Path())
}

// handleSubmit runs a slash command, or treats plain text as a search or a
// reply depending on the view
func (a *App) handleSubmit() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return nil
	}
	a.input.Reset()

	var cmd *Command
	switch {
	case strings.HasPrefix(text, "/"):
		parsed, err := ParseCommand(text)
		if err != nil {
			a.statusMessage = err.Error()
			a.statusError = true
			return nil
		}
		cmd = parsed
	case a.thread != nil:
		cmd = &Command{Name: "reply", Args: strings.Fields(text), Raw: text}
	case a.view == ViewSearch:
		cmd = &Command{Name: "search", Args: strings.Fields(text), Raw: text}
	default:
		a.statusMessage = "Commands start with /. Try /help."
		a.statusError = true
		return nil
	}

	handler, ctx, view, thread := a.handler, a.ctx, a.view, a.thread
	return func() tea.Msg {
		return handler.Execute(ctx, cmd, view, thread)
	}
}

// SetTheme sets the application theme
func (a *App) SetTheme(theme *themes.Theme) {
	a.theme = theme
	a.styles = theme.BuildStyles()
}

// View implements tea.Model
func (a *App) View() string {
	if a.loginView() {
		return a.renderLoginView()
	}
	return a.renderMainView()
}
