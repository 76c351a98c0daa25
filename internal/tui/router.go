package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// View represents the screens of the application
type View int

const (
	ViewLogin View = iota
	ViewFeed
	ViewCircle
	ViewLeaderboard
	ViewInbox
	ViewProfile
	ViewSearch
	ViewForms
	ViewAdminLogin
	ViewAdmin
)

var routes = map[string]View{
	"/login":               ViewLogin,
	"/feed":                ViewFeed,
	"/circle":              ViewCircle,
	"/leaderboard":         ViewLeaderboard,
	"/inbox":               ViewInbox,
	"/profile":             ViewProfile,
	"/search":              ViewSearch,
	"/achievements":        ViewForms,
	"/admin/login":         ViewAdminLogin,
	"/admin/verifications": ViewAdmin,
}

// sidebarViews is the navigation order of the sidebar
var sidebarViews = []View{ViewFeed, ViewCircle, ViewLeaderboard, ViewInbox, ViewProfile, ViewSearch, ViewForms}

// ViewFor resolves a route path. Query strings are ignored; unknown paths
// land on the feed.
func ViewFor(path string) View {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")
	if path == "/admin" {
		return ViewAdmin
	}
	if v, ok := routes[path]; ok {
		return v
	}
	return ViewFeed
}

// Path returns the route of v
func (v View) Path() string {
	for path, view := range routes {
		if view == v {
			return path
		}
	}
	return "/feed"
}

func (v View) String() string {
	switch v {
	case ViewLogin:
		return "Login"
	case ViewFeed:
		return "Feed"
	case ViewCircle:
		return "Circle"
	case ViewLeaderboard:
		return "Leaderboard"
	case ViewInbox:
		return "Inbox"
	case ViewProfile:
		return "Profile"
	case ViewSearch:
		return "Search"
	case ViewForms:
		return "Achievements"
	case ViewAdminLogin:
		return "Admin login"
	case ViewAdmin:
		return "Verifications"
	default:
		return "Unknown"
	}
}

// Admin reports whether v belongs to the admin console
func (v View) Admin() bool {
	return v == ViewAdminLogin || v == ViewAdmin
}

// NavigateMsg asks the app to switch views. Hard navigations tear down every
// mounted screen first.
type NavigateMsg struct {
	Path string
	Hard bool
}

// refreshMsg means some screen state changed and the view should re-render
type refreshMsg struct{}

// Router is the Navigator of the terminal UI. It may be called from any
// goroutine; navigations and change notices are queued for the bubbletea
// loop, which drains them through Listen.
type Router struct {
	navs    chan NavigateMsg
	changes chan struct{}
	done    chan struct{}
}

// NewRouter creates a router with room for a burst of navigations
func NewRouter() *Router {
	return &Router{
		navs:    make(chan NavigateMsg, 32),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (r *Router) Replace(path string) {
	r.navigate(NavigateMsg{Path: path})
}

func (r *Router) HardNavigate(path string) {
	r.navigate(NavigateMsg{Path: path, Hard: true})
}

func (r *Router) navigate(msg NavigateMsg) {
	select {
	case r.navs <- msg:
	case <-r.done:
	}
}

// Changed schedules a re-render. Notices coalesce while one is pending.
func (r *Router) Changed() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// Close releases goroutines blocked on a navigation
func (r *Router) Close() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Listen waits for the next navigation or change notice. Navigations are
// delivered first.
func (r *Router) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-r.navs:
			return msg
		default:
		}

		select {
		case msg := <-r.navs:
			return msg
		case <-r.changes:
			return refreshMsg{}
		case <-r.done:
			return nil
		}
	}
}
