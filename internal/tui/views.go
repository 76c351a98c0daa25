package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/poll"
)

const (
	minSidebarWidth = 20
	maxSidebarWidth = 28
)

// renderLoginView renders the user and admin sign-in screens
func (a *App) renderLoginView() string {
	boxWidth := 50

	var b strings.Builder

	title := "Welcome to recach^"
	subtitle := "Sign in to continue"
	userLabel := "User:"
	if a.view == ViewAdminLogin {
		title = "recach^ admin console"
		subtitle = "Administrators only"
		userLabel = "Email:"
	}

	b.WriteString(a.styles.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(a.styles.Meta.Italic(true).Render(subtitle))
	b.WriteString("\n\n")

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(a.theme.Colors.Cyan)).
		Width(10)

	field := func(focused bool, view string) string {
		if focused {
			return a.styles.InputFocused.Width(34).Render(view)
		}
		return a.styles.InputField.Width(34).Render(view)
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render(userLabel), field(a.loginFocus == 0, a.loginUser.View())))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render("Password:"), field(a.loginFocus == 1, a.loginPassword.View())))
	b.WriteString("\n\n")

	if a.loggingIn {
		b.WriteString(a.styles.Info.Render("Signing in..."))
		b.WriteString("\n\n")
	} else if a.loginError != "" {
		b.WriteString(a.styles.Error.Bold(true).Render("⚠ " + a.loginError))
		b.WriteString("\n\n")
	}

	b.WriteString(a.styles.Meta.Render("Tab: Switch fields  •  Enter: Sign in  •  Ctrl+C: Quit"))

	box := a.styles.Border.
		BorderForeground(lipgloss.Color(a.theme.Colors.Purple)).
		Padding(1, 2).
		Width(boxWidth).
		Render(b.String())

	return lipgloss.Place(
		a.width,
		a.height,
		lipgloss.Center,
		lipgloss.Center,
		box,
		lipgloss.WithWhitespaceChars(" "),
	)
}

// updateLoginForm handles login form input
func (a *App) updateLoginForm(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(tea.KeyMsg); !ok {
		return nil
	}

	var cmd tea.Cmd
	if a.loginFocus == 0 {
		a.loginUser, cmd = a.loginUser.Update(msg)
	} else {
		a.loginPassword, cmd = a.loginPassword.Update(msg)
	}
	return cmd
}

// handleLoginSubmit signs in with the form values
func (a *App) handleLoginSubmit() tea.Cmd {
	user := strings.TrimSpace(a.loginUser.Value())
	password := a.loginPassword.Value()

	if user == "" || password == "" {
		a.loginError = "Please enter your credentials."
		return nil
	}
	if a.loggingIn {
		return nil
	}

	a.loginError = ""
	a.loggingIn = true

	scope := auth.User
	if a.view == ViewAdminLogin {
		scope = auth.Admin
	}

	rt, ctx := a.rt, a.ctx
	return func() tea.Msg {
		var (
			resp models.TokenResponse
			err  error
		)
		if scope == auth.Admin {
			resp, err = rt.client.AdminLogin(ctx, models.AdminCredentials{Email: user, Password: password})
		} else {
			resp, err = rt.client.Login(ctx, user, password)
		}
		if err == nil {
			err = rt.tokens.Set(ctx, scope, resp.AccessToken)
		}
		return loginResult{scope: scope, err: err}
	}
}

func (a *App) sidebarWidth() int {
	return min(max(a.width/5, minSidebarWidth), maxSidebarWidth)
}

// updateViewportSize updates viewport dimensions based on window size
func (a *App) updateViewportSize() {
	bodyWidth := a.width - a.sidebarWidth() - 2
	bodyHeight := a.height - 5 // input and status bar

	a.body = viewport.New(max(bodyWidth, 10), max(bodyHeight, 3))
	a.input.Width = max(bodyWidth-4, 10)
	a.updateBody()
}

// updateBody rebuilds the content of the main panel
func (a *App) updateBody() {
	if a.loginView() {
		return
	}
	a.body.SetContent(a.renderContent())
}

// renderMainView renders the signed-in interface
func (a *App) renderMainView() string {
	sidebar := a.renderSidebar(a.sidebarWidth(), a.height-1)

	main := lipgloss.JoinVertical(lipgloss.Left,
		a.body.View(),
		a.styles.InputFocused.Width(a.body.Width-2).Render(a.input.View()),
	)

	content := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	if toasts := a.renderToasts(); toasts != "" {
		content = lipgloss.JoinVertical(lipgloss.Right, toasts, content)
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, a.renderStatusBar())
}

// renderSidebar renders the navigation with notification badges
func (a *App) renderSidebar(width, height int) string {
	var b strings.Builder
	badges := a.rt.badgeSnapshot()

	b.WriteString(a.styles.Title.Render("recach^"))
	b.WriteString("\n")

	if a.view.Admin() {
		b.WriteString(a.styles.NavSelected.Render(ViewAdmin.String()))
		b.WriteString("\n")
	} else {
		for _, v := range sidebarViews {
			label := v.String()
			if v == ViewInbox && badges.Any() {
				label += " " + a.styles.Badge.Render("●")
			}
			if v == a.view {
				b.WriteString(a.styles.NavSelected.Width(width - 2).Render(label))
			} else {
				b.WriteString(a.styles.NavItem.Render(label))
			}
			b.WriteString("\n")
		}
	}

	if badges.Any() && !a.view.Admin() {
		b.WriteString("\n")
		for _, line := range badgeLines(badges) {
			b.WriteString(a.styles.Badge.Render("● " + line))
			b.WriteString("\n")
		}
	}

	return a.styles.Nav.
		Width(width).
		Height(max(height, 1)).
		Render(b.String())
}

func badgeLines(s notify.BadgeState) []string {
	var lines []string
	if s.Carets {
		lines = append(lines, "new carets")
	}
	if s.Contacts {
		lines = append(lines, "contact requests")
	}
	if s.Inbox {
		lines = append(lines, "unread inbox")
	}
	return lines
}

func (a *App) renderToasts() string {
	list := a.rt.toasts.List()
	if len(list) == 0 {
		return ""
	}

	var lines []string
	for _, t := range list {
		style := a.styles.Toast
		switch t.Accent {
		case notify.AccentAchievement:
			style = a.styles.ToastAchievement
		case notify.AccentRecommend:
			style = a.styles.ToastRecommend
		case notify.AccentError:
			style = a.styles.ToastError
		}
		lines = append(lines, style.Render(t.Message))
	}
	return lipgloss.JoinVertical(lipgloss.Right, lines...)
}

// renderStatusBar renders the bottom status bar
func (a *App) renderStatusBar() string {
	statusStyle := lipgloss.NewStyle().
		Background(lipgloss.Color(a.theme.Colors.Selection)).
		Foreground(lipgloss.Color(a.theme.Colors.Foreground)).
		Width(a.width).
		Padding(0, 1)

	left := a.view.String()
	if a.thread != nil {
		left += fmt.Sprintf(" › post #%d", a.thread.PostID())
	}

	right := "Tab: Views  |  /help  |  Ctrl+C: Quit"

	center := ""
	if a.statusMessage != "" {
		if a.statusError {
			center = a.styles.Error.Render(a.statusMessage)
		} else {
			center = a.styles.Info.Render(a.statusMessage)
		}
	}

	space := a.width - lipgloss.Width(left) - lipgloss.Width(right) - lipgloss.Width(center) - 4
	var bar string
	if space > 0 {
		leftPad := space / 2
		bar = left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", space-leftPad) + right
	} else {
		bar = left + "  " + center
	}
	return statusStyle.Render(bar)
}

// renderContent renders the active screen
func (a *App) renderContent() string {
	var b strings.Builder

	if msg := a.rt.current(a.view, a.thread).Error(); msg != "" {
		b.WriteString(a.styles.Error.Render(msg))
		b.WriteString("\n\n")
	}

	if a.profile != nil {
		a.writePublicProfile(&b, *a.profile)
		return b.String()
	}

	switch a.view {
	case ViewFeed:
		a.writeFeed(&b)
	case ViewCircle:
		if a.thread != nil {
			a.writeThread(&b)
		} else {
			a.writeCircle(&b)
		}
	case ViewLeaderboard:
		a.writeLeaderboard(&b)
	case ViewInbox:
		a.writeInbox(&b)
	case ViewProfile:
		a.writeProfile(&b)
	case ViewSearch:
		a.writeSearch(&b)
	case ViewForms:
		a.writeForms(&b)
	case ViewAdmin:
		a.writeAdmin(&b)
	}
	return b.String()
}

// pending reports whether a first load is still running
func pending[T any](s poll.State[T]) bool {
	return s.Loading && !s.Loaded
}

func (a *App) heading(b *strings.Builder, title string) {
	b.WriteString(a.styles.Title.Render(title))
	b.WriteString("\n")
}

func (a *App) placeholder(b *strings.Builder, text string) {
	b.WriteString(a.styles.Meta.Italic(true).Render(text))
	b.WriteString("\n")
}

func ago(t models.Timestamp) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t.Time)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func (a *App) writeFeed(b *strings.Builder) {
	a.heading(b, "Feed")
	state := a.rt.screens.feed.Items()
	if pending(state) {
		a.placeholder(b, "Loading...")
		return
	}
	if len(state.Value) == 0 {
		a.placeholder(b, "Nothing happened yet.")
		return
	}
	for _, item := range state.Value {
		line := item.Message
		if item.User != nil {
			line = a.styles.PostAuthor.Render(item.User.Name()) + "  " + line
		}
		b.WriteString(line + "  " + a.styles.Meta.Render(ago(item.Timestamp)))
		b.WriteString("\n")
	}
}

func (a *App) writeCircle(b *strings.Builder) {
	c := a.rt.screens.circle

	if stories := c.Reflections(); len(stories) > 0 {
		a.heading(b, "Reflections")
		for _, r := range stories {
			b.WriteString(a.styles.PostAuthor.Render(r.User.Name()) + ": " + r.Content + "  " + a.styles.Meta.Render(ago(r.CreatedAt)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	a.heading(b, "Circle")
	state := c.Posts()
	if pending(state) {
		a.placeholder(b, "Loading...")
		return
	}
	if len(state.Value) == 0 {
		a.placeholder(b, "No posts yet. Share one with /post <type> <text>.")
		return
	}
	for _, p := range state.Value {
		caret := "^"
		if p.HasCaret {
			caret = "^ (yours)"
		}
		b.WriteString(fmt.Sprintf("#%d %s  %s  %s\n",
			p.ID,
			a.styles.PostAuthor.Render(p.User.Name()),
			a.styles.PostType.Render(strings.ReplaceAll(string(p.Type), "_", " ")),
			a.styles.Meta.Render(ago(p.CreatedAt))))
		b.WriteString(a.styles.Body.Render(p.Content))
		b.WriteString("\n")
		b.WriteString(a.styles.Caret.Render(fmt.Sprintf("%d %s", p.CaretCount, caret)))
		b.WriteString("\n\n")
	}
}

func (a *App) writeThread(b *strings.Builder) {
	t := a.thread
	if post, ok := a.rt.screens.circle.Post(t.PostID()); ok {
		a.heading(b, fmt.Sprintf("%s: %s", post.User.Name(), post.Content))
	} else {
		a.heading(b, fmt.Sprintf("Post #%d", t.PostID()))
	}

	state := t.Replies()
	if pending(state) {
		a.placeholder(b, "Loading...")
		return
	}
	if len(state.Value) == 0 {
		a.placeholder(b, "No replies yet. Type to reply, Esc to close.")
		return
	}
	for _, r := range state.Value {
		meta := fmt.Sprintf("%d ^", r.CaretCount)
		if r.IsGiven {
			meta += " (yours)"
		}
		if r.OwnerReaction != "" && r.OwnerReaction != models.ReactionNone {
			meta += "  " + strings.ToLower(string(r.OwnerReaction))
		}
		b.WriteString(fmt.Sprintf("#%d %s [%s] %s  %s\n",
			r.ID,
			a.styles.PostAuthor.Render(r.User.Name()),
			r.Type,
			r.Message,
			a.styles.Caret.Render(meta)))
	}
}

func (a *App) writeLeaderboard(b *strings.Builder) {
	lb := a.rt.screens.leaderboard
	a.heading(b, "Leaderboard · "+string(lb.Kind()))
	state := lb.Rows()
	if pending(state) {
		a.placeholder(b, "Loading...")
		return
	}
	if len(state.Value) == 0 {
		a.placeholder(b, "No entries.")
		return
	}
	for _, row := range state.Value {
		b.WriteString(fmt.Sprintf("%3d. %-28s %s\n", row.Rank, row.User.Name(), score(row.Value())))
	}
}

func (a *App) writeInbox(b *strings.Builder) {
	in := a.rt.screens.inbox

	a.heading(b, "Carets")
	carets := in.Carets()
	switch {
	case pending(carets):
		a.placeholder(b, "Loading...")
	case len(carets.Value) == 0:
		a.placeholder(b, "No carets yet.")
	default:
		for _, n := range carets.Value {
			b.WriteString(fmt.Sprintf("%s gave your post a caret: %s  %s\n",
				a.styles.PostAuthor.Render(n.Giver.Name()),
				truncate(n.PostContent, 40),
				a.styles.Meta.Render(ago(n.CreatedAt))))
		}
	}

	b.WriteString("\n")
	a.heading(b, "Contact requests")
	requests := in.ContactRequests()
	if len(requests) == 0 {
		a.placeholder(b, "No contact requests.")
	}
	for _, req := range requests {
		id := int64(req.Payload.RequestID)
		line := fmt.Sprintf("#%d %s · %s %s · %s", id, req.Payload.RequesterName, req.Payload.CourseNumber, req.Payload.CourseName, req.Status())
		if contact, ok := in.Revealed(id); ok {
			line += "  " + a.styles.Success.Render(contact)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	a.heading(b, "Recommendation requests")
	recs := in.Recommendations()
	if len(recs.Value) == 0 {
		a.placeholder(b, "No pending requests.")
	}
	for _, r := range recs.Value {
		b.WriteString(fmt.Sprintf("#%d %s · %s · %s\n", r.ID, r.Requester.Name(), r.RecType, r.Reason))
	}

	if items := in.Items(); len(items) > 0 {
		b.WriteString("\n")
		a.heading(b, "Other")
		for _, item := range items {
			marker := " "
			if item.Status == models.InboxUnread {
				marker = a.styles.Badge.Render("●")
			}
			b.WriteString(fmt.Sprintf("%s %s  %s\n", marker, strings.ToLower(strings.ReplaceAll(string(item.Type), "_", " ")), a.styles.Meta.Render(ago(item.CreatedAt))))
		}
	}
}

func (a *App) writeProfile(b *strings.Builder) {
	p := a.rt.screens.profile
	state := p.Profile()
	if pending(state) {
		a.placeholder(b, "Loading...")
		return
	}
	if !p.Onboarded() {
		a.heading(b, "Profile")
		a.placeholder(b, "You have not set up your profile yet.")
		return
	}

	profile := state.Value
	a.heading(b, profile.FullName)
	if profile.Headline != "" {
		b.WriteString(profile.Headline + "\n")
	}
	if profile.Location != "" {
		b.WriteString(a.styles.Meta.Render(profile.Location) + "\n")
	}
	if profile.About != "" {
		b.WriteString("\n" + a.styles.Body.Render(profile.About) + "\n")
	}

	achievement, recommendation, carets := p.Scores()
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Achievement %s  ·  Recommendation %s  ·  Carets %d\n", score(achievement), score(recommendation), carets))
	if len(profile.TopSkills) > 0 {
		b.WriteString(a.styles.Meta.Render("Skills: "+strings.Join(profile.TopSkills, ", ")) + "\n")
	}
}

func (a *App) writeSearch(b *strings.Builder) {
	s := a.rt.screens.search
	a.heading(b, "Search")
	if s.Query() == "" {
		a.placeholder(b, "Type a name and press Enter.")
		return
	}
	state := s.Results()
	if state.Loading {
		a.placeholder(b, "Searching...")
	}
	if state.Loaded && len(state.Value) == 0 {
		a.placeholder(b, "No users found.")
	}
	for _, u := range state.Value {
		name := u.FullName
		if u.Username != "" {
			name += " ^" + u.Username
		}
		b.WriteString(fmt.Sprintf("%s  %s\n", a.styles.PostAuthor.Render(name), a.styles.Meta.Render(u.Headline)))
		b.WriteString(fmt.Sprintf("   achievement %s · recommendation %s\n", score(u.AchievementTotal), score(u.RecommendationTotal)))
	}
}

func (a *App) writePublicProfile(b *strings.Builder, u models.PublicUser) {
	a.heading(b, u.FullName+" ^"+u.Username)
	b.WriteString(fmt.Sprintf("Achievement %s  ·  Recommendation %s  ·  Carets %d\n",
		score(u.AchievementTotal), score(u.RecommendationTotal), u.CaretScore))
	for _, e := range u.VerifiedEducation {
		b.WriteString(a.styles.Success.Render("✓ ") + e.DegreeType + ", " + e.UniversityName + "\n")
	}
	for _, w := range u.VerifiedWork {
		b.WriteString(a.styles.Success.Render("✓ ") + w.Title + ", " + w.CompanyName + "\n")
	}
	if u.RecommenderCount > 0 {
		b.WriteString(fmt.Sprintf("\nRecommended by %d people\n", u.RecommenderCount))
	}
	b.WriteString("\n")
	a.placeholder(b, "Esc to go back.")
}

func (a *App) writeForms(b *strings.Builder) {
	f := a.rt.screens.forms
	a.heading(b, "Achievements")
	a.placeholder(b, "Submit entries with /education k=v ... or /work k=v ...")
	if status := f.Status(); status != "" {
		b.WriteString("\n" + a.styles.Success.Render(status) + "\n")
	}
	if remaining := f.Cooldown().Remaining(); remaining > 0 {
		b.WriteString(a.styles.Meta.Render(fmt.Sprintf("You can submit again in %ds.", remaining)) + "\n")
	}
}

func (a *App) writeAdmin(b *strings.Builder) {
	adm := a.rt.screens.admin
	filter := adm.Status()
	if filter == "" {
		filter = "ALL"
	}
	a.heading(b, "Verifications · "+filter)

	state := adm.Verifications()
	if pending(state) {
		a.placeholder(b, "Loading...")
		return
	}
	if len(state.Value) == 0 {
		a.placeholder(b, "Nothing to review.")
		return
	}
	for _, v := range state.Value {
		b.WriteString(fmt.Sprintf("#%d %s %d · %s · %s <%s>\n", v.ID, v.SubjectType, v.SubjectID, v.Status, v.ContactName, v.ContactEmail))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
