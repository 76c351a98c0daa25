package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/screens"
	"github.com/recach/recach/internal/themes"
)

// Command represents a parsed slash command
type Command struct {
	Name string
	Args []string

	// Raw is everything after the command name, untouched
	Raw string
}

// ParseCommand parses a slash command string into a Command struct.
// Double-quoted arguments may contain spaces.
func ParseCommand(input string) (*Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil, errors.New("not a command")
	}

	name, raw, _ := strings.Cut(input[1:], " ")
	if name == "" {
		return nil, errors.New("empty command")
	}

	args, err := splitArgs(raw)
	if err != nil {
		return nil, err
	}

	return &Command{
		Name: strings.ToLower(name),
		Args: args,
		Raw:  strings.TrimSpace(raw),
	}, nil
}

func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case r == ' ' && !quoted:
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

// parseKV reads key=value arguments
func parseKV(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseID(args []string, usage string) (int64, error) {
	if len(args) < 1 {
		return 0, errors.New(usage)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

// parseApproval splits "title | body"
func parseApproval(args []string) models.ApprovalNote {
	title, body, _ := strings.Cut(strings.Join(args, " "), "|")
	return models.ApprovalNote{Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)}
}

func educationInput(kv map[string]string) (models.EducationInput, error) {
	in := models.EducationInput{
		DegreeType:   kv["degree"],
		CollegeID:    kv["college"],
		StartDate:    kv["start"],
		EndDate:      kv["end"],
		IsCompleted:  parseBool(kv["completed"]),
		AdvisorName:  kv["advisor"],
		AdvisorEmail: kv["advisor_email"],
		AdvisorPhone: kv["advisor_phone"],
	}
	if v, ok := kv["gpa"]; ok {
		gpa, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, fmt.Errorf("invalid gpa %q", v)
		}
		in.GPA = gpa
	}
	return in, nil
}

func workInput(kv map[string]string) models.WorkInput {
	return models.WorkInput{
		CompanyName:     kv["company"],
		Title:           kv["title"],
		EmploymentType:  kv["type"],
		IsCurrent:       parseBool(kv["current"]),
		StartDate:       kv["start"],
		EndDate:         kv["end"],
		SupervisorName:  kv["supervisor"],
		SupervisorEmail: kv["supervisor_email"],
		SupervisorPhone: kv["supervisor_phone"],
	}
}

// commandResult is delivered to the bubbletea loop once a command finishes
type commandResult struct {
	status string
	err    error

	thread      *screens.Thread
	closeThread bool
	theme       *themes.Theme
	profile     *models.PublicUser
}

// CommandHandler handles slash command execution. It runs off the UI
// goroutine and only touches the screens, which are safe for concurrent use.
type CommandHandler struct {
	rt *runtime
}

// NewCommandHandler creates a new command handler
func newCommandHandler(rt *runtime) *CommandHandler {
	return &CommandHandler{rt: rt}
}

// Execute executes a parsed command in the context of the current view
func (ch *CommandHandler) Execute(ctx context.Context, cmd *Command, view View, thread *screens.Thread) commandResult {
	status, res, err := ch.execute(ctx, cmd, view, thread)
	res.status = status
	res.err = err
	return res
}

func (ch *CommandHandler) execute(ctx context.Context, cmd *Command, view View, thread *screens.Thread) (string, commandResult, error) {
	var res commandResult
	s := ch.rt.screens

	switch cmd.Name {
	case "help":
		return helpText(), res, nil

	case "go":
		if len(cmd.Args) < 1 {
			return "", res, errors.New("usage: /go <feed|circle|leaderboard|inbox|profile|search|achievements|admin>")
		}
		ch.rt.router.Replace("/" + strings.TrimPrefix(cmd.Args[0], "/"))
		return "", res, nil

	case "refresh":
		return "Refreshed.", res, ch.rt.current(view, thread).Refresh(ctx)

	case "caret":
		id, err := parseID(cmd.Args, "usage: /caret <post id>")
		if err != nil {
			return "", res, err
		}
		return "", res, s.circle.ToggleCaret(ctx, id)

	case "post":
		if len(cmd.Args) < 2 {
			return "", res, errors.New("usage: /post <type> <text>")
		}
		in := models.PostInput{Type: models.PostType(cmd.Args[0]), Content: strings.Join(cmd.Args[1:], " ")}
		return "Posted.", res, s.circle.CreatePost(ctx, in)

	case "edit":
		id, err := parseID(cmd.Args, "usage: /edit <post id> <type> <text>")
		if err != nil {
			return "", res, err
		}
		if len(cmd.Args) < 3 {
			return "", res, errors.New("usage: /edit <post id> <type> <text>")
		}
		in := models.PostInput{Type: models.PostType(cmd.Args[1]), Content: strings.Join(cmd.Args[2:], " ")}
		return "Post updated.", res, s.circle.EditPost(ctx, id, in)

	case "delete":
		id, err := parseID(cmd.Args, "usage: /delete <post id>")
		if err != nil {
			return "", res, err
		}
		return "Post deleted.", res, s.circle.DeletePost(ctx, id)

	case "reflect":
		if cmd.Raw == "" {
			return "", res, errors.New("usage: /reflect <text>")
		}
		return "Reflection shared.", res, s.circle.CreateReflection(ctx, cmd.Raw)

	case "thread":
		id, err := parseID(cmd.Args, "usage: /thread <post id>")
		if err != nil {
			return "", res, err
		}
		res.thread = s.circle.Thread(id)
		return fmt.Sprintf("Opened replies of post #%d.", id), res, nil

	case "close":
		res.closeThread = true
		return "", res, nil

	case "reply":
		if thread == nil {
			return "", res, errors.New("open a thread first: /thread <post id>")
		}
		in := models.ReplyInput{Type: models.ReplyComment, Message: cmd.Raw}
		if len(cmd.Args) > 1 && (cmd.Args[0] == string(models.ReplyQuestion) || cmd.Args[0] == string(models.ReplyComment)) {
			in.Type = models.ReplyType(cmd.Args[0])
			in.Message = strings.Join(cmd.Args[1:], " ")
		}
		return "Reply sent.", res, thread.Reply(ctx, in)

	case "rcaret":
		if thread == nil {
			return "", res, errors.New("open a thread first: /thread <post id>")
		}
		id, err := parseID(cmd.Args, "usage: /rcaret <reply id>")
		if err != nil {
			return "", res, err
		}
		return "", res, thread.ToggleReplyCaret(ctx, id)

	case "react":
		if thread == nil {
			return "", res, errors.New("open a thread first: /thread <post id>")
		}
		id, err := parseID(cmd.Args, "usage: /react <reply id> <heart|fire|laugh|none>")
		if err != nil {
			return "", res, err
		}
		if len(cmd.Args) < 2 {
			return "", res, errors.New("usage: /react <reply id> <heart|fire|laugh|none>")
		}
		return "", res, thread.SetReaction(ctx, id, models.Reaction(strings.ToUpper(cmd.Args[1])))

	case "accept", "ignore":
		id, err := parseID(cmd.Args, fmt.Sprintf("usage: /%s <request id>", cmd.Name))
		if err != nil {
			return "", res, err
		}
		if cmd.Name == "accept" {
			return "Request accepted.", res, s.inbox.Accept(ctx, id)
		}
		return "Request ignored.", res, s.inbox.Ignore(ctx, id)

	case "reveal":
		id, err := parseID(cmd.Args, "usage: /reveal <request id>")
		if err != nil {
			return "", res, err
		}
		contact, err := s.inbox.Reveal(ctx, id)
		if err != nil {
			return "", res, err
		}
		return "Contact: " + contact, res, nil

	case "approve":
		id, err := parseID(cmd.Args, "usage: /approve <id> <title> | <body>")
		if err != nil {
			return "", res, err
		}
		return "Recommendation approved.", res, s.inbox.Approve(ctx, id, parseApproval(cmd.Args[1:]))

	case "reject":
		id, err := parseID(cmd.Args, "usage: /reject <id>")
		if err != nil {
			return "", res, err
		}
		return "Recommendation rejected.", res, s.inbox.Reject(ctx, id)

	case "lb":
		if len(cmd.Args) < 1 {
			return "", res, errors.New("usage: /lb <recommendations|achievements|combined>")
		}
		if view != ViewLeaderboard {
			ch.rt.router.Replace(ViewLeaderboard.Path())
		}
		return "", res, s.leaderboard.SetKind(ctx, models.LeaderboardKind(strings.ToLower(cmd.Args[0])))

	case "search":
		if view != ViewSearch {
			ch.rt.router.Replace(ViewSearch.Path())
		}
		return "", res, s.search.SetQuery(ctx, cmd.Raw)

	case "user":
		if len(cmd.Args) < 1 {
			return "", res, errors.New("usage: /user <username>")
		}
		user, err := s.search.PublicProfile(ctx, strings.TrimPrefix(cmd.Args[0], "^"))
		if err != nil {
			return "", res, err
		}
		res.profile = &user
		return "", res, nil

	case "recommend":
		if len(cmd.Args) < 2 {
			return "", res, errors.New("usage: /recommend <username> <type> [reason]")
		}
		req := models.RecommendationRequest{
			RecommenderUsername: strings.TrimPrefix(cmd.Args[0], "^"),
			RecType:             cmd.Args[1],
			Reason:              strings.Join(cmd.Args[2:], " "),
		}
		return "Recommendation requested.", res, s.search.RequestRecommendation(ctx, req)

	case "verify":
		if len(cmd.Args) < 2 {
			return "", res, errors.New("usage: /verify <approve|reject> <id> [notes]")
		}
		id, err := parseID(cmd.Args[1:], "usage: /verify <approve|reject> <id> [notes]")
		if err != nil {
			return "", res, err
		}
		notes := strings.Join(cmd.Args[2:], " ")
		switch strings.ToLower(cmd.Args[0]) {
		case "approve":
			return "Verification approved.", res, s.admin.Approve(ctx, id, notes)
		case "reject":
			return "Verification rejected.", res, s.admin.Reject(ctx, id, notes)
		}
		return "", res, fmt.Errorf("unknown decision %q", cmd.Args[0])

	case "status":
		if len(cmd.Args) < 1 {
			return "", res, errors.New("usage: /status <PENDING|APPROVED|REJECTED|ALL>")
		}
		status := strings.ToUpper(cmd.Args[0])
		if status == "ALL" {
			status = ""
		}
		return "", res, s.admin.SetStatus(ctx, status)

	case "education":
		kv, err := parseKV(cmd.Args)
		if err != nil {
			return "", res, err
		}
		in, err := educationInput(kv)
		if err != nil {
			return "", res, err
		}
		out, err := s.forms.SubmitEducation(ctx, in)
		if err != nil {
			return "", res, err
		}
		return fmt.Sprintf("Education entry submitted (score %s).", strconv.FormatFloat(out.Score.Total, 'f', -1, 64)), res, nil

	case "work":
		kv, err := parseKV(cmd.Args)
		if err != nil {
			return "", res, err
		}
		out, err := s.forms.SubmitWork(ctx, workInput(kv))
		if err != nil {
			return "", res, err
		}
		return fmt.Sprintf("Work entry submitted (score %s).", strconv.FormatFloat(out.Score.Total, 'f', -1, 64)), res, nil

	case "theme":
		if len(cmd.Args) < 1 {
			return "Themes: " + strings.Join(themes.ListAvailableThemes(), ", "), res, nil
		}
		t, err := themes.GetTheme(cmd.Args[0])
		if err != nil {
			return "", res, err
		}
		res.theme = t
		return fmt.Sprintf("Theme set to %q", t.Meta.Name), res, nil

	case "logout":
		if view.Admin() {
			if err := ch.rt.tokens.Clear(ctx, auth.Admin); err != nil {
				return "", res, err
			}
			ch.rt.router.Replace(auth.Admin.LoginPath())
			return "Signed out of the admin console.", res, nil
		}
		if err := ch.rt.tokens.Clear(ctx, auth.User); err != nil {
			return "", res, err
		}
		ch.rt.router.HardNavigate(auth.User.LoginPath())
		return "", res, nil

	default:
		return "", res, fmt.Errorf("unknown command: %s", cmd.Name)
	}
}

func helpText() string {
	lines := []string{
		"Available Commands:",
		"/go <view>                        - Switch view",
		"/refresh                          - Reload the current view",
		"/caret <post>                     - Give or take back a caret",
		"/post <type> <text>               - Share a circle post",
		"/edit <post> <type> <text>        - Edit one of your posts",
		"/delete <post>                    - Delete one of your posts",
		"/reflect <text>                   - Share a 24h reflection",
		"/thread <post>  /close            - Open or close a post's replies",
		"/reply [comment|question] <text>  - Reply in the open thread",
		"/rcaret <reply>                   - Caret a reply",
		"/react <reply> <heart|fire|laugh|none> - React to a reply on your post",
		"/accept <req>  /ignore <req>      - Answer a contact request",
		"/reveal <req>                     - Show an accepted request's contact",
		"/approve <id> <title> | <body>    - Approve a recommendation request",
		"/reject <id>                      - Reject a recommendation request",
		"/lb <recommendations|achievements|combined> - Switch leaderboard",
		"/search <query>  /user <username> - Find people",
		"/recommend <username> <type> [reason] - Request a recommendation",
		"/education k=v ...                - degree college gpa start end completed advisor advisor_email",
		"/work k=v ...                     - company title type current start end supervisor supervisor_email",
		"/verify <approve|reject> <id> [notes]  /status <filter> - Admin review",
		"/theme [name]                     - List or apply themes",
		"/logout                           - Sign out",
	}
	return strings.Join(lines, "\n")
}
