package devapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/recach/recach/internal/database"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/protocol"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"time":        time.Now().UTC(),
		"subscribers": s.hub.ClientCount(),
	})
}

// handleWebSocket upgrades a subscription. The token rides in the query
// string; a bad token is refused before the upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := s.db.ResolveToken(r.Context(), database.ScopeUser, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends when this handler returns
	valid := func() bool {
		id, err := s.db.ResolveToken(context.Background(), database.ScopeUser, token)
		return err == nil && id == userID
	}
	client := NewClient(conn, s.hub, userID, valid, s.logger)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	client.SendHello()
	go client.WritePump()
	go client.ReadPump()
}

// --- Auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid form")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	id, err := s.db.Authenticate(r.Context(), username, password)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.issue(w, r, database.ScopeUser, id, s.config.TokenTTL.Duration)
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.AdminCredentials
	if !decode(w, r, &creds) {
		return
	}

	id, err := s.db.AuthenticateAdmin(r.Context(), creds.Email, creds.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.issue(w, r, database.ScopeAdmin, id, s.config.AdminTokenTTL.Duration)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, scope string, id int64, ttl time.Duration) {
	token, err := s.db.IssueToken(r.Context(), scope, id, ttl)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.db.RevokeToken(r.Context(), bearer(r)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if !decode(w, r, &reg) {
		return
	}

	// Validate input
	switch {
	case len(reg.Username) < 2 || len(reg.Username) > 32:
		writeError(w, http.StatusBadRequest, "Username must be 2-32 characters")
		return
	case !strings.Contains(reg.Email, "@"):
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	case len(reg.Password) < 8:
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	id, err := s.db.CreateUser(r.Context(), reg)
	if err != nil {
		s.fail(w, err)
		return
	}
	ref, err := s.db.UserRef(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// --- Scores & profile ---

func (s *Server) handleAchievementScore(w http.ResponseWriter, r *http.Request) {
	scores, err := s.db.Scores(r.Context(), subject(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Score{UserID: scores.UserID, AchievementScore: &scores.Achievement})
}

func (s *Server) handleRecommendationScore(w http.ResponseWriter, r *http.Request) {
	scores, err := s.db.Scores(r.Context(), subject(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Score{UserID: scores.UserID, RecommendationScore: &scores.Recommendation})
}

func (s *Server) handleCaretScore(w http.ResponseWriter, r *http.Request) {
	scores, err := s.db.Scores(r.Context(), subject(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CaretScore{UserID: scores.UserID, CaretScore: scores.Carets})
}

func (s *Server) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.db.Profile(r.Context(), subject(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.UserProfile
	if !decode(w, r, &profile) {
		return
	}
	saved, err := s.db.SaveProfile(r.Context(), subject(r), profile)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// --- Public reads ---

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	items, err := s.db.Feed(r.Context(), queryLimit(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseLeaderboardKind(mux.Vars(r)["kind"])
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown leaderboard")
		return
	}
	rows, err := s.db.Leaderboard(r.Context(), kind, queryLimit(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleReflections(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.Reflections(r.Context(), queryLimit(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}
	out, err := s.db.SearchUsers(r.Context(), q, queryLimit(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePublicUser(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.PublicUser(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Inbox & contacts ---

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	items, err := s.db.Inbox(r.Context(), subject(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCaretNotifications(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.CaretNotifications(r.Context(), subject(r), queryLimit(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleContactAccept(w http.ResponseWriter, r *http.Request) {
	s.transitionContact(w, r, models.ContactAccepted)
}

func (s *Server) handleContactIgnore(w http.ResponseWriter, r *http.Request) {
	s.transitionContact(w, r, models.ContactIgnored)
}

func (s *Server) transitionContact(w http.ResponseWriter, r *http.Request, to models.ContactStatus) {
	id := pathID(r)
	if err := s.db.TransitionContactRequest(r.Context(), subject(r), id, to); err != nil {
		s.fail(w, err)
		return
	}
	s.hub.SendToUser(subject(r), protocol.TopicInbox, id)
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "status": to})
}

func (s *Server) handleContactReveal(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.RevealContact(r.Context(), subject(r), pathID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Recommendations ---

func (s *Server) handlePendingRecommendations(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.PendingRecommendations(r.Context(), subject(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRequestRecommendation(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.db.RequestRecommendation(r.Context(), subject(r), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if recommender, err := s.db.UserIDByUsername(r.Context(), req.RecommenderUsername); err == nil {
		s.hub.SendToUser(recommender, protocol.TopicRecommendations, id)
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleApproveRecommendation(w http.ResponseWriter, r *http.Request) {
	var note models.ApprovalNote
	if !decode(w, r, &note) {
		return
	}
	s.decideRecommendation(w, r, true, note)
}

func (s *Server) handleRejectRecommendation(w http.ResponseWriter, r *http.Request) {
	s.decideRecommendation(w, r, false, models.ApprovalNote{})
}

func (s *Server) decideRecommendation(w http.ResponseWriter, r *http.Request, approve bool, note models.ApprovalNote) {
	id := pathID(r)
	if err := s.db.DecideRecommendation(r.Context(), subject(r), id, approve, note); err != nil {
		s.fail(w, err)
		return
	}
	s.hub.SendToUser(subject(r), protocol.TopicRecommendations, id)
	if approve {
		s.hub.Broadcast(protocol.TopicInbox, id)
		s.hub.Broadcast(protocol.TopicLeaderboard, id)
		s.hub.Broadcast(protocol.TopicFeed, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Posts ---

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	posts, err := s.db.Posts(r.Context(), subject(r), queryLimit(r), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func validPost(w http.ResponseWriter, in models.PostInput) bool {
	if !in.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown post type")
		return false
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "Post content is required")
		return false
	}
	return true
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var in models.PostInput
	if !decode(w, r, &in) || !validPost(w, in) {
		return
	}
	post, err := s.db.CreatePost(r.Context(), subject(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicPosts, post.ID)
	s.hub.Broadcast(protocol.TopicFeed, post.ID)
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var in models.PostInput
	if !decode(w, r, &in) || !validPost(w, in) {
		return
	}
	post, err := s.db.UpdatePost(r.Context(), subject(r), pathID(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicPosts, post.ID)
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.db.DeletePost(r.Context(), subject(r), id); err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicPosts, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostCaret(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	toggle, err := s.db.TogglePostCaret(r.Context(), subject(r), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicPosts, id)
	if owner, err := s.db.PostOwner(r.Context(), id); err == nil && owner != subject(r) {
		s.hub.SendToUser(owner, protocol.TopicCarets, id)
	}
	writeJSON(w, http.StatusOK, toggle)
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := s.db.Replies(r.Context(), subject(r), pathID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replies)
}

func (s *Server) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	var in models.ReplyInput
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		writeError(w, http.StatusBadRequest, "Reply message is required")
		return
	}

	postID := pathID(r)
	reply, err := s.db.CreateReply(r.Context(), subject(r), postID, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicReplies, postID)
	if owner, err := s.db.PostOwner(r.Context(), postID); err == nil && owner != subject(r) {
		s.hub.SendToUser(owner, protocol.TopicInbox, reply.ID)
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleReplyCaret(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	out, err := s.db.ToggleReplyCaret(r.Context(), subject(r), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicReplies, id)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReplyReaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reaction models.Reaction `json:"reaction"`
	}
	if !decode(w, r, &body) {
		return
	}
	id := pathID(r)
	out, err := s.db.SetReplyReaction(r.Context(), subject(r), id, body.Reaction)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicReplies, id)
	s.hub.Broadcast(protocol.TopicInbox, id)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateReflection(w http.ResponseWriter, r *http.Request) {
	var in models.ReflectionInput
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "Reflection content is required")
		return
	}
	out, err := s.db.CreateReflection(r.Context(), subject(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicReflections, out.ID)
	s.hub.Broadcast(protocol.TopicFeed, out.ID)
	writeJSON(w, http.StatusCreated, out)
}

// --- Education & work ---

func (s *Server) handleAddEducation(w http.ResponseWriter, r *http.Request) {
	var in models.EducationInput
	if !decode(w, r, &in) {
		return
	}
	out, err := s.db.AddEducation(r.Context(), subject(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicVerifications, out.ID)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleEducationScore(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.EducationScore(r.Context(), subject(r), pathID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddWork(w http.ResponseWriter, r *http.Request) {
	var in models.WorkInput
	if !decode(w, r, &in) {
		return
	}
	out, err := s.db.AddWork(r.Context(), subject(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicVerifications, out.ID)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleWorkScore(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.WorkScore(r.Context(), subject(r), pathID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Admin ---

func (s *Server) handleVerifications(w http.ResponseWriter, r *http.Request) {
	out, err := s.db.Verifications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApproveVerification(w http.ResponseWriter, r *http.Request) {
	s.decideVerification(w, r, true)
}

func (s *Server) handleRejectVerification(w http.ResponseWriter, r *http.Request) {
	s.decideVerification(w, r, false)
}

func (s *Server) decideVerification(w http.ResponseWriter, r *http.Request, approve bool) {
	var decision models.AdminDecision
	if r.ContentLength != 0 && !decode(w, r, &decision) {
		return
	}
	out, err := s.db.DecideVerification(r.Context(), subject(r), pathID(r), approve, decision.AdminNotes)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(protocol.TopicVerifications, out.ID)
	if approve {
		s.hub.Broadcast(protocol.TopicLeaderboard, out.ID)
		s.hub.Broadcast(protocol.TopicFeed, out.ID)
	}
	writeJSON(w, http.StatusOK, out)
}
