package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/config"
	"github.com/recach/recach/internal/database"
)

// Config holds the dev API configuration
type Config struct {
	Host          string          `toml:"host"`
	Port          int             `toml:"port"`
	DatabasePath  string          `toml:"database_path"`
	TokenTTL      config.Duration `toml:"token_ttl"`
	AdminTokenTTL config.Duration `toml:"admin_token_ttl"`
	AdminEmail    string          `toml:"admin_email"`
	AdminPassword string          `toml:"admin_password"`
	Seed          bool            `toml:"seed"`
	Debug         bool            `toml:"debug"`

	Log config.LogConfig `toml:"log"`
}

// DefaultConfig returns the default dev API configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "127.0.0.1",
		Port:          8000,
		DatabasePath:  "recach-dev.db",
		TokenTTL:      config.D(24 * time.Hour),
		AdminTokenTTL: config.D(8 * time.Hour),
		Log:           config.LogConfig{Level: "info", Format: "console"},
	}
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ctxKey int

const subjectKey ctxKey = iota

// Server is a local stand-in for the recach API
type Server struct {
	config   *Config
	db       *database.DB
	hub      *Hub
	router   *mux.Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a server over db
func New(cfg *Config, db *database.DB, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		db:     db,
		hub:    NewHub(logger),
		logger: logger.With().Str("component", "devapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local development only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

// Hub returns the change notice hub
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler. The hub must be running for websocket
// subscriptions; see Start.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the hub until ctx ends
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

// Run serves on the configured address until ctx ends
func (s *Server) Run(ctx context.Context) error {
	s.Start(ctx)

	httpServer := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", httpServer.Addr).Msg("dev API listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	// Public
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/auth/login", s.handleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/users", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard/{kind}", s.handleLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/reflections", s.handleReflections).Methods(http.MethodGet)
	r.HandleFunc("/public/users/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/public/users/{username}", s.handlePublicUser).Methods(http.MethodGet)

	// Anonymous reads, personalised with a token
	r.Handle("/posts", s.optionalUser(http.HandlerFunc(s.handlePosts))).Methods(http.MethodGet)
	r.Handle("/posts/{id:[0-9]+}/replies", s.optionalUser(http.HandlerFunc(s.handleReplies))).Methods(http.MethodGet)

	user := r.NewRoute().Subrouter()
	user.Use(s.requireScope(database.ScopeUser))
	user.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	user.HandleFunc("/users/me/achievement", s.handleAchievementScore).Methods(http.MethodGet)
	user.HandleFunc("/users/me/recommendation-score", s.handleRecommendationScore).Methods(http.MethodGet)
	user.HandleFunc("/users/me/caret-score", s.handleCaretScore).Methods(http.MethodGet)
	user.HandleFunc("/me/profile", s.handleMyProfile).Methods(http.MethodGet)
	user.HandleFunc("/me/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	user.HandleFunc("/inbox", s.handleInbox).Methods(http.MethodGet)
	user.HandleFunc("/caret-notifications", s.handleCaretNotifications).Methods(http.MethodGet)
	user.HandleFunc("/contact-requests/{id:[0-9]+}/accept", s.handleContactAccept).Methods(http.MethodPost)
	user.HandleFunc("/contact-requests/{id:[0-9]+}/ignore", s.handleContactIgnore).Methods(http.MethodPost)
	user.HandleFunc("/contact-requests/{id:[0-9]+}/contact", s.handleContactReveal).Methods(http.MethodGet)
	user.HandleFunc("/recommendations/pending", s.handlePendingRecommendations).Methods(http.MethodGet)
	user.HandleFunc("/recommendations/request", s.handleRequestRecommendation).Methods(http.MethodPost)
	user.HandleFunc("/recommendations/{id:[0-9]+}/approve", s.handleApproveRecommendation).Methods(http.MethodPost)
	user.HandleFunc("/recommendations/{id:[0-9]+}/reject", s.handleRejectRecommendation).Methods(http.MethodPost)
	user.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	user.HandleFunc("/posts/{id:[0-9]+}", s.handleUpdatePost).Methods(http.MethodPut)
	user.HandleFunc("/posts/{id:[0-9]+}", s.handleDeletePost).Methods(http.MethodDelete)
	user.HandleFunc("/posts/{id:[0-9]+}/caret", s.handlePostCaret).Methods(http.MethodPost)
	user.HandleFunc("/posts/{id:[0-9]+}/replies", s.handleCreateReply).Methods(http.MethodPost)
	user.HandleFunc("/post-replies/{id:[0-9]+}/caret", s.handleReplyCaret).Methods(http.MethodPost)
	user.HandleFunc("/post-replies/{id:[0-9]+}/owner-reaction", s.handleReplyReaction).Methods(http.MethodPost)
	user.HandleFunc("/reflections", s.handleCreateReflection).Methods(http.MethodPost)
	user.HandleFunc("/education", s.handleAddEducation).Methods(http.MethodPost)
	user.HandleFunc("/education/{id:[0-9]+}/score", s.handleEducationScore).Methods(http.MethodGet)
	user.HandleFunc("/work", s.handleAddWork).Methods(http.MethodPost)
	user.HandleFunc("/work/{id:[0-9]+}/score", s.handleWorkScore).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireScope(database.ScopeAdmin))
	admin.HandleFunc("/verifications", s.handleVerifications).Methods(http.MethodGet)
	admin.HandleFunc("/verifications/{id:[0-9]+}/approve", s.handleApproveVerification).Methods(http.MethodPost)
	admin.HandleFunc("/verifications/{id:[0-9]+}/reject", s.handleRejectVerification).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// --- Middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades need the original writer's Hijacker
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireScope rejects requests without a live token of the given scope
func (s *Server) requireScope(scope string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := s.db.ResolveToken(r.Context(), scope, bearer(r))
			if err != nil {
				if !database.IsNotFound(err) {
					s.logger.Error().Err(err).Msg("token lookup failed")
				}
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, id)))
		})
	}
}

// optionalUser resolves a user token when one is sent. A bad token is
// rejected rather than ignored.
func (s *Server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		s.requireScope(database.ScopeUser)(next).ServeHTTP(w, r)
	})
}

// subject returns the authenticated user or admin id, or 0
func subject(r *http.Request) int64 {
	id, _ := r.Context().Value(subjectKey).(int64)
	return id
}

// --- Responses ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends the {"detail": "..."} body the client surfaces verbatim
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// fail maps a database error to a response
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, database.ErrConflict):
		detail := strings.TrimPrefix(err.Error(), database.ErrConflict.Error()+": ")
		writeError(w, http.StatusBadRequest, detail)
	case errors.Is(err, database.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect username or password")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}
