package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/pkg/crypto"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to
	// the caller
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for unique violations and forbidden state changes
	ErrConflict = errors.New("conflict")

	// ErrInvalidCredentials is returned by the login checks
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Token scopes
const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	clock clock.Clock
}

// New creates a new database connection and initializes schema. A nil clock
// is the wall clock.
func New(path string, clk clock.Clock) (*DB, error) {
	if clk == nil {
		clk = clock.New()
	}

	// Each in-memory database gets its own name so tests stay isolated
	dsn := fmt.Sprintf("file:recach-%s?mode=memory&cache=shared", uuid.NewString())
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn+"&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	wrapper := &DB{DB: db, clock: clk}
	if err := wrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return wrapper, nil
}

func (db *DB) now() time.Time { return db.clock.Now().UTC() }

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		university TEXT NOT NULL DEFAULT '',
		contact TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	-- Onboarded users have a profile row; the rest get a 404
	CREATE TABLE IF NOT EXISTS profiles (
		user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		headline TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'PUBLIC',
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	-- Bearer tokens, stored as digests
	CREATE TABLE IF NOT EXISTS tokens (
		digest TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS post_carets (
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (post_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS caret_notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		giver_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS replies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		recipient_id INTEGER,
		owner_reaction TEXT NOT NULL DEFAULT 'NONE',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reply_carets (
		reply_id INTEGER NOT NULL REFERENCES replies(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (reply_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS reflections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS feed_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS inbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		request_id INTEGER,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contact_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		requester_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		recipient_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		course_number TEXT NOT NULL DEFAULT '',
		course_name TEXT NOT NULL DEFAULT '',
		university TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recommendations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		requester_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		recommender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		rec_type TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		note_title TEXT NOT NULL DEFAULT '',
		note_body TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS education (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		degree_type TEXT NOT NULL,
		college_id TEXT NOT NULL,
		gpa REAL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		verification_status TEXT NOT NULL,
		verified_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS work (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		company_name TEXT NOT NULL,
		title TEXT NOT NULL,
		employment_type TEXT NOT NULL DEFAULT '',
		is_current INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT '',
		verification_status TEXT NOT NULL,
		verified_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS verifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		subject_type TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		contact_name TEXT NOT NULL,
		contact_email TEXT NOT NULL,
		contact_phone TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		decided_at DATETIME,
		decided_by INTEGER,
		admin_notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_replies_post ON replies(post_id);
	CREATE INDEX IF NOT EXISTS idx_inbox_user ON inbox(user_id);
	CREATE INDEX IF NOT EXISTS idx_carets_owner ON caret_notifications(owner_id, id DESC);
	CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(status);
	CREATE INDEX IF NOT EXISTS idx_tokens_subject ON tokens(scope, subject_id);
	`

	_, err := db.Exec(schema)
	return err
}

// isUnique reports whether err is a unique constraint violation
func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- User Operations ---

// CreateUser registers a user and returns its id
func (db *DB) CreateUser(ctx context.Context, reg models.Registration) (int64, error) {
	hash, err := crypto.HashPassword(reg.Password)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, full_name, password_hash, contact, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToLower(reg.Username), strings.ToLower(reg.Email), reg.FullName, hash, reg.Email, db.now())
	if isUnique(err) {
		return 0, fmt.Errorf("%w: username or email already registered", ErrConflict)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetUniversity sets the university shown on a user's records
func (db *DB) SetUniversity(ctx context.Context, userID int64, university string) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET university = ? WHERE id = ?`, university, userID)
	return err
}

// Authenticate checks a username or email against the stored password hash
func (db *DB) Authenticate(ctx context.Context, usernameOrEmail, password string) (int64, error) {
	var id int64
	var hash string
	login := strings.ToLower(strings.TrimSpace(usernameOrEmail))

	err := db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM users WHERE username = ? OR email = ?`,
		login, login).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, err
	}
	if !crypto.VerifyPassword(password, hash) {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

// UserRef returns the compact shape of a user
func (db *DB) UserRef(ctx context.Context, userID int64) (models.UserRef, error) {
	var ref models.UserRef
	err := db.QueryRowContext(ctx, `
		SELECT id, username, full_name, university FROM users WHERE id = ?`, userID).Scan(
		&ref.ID, &ref.Username, &ref.FullName, &ref.University)
	return ref, notFound(err)
}

// UserIDByUsername resolves a username
func (db *DB) UserIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`,
		strings.ToLower(strings.TrimPrefix(username, "^"))).Scan(&id)
	return id, notFound(err)
}

// --- Admin Operations ---

// EnsureAdmin creates or resets an admin account
func (db *DB) EnsureAdmin(ctx context.Context, email, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO admins (email, password_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET password_hash = excluded.password_hash`,
		strings.ToLower(email), hash, db.now())
	return err
}

// AuthenticateAdmin checks admin credentials
func (db *DB) AuthenticateAdmin(ctx context.Context, email, password string) (int64, error) {
	var id int64
	var hash string
	err := db.QueryRowContext(ctx, `SELECT id, password_hash FROM admins WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, err
	}
	if !crypto.VerifyPassword(password, hash) {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

// --- Token Operations ---

// IssueToken creates a bearer token for subject in scope. Only the digest is
// stored.
func (db *DB) IssueToken(ctx context.Context, scope string, subjectID int64, ttl time.Duration) (string, error) {
	token, err := crypto.NewAccessToken()
	if err != nil {
		return "", err
	}

	now := db.now()
	_, err = db.ExecContext(ctx, `
		INSERT INTO tokens (digest, scope, subject_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		crypto.TokenDigest(token), scope, subjectID, now, now.Add(ttl))
	if err != nil {
		return "", err
	}
	return token, nil
}

// ResolveToken returns the subject of a live token in scope
func (db *DB) ResolveToken(ctx context.Context, scope, token string) (int64, error) {
	if token == "" {
		return 0, ErrNotFound
	}

	var subjectID int64
	var expiresAt time.Time
	err := db.QueryRowContext(ctx, `
		SELECT subject_id, expires_at FROM tokens WHERE digest = ? AND scope = ?`,
		crypto.TokenDigest(token), scope).Scan(&subjectID, &expiresAt)
	if err != nil {
		return 0, notFound(err)
	}
	if !db.now().Before(expiresAt) {
		return 0, ErrNotFound
	}
	return subjectID, nil
}

// RevokeToken removes a token
func (db *DB) RevokeToken(ctx context.Context, token string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM tokens WHERE digest = ?`, crypto.TokenDigest(token))
	return err
}

// PurgeExpiredTokens removes expired tokens and returns how many went
func (db *DB) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= ?`, db.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Profile Operations ---

// Profile returns the user's profile, or ErrNotFound before onboarding
func (db *DB) Profile(ctx context.Context, userID int64) (models.UserProfile, error) {
	var profile models.UserProfile
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, userID).Scan(&data)
	if err != nil {
		return profile, notFound(err)
	}
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return profile, fmt.Errorf("corrupt profile for user %d: %w", userID, err)
	}
	return db.fillProfile(ctx, userID, profile)
}

// SaveProfile creates or replaces the user's profile
func (db *DB) SaveProfile(ctx context.Context, userID int64, profile models.UserProfile) (models.UserProfile, error) {
	if profile.Visibility == "" {
		profile.Visibility = models.VisibilityPublic
	}
	profile.ID, profile.UserID = userID, userID

	data, err := json.Marshal(profile)
	if err != nil {
		return profile, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, headline, visibility, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET headline = excluded.headline,
			visibility = excluded.visibility, data = excluded.data, updated_at = excluded.updated_at`,
		userID, profile.Headline, profile.Visibility, string(data), db.now())
	if err != nil {
		return profile, err
	}
	if profile.FullName != "" {
		if _, err := db.ExecContext(ctx, `UPDATE users SET full_name = ? WHERE id = ?`, profile.FullName, userID); err != nil {
			return profile, err
		}
	}
	return db.fillProfile(ctx, userID, profile)
}

func (db *DB) fillProfile(ctx context.Context, userID int64, profile models.UserProfile) (models.UserProfile, error) {
	err := db.QueryRowContext(ctx, `SELECT username, email, full_name FROM users WHERE id = ?`, userID).Scan(
		&profile.Username, &profile.Email, &profile.FullName)
	return profile, notFound(err)
}

// --- Public Operations ---

// SearchUsers matches names and usernames of users with public profiles
func (db *DB) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSearchResult, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := db.QueryContext(ctx, `
		SELECT u.id, u.username, u.full_name, COALESCE(p.headline, '')
		FROM users u LEFT JOIN profiles p ON p.user_id = u.id
		WHERE COALESCE(p.visibility, 'PUBLIC') = 'PUBLIC'
			AND (lower(u.full_name) LIKE ? OR u.username LIKE ?)
		ORDER BY u.full_name LIMIT ?`, pattern, pattern, limitOr(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.UserSearchResult{}
	for rows.Next() {
		var r models.UserSearchResult
		if err := rows.Scan(&r.UserID, &r.Username, &r.FullName, &r.Headline); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		s, err := db.Scores(ctx, results[i].UserID)
		if err != nil {
			return nil, err
		}
		results[i].AchievementTotal = s.Achievement
		results[i].RecommendationTotal = s.Recommendation
		results[i].CaretScore = s.Carets
	}
	return results, nil
}

// PublicUser returns another user's public profile. Private profiles are not
// found.
func (db *DB) PublicUser(ctx context.Context, username string) (models.PublicUser, error) {
	var out models.PublicUser
	var visibility sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.full_name, p.visibility
		FROM users u LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.username = ?`, strings.ToLower(strings.TrimPrefix(username, "^"))).Scan(
		&out.ID, &out.Username, &out.FullName, &visibility)
	if err != nil {
		return out, notFound(err)
	}
	if visibility.Valid && visibility.String == string(models.VisibilityPrivate) {
		return out, ErrNotFound
	}

	s, err := db.Scores(ctx, out.ID)
	if err != nil {
		return out, err
	}
	out.AchievementTotal = s.Achievement
	out.RecommendationTotal = s.Recommendation
	out.CaretScore = s.Carets

	if out.RecommendedBy, err = db.recommenders(ctx, out.ID); err != nil {
		return out, err
	}
	out.RecommenderCount = len(out.RecommendedBy)

	if out.VerifiedEducation, err = db.verifiedEducation(ctx, out.ID); err != nil {
		return out, err
	}
	if out.VerifiedWork, err = db.verifiedWork(ctx, out.ID); err != nil {
		return out, err
	}
	return out, nil
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, 200)
}
