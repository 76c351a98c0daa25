package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/storage"
	"github.com/recach/recach/pkg/crypto"
)

// Scope is one of the two independent authentication contexts
type Scope string

const (
	User  Scope = "user"
	Admin Scope = "admin"
)

// Key returns the storage key holding the scope's token
func (s Scope) Key() string {
	if s == Admin {
		return storage.KeyAdminToken
	}
	return storage.KeyUserToken
}

// LoginPath is where a session of this scope is sent to sign in again
func (s Scope) LoginPath() string {
	if s == Admin {
		return "/admin/login"
	}
	return "/login"
}

// Store holds the user and admin bearer tokens. Every Set and Clear commits
// to the backend first and then publishes exactly one events.AuthChanged.
type Store struct {
	backend storage.Backend
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewStore creates a token store. A nil backend is allowed: reads then
// report no token and writes fail.
func NewStore(backend storage.Backend, bus *events.Bus, logger zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		bus:     bus,
		logger:  logger.With().Str("component", "auth").Logger(),
	}
}

// Get returns the scope's token or "" when there is none. It never fails:
// a missing backend or a read error both read as logged out.
func (s *Store) Get(ctx context.Context, scope Scope) string {
	if s == nil || s.backend == nil {
		return ""
	}

	token, ok, err := s.backend.Get(ctx, scope.Key())
	if err != nil {
		s.logger.Warn().Err(err).Str("scope", string(scope)).Msg("token read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

// Has reports whether the scope currently holds a token
func (s *Store) Has(ctx context.Context, scope Scope) bool {
	return s.Get(ctx, scope) != ""
}

// Set stores token for scope. An empty token clears the scope.
func (s *Store) Set(ctx context.Context, scope Scope, token string) error {
	if token == "" {
		return s.Clear(ctx, scope)
	}
	if s.backend == nil {
		return fmt.Errorf("failed to store %s token: no storage", scope)
	}

	if err := s.backend.Set(ctx, scope.Key(), token); err != nil {
		return fmt.Errorf("failed to store %s token: %w", scope, err)
	}

	s.logger.Debug().
		Str("scope", string(scope)).
		Str("token", crypto.Fingerprint(token)).
		Msg("token stored")
	s.bus.Publish(events.AuthChanged)
	return nil
}

// Clear removes the scope's token
func (s *Store) Clear(ctx context.Context, scope Scope) error {
	if s.backend == nil {
		return fmt.Errorf("failed to clear %s token: no storage", scope)
	}

	if err := s.backend.Delete(ctx, scope.Key()); err != nil {
		return fmt.Errorf("failed to clear %s token: %w", scope, err)
	}

	s.logger.Debug().Str("scope", string(scope)).Msg("token cleared")
	s.bus.Publish(events.AuthChanged)
	return nil
}

// Watch republishes events.AuthChanged when another process changes the
// backing file. Backends that cannot be watched are a no-op.
func (s *Store) Watch(ctx context.Context) error {
	file, ok := s.backend.(*storage.File)
	if !ok {
		return nil
	}

	return file.Watch(ctx, func() {
		s.logger.Debug().Str("path", file.Path()).Msg("storage changed externally")
		s.bus.Publish(events.AuthChanged)
	})
}
