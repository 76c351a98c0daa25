package storage

import (
	"context"
	"fmt"
)

// Well-known keys written by the client
const (
	KeyUserToken           = "access_token"
	KeyAdminToken          = "admin_access_token"
	KeyCaretSeenID         = "recach_caret_seen_id"
	KeyAchievementScore    = "recach-achievement-score"
	KeyRecommendationScore = "recach-recommendation-score"
)

// Backend is client-local persisted key/value storage. Values survive
// restarts for every backend except Memory.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend     string // memory, file, sqlite or redis
	Path        string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the backend named in opts
func Open(opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		f, err := NewFile(opts.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "sqlite":
		s, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		return NewRedis(opts.RedisAddr, opts.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
