package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/config"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/logging"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/nav"
	"github.com/recach/recach/internal/storage"
)

// services are the collaborators every command shares
type services struct {
	cfg     *config.Config
	logger  zerolog.Logger
	backend storage.Backend
	tokens  *auth.Store
	bus     *events.Bus
	client  *api.Client
	metrics *metrics.Registry

	closers []io.Closer
}

// ErrNoAPIBase is returned in production when no remote API is configured
var ErrNoAPIBase = errors.New("no API base configured for production")

func newServices(navigator nav.Navigator) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiBase != "" {
		cfg.API.Base = apiBase
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	svc := &services{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	base, ok := cfg.ResolveAPIBase()
	if !ok {
		svc.Close()
		return nil, ErrNoAPIBase
	}

	backend, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	svc.backend = backend
	svc.closers = append(svc.closers, backend)

	svc.bus = events.NewBus()
	svc.tokens = auth.NewStore(backend, svc.bus, logger)
	svc.metrics = metrics.New()

	svc.client, err = api.New(api.Options{
		BaseURL:        base,
		Timeout:        cfg.API.Timeout.Duration,
		Tokens:         svc.tokens,
		Navigator:      navigator,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		Breaker:        cfg.API.Breaker,
		Metrics:        svc.metrics,
		Logger:         logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}

	logger.Debug().Str("api", base).Str("storage", cfg.Storage.Backend).Msg("services ready")
	return svc, nil
}

// Close releases storage and the log file, newest first
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
	s.closers = nil
}

// headless returns services whose navigations are only recorded. One-shot
// commands inspect the recorder to tell an expired session apart.
func headless() (*services, *nav.Recorder, error) {
	rec := &nav.Recorder{}
	svc, err := newServices(rec)
	return svc, rec, err
}

// sessionError explains a request that ended the session
func sessionError(rec *nav.Recorder, err error) error {
	if call, ok := rec.Last(); ok {
		if call.Path == auth.Admin.LoginPath() {
			return errors.New("admin session expired, run `recach admin login`")
		}
		return errors.New("session expired, run `recach login`")
	}
	return err
}
