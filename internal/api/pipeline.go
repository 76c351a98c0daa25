package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/nav"
	"github.com/recach/recach/pkg/crypto"
)

// UserAuthPrefixes are the logical paths that always carry the user token
var UserAuthPrefixes = []string{"/me", "/recommendations", "/education", "/work", "/users/me"}

type acceptsAuthKey struct{}

// WithAuth marks requests made with ctx as accepting a token: the current
// token is attached when one exists even though the path does not require it.
func WithAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, acceptsAuthKey{}, true)
}

func acceptsAuth(ctx context.Context) bool {
	v, _ := ctx.Value(acceptsAuthKey{}).(bool)
	return v
}

// Pipeline is the per-scope request pipeline. It is an http.RoundTripper that
// decorates every request with no-cache headers and a request id, attaches the
// scope's bearer token by path classification, and ends the scope's session
// on any 401 response.
type Pipeline struct {
	scope    auth.Scope
	basePath string
	tokens   *auth.Store
	nav      nav.Navigator
	next     http.RoundTripper
	limiter  *Limiter
	breaker  *breaker
	metrics  *metrics.Registry
	logger   zerolog.Logger
}

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	Scope     auth.Scope
	BaseURL   string
	Tokens    *auth.Store
	Navigator nav.Navigator
	Transport http.RoundTripper
	Limiter   *Limiter
	Breaker   bool
	Metrics   *metrics.Registry
	Logger    zerolog.Logger
}

// NewPipeline creates a pipeline for one scope
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base %q: %w", cfg.BaseURL, err)
	}

	next := cfg.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	p := &Pipeline{
		scope:    cfg.Scope,
		basePath: strings.TrimSuffix(base.Path, "/"),
		tokens:   cfg.Tokens,
		nav:      cfg.Navigator,
		next:     next,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "api").Str("scope", string(cfg.Scope)).Logger(),
	}

	if cfg.Breaker {
		p.breaker = newBreaker("recach-"+string(cfg.Scope), func(from, to gobreaker.State) {
			p.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			p.metrics.SetBreakerState(string(cfg.Scope), int(to))
		})
	}

	return p, nil
}

// LogicalPath strips the configured base path, leaving the path the API
// routes on
func (p *Pipeline) LogicalPath(u *url.URL) string {
	path := u.Path
	if p.basePath != "" && strings.HasPrefix(path, p.basePath) {
		path = strings.TrimPrefix(path, p.basePath)
	}
	if path == "" {
		path = "/"
	}
	return path
}

// RequiresAuth reports whether a logical path must carry the scope's token.
// Every admin path does.
func (p *Pipeline) RequiresAuth(path string) bool {
	if p.scope == auth.Admin {
		return true
	}
	for _, prefix := range UserAuthPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper
func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := p.limiter.Wait(ctx, req.URL.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	// RoundTrippers must not modify the caller's request
	out := req.Clone(ctx)
	out.Header.Set("Cache-Control", "no-store")
	out.Header.Set("Pragma", "no-cache")
	out.Header.Set("Expires", "0")
	out.Header.Set("X-Request-ID", uuid.NewString())

	path := p.LogicalPath(req.URL)
	token := p.tokens.Get(ctx, p.scope)
	if token != "" && (p.RequiresAuth(path) || acceptsAuth(ctx)) {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}

	start := time.Now()
	resp, err := p.breaker.do(func() (*http.Response, error) {
		return p.next.RoundTrip(out)
	})
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	p.metrics.ObserveRequest(string(p.scope), req.Method, status, elapsed)

	event := p.logger.Debug().
		Str("method", req.Method).
		Str("path", path).
		Int("status", status).
		Dur("duration", elapsed).
		Str("request_id", out.Header.Get("X-Request-ID"))
	if out.Header.Get("Authorization") != "" {
		event = event.Str("token", crypto.Fingerprint(token))
	}
	event.Err(err).Msg("api request")

	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		p.endSession(ctx, path)
	}
	return resp, nil
}

// endSession clears the scope's token and sends the front end to the scope's
// login page. There is no retry and no refresh.
func (p *Pipeline) endSession(ctx context.Context, path string) {
	p.logger.Info().Str("path", path).Msg("unauthorized, ending session")
	p.metrics.CountUnauthorized(string(p.scope))

	// The session must end even if the caller's context is already done
	if err := p.tokens.Clear(context.WithoutCancel(ctx), p.scope); err != nil {
		p.logger.Error().Err(err).Msg("failed to clear token after 401")
	}
	if p.nav != nil {
		p.nav.HardNavigate(p.scope.LoginPath())
	}
}
