package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/metrics"
	"github.com/recach/recach/internal/nav"
)

// maxErrorBody bounds how much of an error response is read for its detail
const maxErrorBody = 64 << 10

// Options configures a Client
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	Tokens         *auth.Store
	Navigator      nav.Navigator
	RateLimitRPS   float64
	RateLimitBurst int
	Breaker        bool
	Metrics        *metrics.Registry
	Logger         zerolog.Logger

	// Transport is the underlying transport; http.DefaultTransport when nil
	Transport http.RoundTripper
}

// Client talks to the remote API through two isolated pipelines, one per
// token scope. Each endpoint method picks its scope.
type Client struct {
	base  *url.URL
	user  *http.Client
	admin *http.Client

	userPipeline  *Pipeline
	adminPipeline *Pipeline
}

// New creates a client. Both pipelines share one rate limiter.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base %q: %w", opts.BaseURL, err)
	}

	limiter := NewLimiter(opts.RateLimitRPS, opts.RateLimitBurst)

	newPipeline := func(scope auth.Scope) (*Pipeline, error) {
		return NewPipeline(PipelineConfig{
			Scope:     scope,
			BaseURL:   base.String(),
			Tokens:    opts.Tokens,
			Navigator: opts.Navigator,
			Transport: opts.Transport,
			Limiter:   limiter,
			Breaker:   opts.Breaker,
			Metrics:   opts.Metrics,
			Logger:    opts.Logger,
		})
	}

	userPipeline, err := newPipeline(auth.User)
	if err != nil {
		return nil, err
	}
	adminPipeline, err := newPipeline(auth.Admin)
	if err != nil {
		return nil, err
	}

	return &Client{
		base:          base,
		user:          &http.Client{Transport: userPipeline, Timeout: opts.Timeout},
		admin:         &http.Client{Transport: adminPipeline, Timeout: opts.Timeout},
		userPipeline:  userPipeline,
		adminPipeline: adminPipeline,
	}, nil
}

// BaseURL returns the API origin the client targets
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Pipeline returns the pipeline of scope
func (c *Client) Pipeline(scope auth.Scope) *Pipeline {
	if scope == auth.Admin {
		return c.adminPipeline
	}
	return c.userPipeline
}

type request struct {
	scope  auth.Scope
	method string
	path   string
	query  url.Values
	body   any
	form   url.Values
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target := *c.base
	target.Path = c.base.Path + r.path
	target.RawQuery = r.query.Encode()

	var body io.Reader
	contentType := ""
	switch {
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := c.user
	if r.scope == auth.Admin {
		client = c.admin
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Status: resp.StatusCode,
			Detail: parseDetail(data),
			Method: r.method,
			Path:   r.path,
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {fmt.Sprint(limit)}}
}
