package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/recach/recach/internal/auth"
)

// PingResult is the outcome of a health probe
type PingResult struct {
	// Reachable is true when the server answered at all
	Reachable bool
	// Healthy is true when it answered 2xx
	Healthy   bool
	Latency   time.Duration
	Error     string
	Timestamp time.Time
}

// Ping probes the API's health endpoint. No token is sent.
func (c *Client) Ping(ctx context.Context) PingResult {
	start := time.Now()
	err := c.do(ctx, request{scope: auth.User, method: http.MethodGet, path: "/healthz"}, nil)
	result := PingResult{Latency: time.Since(start), Timestamp: time.Now()}

	var apiErr *Error
	switch {
	case err == nil:
		result.Reachable, result.Healthy = true, true
	case errors.As(err, &apiErr):
		result.Reachable = true
		result.Error = apiErr.Error()
	default:
		result.Error = err.Error()
	}
	return result
}
