package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// errServerStatus marks a 5xx response inside the breaker so it counts as a
// failure. The response itself is still returned to the caller.
var errServerStatus = errors.New("server error status")

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

// newBreaker trips after 5 consecutive failures, or when more than half of
// at least 20 requests in a minute failed, and probes again after 30s.
func newBreaker(name string, onChange func(from, to gobreaker.State)) *breaker {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) { onChange(from, to) }
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// do runs one round trip through the breaker. 5xx responses and transport
// errors count as failures; 4xx responses do not.
func (b *breaker) do(fn func() (*http.Response, error)) (*http.Response, error) {
	if b == nil {
		return fn()
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrCircuitOpen
	case errors.Is(err, errServerStatus):
		return result.(*http.Response), nil
	case err != nil:
		return nil, err
	}
	return result.(*http.Response), nil
}

func (b *breaker) state() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}
