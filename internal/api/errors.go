package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned while a scope's breaker rejects requests
var ErrCircuitOpen = errors.New("api unavailable: circuit open")

// Error is a non-2xx API response
type Error struct {
	Status int
	Detail string
	Method string
	Path   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Kind classifies an error for user-facing handling
type Kind int

const (
	KindNone Kind = iota
	KindUnauthorized
	KindNotFound
	KindValidation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

// KindOf classifies err. Anything that is not a 4xx response, including
// network failures and an open breaker, is transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return KindTransient
	}

	switch {
	case apiErr.Status == http.StatusUnauthorized:
		return KindUnauthorized
	case apiErr.Status == http.StatusNotFound:
		return KindNotFound
	case apiErr.Status >= 400 && apiErr.Status < 500:
		return KindValidation
	default:
		return KindTransient
	}
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Message returns the text to show for err: the server's detail for
// validation errors when it sent one, fallback otherwise.
func Message(err error, fallback string) string {
	if KindOf(err) != KindValidation {
		return fallback
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// parseDetail extracts a string "detail" field from an error body. Structured
// details (such as field-level validation lists) are not shown verbatim.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return detail
}
