package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means the server could not be reached or timed out.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized means the credentials were rejected or have expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServerError is a 5xx response.
	ErrServerError = errors.New("server error")
	// ErrRejected is any other non-2xx response.
	ErrRejected = errors.New("request rejected")
	// ErrBadResponse means a 2xx response could not be understood.
	ErrBadResponse = errors.New("malformed response")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap maps the status onto one of the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrUnauthorized
	case e.Code >= 500:
		return ErrServerError
	default:
		return ErrRejected
	}
}

// Retryable reports whether err is worth retrying later: the request may
// succeed unchanged once the network or server recovers.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrServerError)
}
