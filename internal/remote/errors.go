package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("remote: not found")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrTransient    = errors.New("remote: transient failure")
	ErrFolderCreate = errors.New("remote: folder creation failed")
)

// StatusError is an unexpected HTTP status from a backend.
type StatusError struct {
	Backend    string
	Op         string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s %q: status %d", e.Backend, e.Op, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap exposes the sentinel matching the status code, if any.
func (e *StatusError) Unwrap() error {
	return Classify(e.StatusCode)
}

// Classify maps an HTTP status to a sentinel. Statuses with no sentinel return nil.
func Classify(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return ErrTransient
	default:
		return nil
	}
}

// NewStatusError truncates body to keep log lines readable.
func NewStatusError(backend, op, path string, status int, body string) *StatusError {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	return &StatusError{Backend: backend, Op: op, Path: path, StatusCode: status, Body: body}
}

// TransportError marks a failure below HTTP (dial, TLS, reset) as transient.
func TransportError(backend, op, path string, err error) error {
	return fmt.Errorf("%w: %s %s %q: %w", ErrTransient, backend, op, path, err)
}

// IsFatal reports errors that must end a sync session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
