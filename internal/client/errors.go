package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches a *StatusError carrying 404.
	ErrNotFound = errors.New("not found")
	// ErrTimeout is returned by WithTimeout when the deadline passes first.
	ErrTimeout = errors.New("timed out")
	// ErrDigestMismatch is returned when a transfer's X-Content-Blake3 header
	// disagrees with the bytes actually sent or received.
	ErrDigestMismatch = errors.New("content digest mismatch")
)

// StatusError is a non-200 response from the agent.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Is reports 404 responses as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// CommandError is returned when a command the caller required to succeed
// finished with status error.
type CommandError struct {
	Command string
	Result  string
	Stderr  string
	Code    *int
	Signal  *string
}

func (e *CommandError) Error() string {
	var reason string
	switch {
	case e.Signal != nil:
		reason = "killed by " + *e.Signal
	case e.Code != nil:
		reason = fmt.Sprintf("exit code %d", *e.Code)
	default:
		reason = "failed"
	}
	return fmt.Sprintf("command %s %s: %s\n\n%s", e.Command, reason, e.Result, e.Stderr)
}
