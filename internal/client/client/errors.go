package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrEmptyToken   = errors.New("empty csrf token")
)

// RequestError is returned whenever the backend answers with a status other
// than the one documented for the endpoint.
type RequestError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// Is lets callers match authentication failures with errors.Is(err, ErrUnauthorized).
func (e *RequestError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

func (e *RequestError) csrfRejected() bool {
	return e.Status == http.StatusForbidden && strings.Contains(strings.ToLower(e.Message), "csrf")
}

// Message extracts the server-provided message from err, or "" when err is
// not a RequestError.
func Message(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}
