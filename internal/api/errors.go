package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// Error is a non-2xx answer from the invoicing API.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
}

// Is lets callers match status classes with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// SchemaError reports a payload that decoded as JSON but does not describe a
// valid resource. Index is the position in a list response, -1 for single objects.
type SchemaError struct {
	Resource string
	Index    int
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("malformed %s at index %d: %v", e.Resource, e.Index, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
