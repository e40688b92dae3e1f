package assistant

import (
	"errors"
	"fmt"
)

// ErrTransient marks failures that are eligible for retry: network errors,
// rate limiting and server side unavailability.
var ErrTransient = errors.New("assistant service temporarily unavailable")

// APIError is a permanent error reported by the assistant service.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("assistant api error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("assistant api error %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
