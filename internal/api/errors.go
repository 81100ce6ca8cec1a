package api

import (
	"errors"
	"fmt"
)

// TransportError is a failed exchange with the remote service.
// Transient errors (timeouts, connection failures, 5xx-class
// responses) are retryable; everything else is a permanent rejection
// of the request.
type TransportError struct {
	Status    int
	Message   string
	Transient bool
	Err       error
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "" && e.Status > 0:
		return fmt.Sprintf("transport error (status %d): %s", e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("transport error: %s", e.Message)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %v", e.Err)
	default:
		return fmt.Sprintf("transport error (status %d)", e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a credential rejection by the remote service. It is
// never retried by the upload coordinator; the synchronization pass
// halts until re-authentication succeeds.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s", e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable transport condition.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Transient
}
