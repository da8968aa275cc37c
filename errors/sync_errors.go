// errors/sync_errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrCredentialRejected = errors.New("credential rejected by backend")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrUnknownTrigger     = errors.New("unknown trigger kind")
	ErrQueueClosed        = errors.New("processing queue closed")
	ErrDatabaseMismatch   = errors.New("webhook database does not match configured database")
	ErrInternalServer     = errors.New("internal server error")
)

// RemoteError is a non-2xx answer from the backend.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// Is reports 401 and 403 answers as ErrCredentialRejected and 404 as
// ErrEntityNotFound so callers can branch with errors.Is.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrCredentialRejected:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrEntityNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
