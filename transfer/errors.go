package transfer

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks a malformed or incomplete upload request.
	ErrValidation = errors.New("transfer: invalid request")
	// ErrUnauthorized marks an upload refused by the authorization checks.
	ErrUnauthorized = errors.New("transfer: unauthorized")
	// ErrRejected marks any non-success response from a peer.
	ErrRejected = errors.New("transfer: rejected by peer")
	// ErrNetwork marks connection or TLS failures.
	ErrNetwork = errors.New("transfer: network failure")
)

// RemoteError carries a peer's non-success response.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("peer responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("peer responded %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrRejected and, for 400/403, the specific class.
func (e *RemoteError) Unwrap() []error {
	errs := []error{ErrRejected}
	switch e.StatusCode {
	case http.StatusBadRequest:
		errs = append(errs, ErrValidation)
	case http.StatusForbidden:
		errs = append(errs, ErrUnauthorized)
	}
	return errs
}
