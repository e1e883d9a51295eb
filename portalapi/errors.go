package portalapi

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBaseURL      = errors.New("portalapi: invalid base url")
	ErrUnexpectedStatus    = errors.New("portalapi: unexpected status")
	ErrIncompleteTokenPair = errors.New("portalapi: exchange response missing tokens")
	ErrMalformedResponse   = errors.New("portalapi: malformed response")
	ErrMissingToken        = errors.New("portalapi: token is required")
)

// StatusError carries a non-2xx backend response. The backend's message, when
// it sends one, is kept verbatim.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("portalapi: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("portalapi: %s returned %d", e.Endpoint, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
