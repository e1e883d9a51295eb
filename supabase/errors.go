package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig     = errors.New("supabase: invalid config")
	ErrProviderRequired  = errors.New("supabase: provider is required")
	ErrNoPendingSignIn   = errors.New("supabase: no sign-in in progress")
	ErrMissingCode       = errors.New("supabase: callback missing authorization code")
	ErrMalformedResponse = errors.New("supabase: malformed response")
)

// ProviderError is an error reported by Supabase Auth. Message is the
// provider's text, unmodified, so hosts can show it to the user.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// Describe is Error with the status and code prefixed, for logs.
func (e *ProviderError) Describe() string {
	if e.Code == "" {
		return fmt.Sprintf("supabase: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supabase: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// parseProviderError reads the GoTrue error shapes: the OAuth style
// {error, error_description} and the API style {code, error_code, msg}.
func parseProviderError(status int, body []byte) *ProviderError {
	var payload struct {
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
		ErrorCode        string          `json:"error_code"`
		Msg              string          `json:"msg"`
		Message          string          `json:"message"`
		Code             json.RawMessage `json:"code"`
	}
	pe := &ProviderError{StatusCode: status}
	if err := json.Unmarshal(body, &payload); err != nil {
		pe.Message = fmt.Sprintf("unexpected response status %d", status)
		return pe
	}

	pe.Code = payload.ErrorCode
	if pe.Code == "" {
		pe.Code = payload.Error
	}
	switch {
	case payload.ErrorDescription != "":
		pe.Message = payload.ErrorDescription
	case payload.Msg != "":
		pe.Message = payload.Msg
	case payload.Message != "":
		pe.Message = payload.Message
	case payload.Error != "":
		pe.Message = payload.Error
	default:
		pe.Message = fmt.Sprintf("unexpected response status %d", status)
	}
	return pe
}
