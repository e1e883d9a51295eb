package portalauth

import (
	"context"
	"errors"
	"time"

	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
	"github.com/PatonaIM/teamified-accounts-sub013/supabase"
)

const (
	auditEventStorageSelected       = "auth.storage_selected"
	auditEventSignInStarted         = "auth.sign_in_started"
	auditEventSignInFailed          = "auth.sign_in_failed"
	auditEventExchangeSucceeded     = "auth.exchange_succeeded"
	auditEventExchangeFailed        = "auth.exchange_failed"
	auditEventProfileUnavailable    = "auth.profile_unavailable"
	auditEventSignOut               = "auth.sign_out"
	auditEventSharedSessionDetected = "auth.shared_session_detected"
)

// AuditErrorCode is the stable, non-sensitive error class recorded on
// failed audit events.
type AuditErrorCode string

const (
	auditErrNoSession         AuditErrorCode = "no_session"
	auditErrProvider          AuditErrorCode = "provider_error"
	auditErrUnauthorized      AuditErrorCode = "unauthorized"
	auditErrBackendRejected   AuditErrorCode = "backend_rejected"
	auditErrIncompleteTokens  AuditErrorCode = "incomplete_token_pair"
	auditErrMalformedResponse AuditErrorCode = "malformed_response"
	auditErrCanceled          AuditErrorCode = "canceled"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
)

func (o *Orchestrator) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if o == nil || o.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	meta := metaFrom(ctx)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        meta.ip,
		UserAgent: meta.userAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	o.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var providerErr *supabase.ProviderError
	switch {
	case errors.As(err, &providerErr):
		return auditErrProvider
	case portalapi.IsStatus(err, 401), portalapi.IsStatus(err, 403):
		return auditErrUnauthorized
	case errors.Is(err, portalapi.ErrUnexpectedStatus):
		return auditErrBackendRejected
	case errors.Is(err, portalapi.ErrIncompleteTokenPair):
		return auditErrIncompleteTokens
	case errors.Is(err, portalapi.ErrMalformedResponse):
		return auditErrMalformedResponse
	case errIs(err, context.Canceled, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrNoSession):
		return auditErrNoSession
	default:
		return auditErrUnavailable
	}
}

// errIs is errors.Is over several targets.
func errIs(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
