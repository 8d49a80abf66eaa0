package lifehelper

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventTicketIssued          = "ticket_issued"
	auditEventTicketScanned         = "ticket_scanned"
	auditEventTicketConfirmed       = "ticket_confirmed"
	auditEventTicketConsumed        = "ticket_consumed"
	auditEventTicketRejected        = "ticket_rejected"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventSessionMintFailed     = "session_mint_failed"
	auditEventExchangeLoginSuccess  = "exchange_login_success"
	auditEventExchangeLoginFailure  = "exchange_login_failure"
	auditEventCredentialFetched     = "credential_fetched"
	auditEventCredentialRefreshed   = "credential_refreshed"
	auditEventCredentialProbeFailed = "credential_probe_failed"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrTicketNotFound    AuditErrorCode = "ticket_not_found"
	auditErrInvalidTransition AuditErrorCode = "invalid_transition"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrCodeInvalid       AuditErrorCode = "code_invalid"
	auditErrInvalidIdentity   AuditErrorCode = "invalid_identity"
	auditErrInvalidCredential AuditErrorCode = "upstream_credential_invalid"
	auditErrUpstream          AuditErrorCode = "upstream_unavailable"
	auditErrSessionMintFailed AuditErrorCode = "session_mint_failed"
	auditErrUnauthorized      AuditErrorCode = "unauthorized"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	ticketID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TicketID:  ticketID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTicketNotFound):
		return auditErrTicketNotFound
	case errors.Is(err, ErrInvalidTransition):
		return auditErrInvalidTransition
	case errors.Is(err, ErrTicketRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrExchangeCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrInvalidIdentity):
		return auditErrInvalidIdentity
	case errors.Is(err, ErrUpstreamInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrUpstreamUnavailable):
		return auditErrUpstream
	case errors.Is(err, ErrSessionMintFailed):
		return auditErrSessionMintFailed
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
