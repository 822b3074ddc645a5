package goSession

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSessionCreated       = "session_created"
	auditEventSessionCreateFailed  = "session_create_failed"
	auditEventSessionVerified      = "session_verified"
	auditEventSessionVerifyFailed  = "session_verify_failed"
	auditEventSessionRefreshed     = "session_refreshed"
	auditEventSessionRefreshFailed = "session_refresh_failed"
	auditEventTokenTheftDetected   = "token_theft_detected"
	auditEventClaimsInvalid        = "claims_invalid"
	auditEventSessionRevoked       = "session_revoked"
	auditEventSessionsRevokedUser  = "sessions_revoked_for_user"
	auditEventLegacyCookieCleared  = "legacy_cookie_cleared"
)

// AuditErrorCode is the stable error label written to audit events.
type AuditErrorCode string

const (
	auditErrTryRefresh       AuditErrorCode = "try_refresh_token"
	auditErrUnauthorised     AuditErrorCode = "unauthorised"
	auditErrTokenTheft       AuditErrorCode = "token_theft_detected"
	auditErrInvalidClaims    AuditErrorCode = "invalid_claims"
	auditErrInsecureConfig   AuditErrorCode = "insecure_configuration"
	auditErrProtectedClaim   AuditErrorCode = "protected_claim"
	auditErrCoreUnavailable  AuditErrorCode = "core_unavailable"
	auditErrCanceled         AuditErrorCode = "canceled"
	auditErrInvalidStructure AuditErrorCode = "invalid_token_structure"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	handle string,
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
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		UserID:        userID,
		TenantID:      tenantID,
		SessionHandle: handle,
		IP:            clientIPFromContext(ctx),
		Success:       success,
		Metadata:      metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitSessionAudit(ctx context.Context, eventType string, s *Session, method TransferMethod, err error) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Transfer:  string(method),
		IP:        clientIPFromContext(ctx),
		Success:   err == nil,
	}
	if s != nil {
		event.UserID = s.userID
		event.RecipeUserID = s.recipeUserID
		event.TenantID = s.tenantID
		event.SessionHandle = s.handle
	}
	var theft *TokenTheftError
	if errors.As(err, &theft) {
		event.UserID = theft.UserID
		event.RecipeUserID = theft.RecipeUserID
		event.SessionHandle = theft.SessionHandle
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
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrTryRefreshToken):
		return auditErrTryRefresh
	case errors.Is(err, ErrUnauthorised):
		return auditErrUnauthorised
	case errors.Is(err, ErrTokenTheftDetected):
		return auditErrTokenTheft
	case errors.Is(err, ErrInvalidClaims):
		return auditErrInvalidClaims
	case errors.Is(err, ErrInsecureConfiguration):
		return auditErrInsecureConfig
	case errors.Is(err, ErrProtectedClaim):
		return auditErrProtectedClaim
	case errors.Is(err, ErrInvalidTokenStructure):
		return auditErrInvalidStructure
	case errors.Is(err, ErrCoreUnavailable):
		return auditErrCoreUnavailable
	default:
		return auditErrInternal
	}
}
