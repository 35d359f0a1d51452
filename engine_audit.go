package shopauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginIssued        = "login_issued"
	auditEventRegistrationIssued = "registration_issued"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshExpired     = "refresh_expired"
	auditEventRefreshMismatch    = "refresh_user_mismatch"
	auditEventReuseDetected      = "refresh_reuse_detected"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventRevokeAll          = "revoke_all"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by shopauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrUnauthorized AuditErrorCode = "unauthorized"
	auditErrInvalidToken AuditErrorCode = "invalid_token"
	auditErrTokenExpired AuditErrorCode = "token_expired"
	auditErrReuse        AuditErrorCode = "refresh_reuse"
	auditErrMismatch     AuditErrorCode = "user_mismatch"
	auditErrRateLimited  AuditErrorCode = "rate_limited"
	auditErrUserNotFound AuditErrorCode = "user_not_found"
	auditErrInternal     AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
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
		IP:            maskedClientIP(ctx),
		CorrelationID: CorrelationIDFromContext(ctx),
		Success:       success,
		Metadata:      metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, profile Profile, ip string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ErrRateLimitExceeded, func() map[string]string {
		return map[string]string{
			"profile": string(profile),
			"ip":      ip,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenReuseDetected):
		return auditErrReuse
	case errors.Is(err, ErrTokenUserMismatch):
		return auditErrMismatch
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimitExceeded):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}
