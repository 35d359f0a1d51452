package shopauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mfaulken/shopauth/internal/rate"
	"github.com/mfaulken/shopauth/jwt"
	"github.com/mfaulken/shopauth/token"
)

// Engine defines a public type used by shopauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	jwtManager   *jwt.Manager
	tokens       token.Store
	guard        *Guard
	audit        *auditDispatcher
	metrics      *Metrics
	userProvider UserProvider
	now          func() time.Time
}

// Close drains and stops the async audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters into plain maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Guard returns the throttle guard, nil when throttling is disabled.
func (e *Engine) Guard() *Guard {
	if e == nil {
		return nil
	}
	return e.guard
}

/*
====================================
ISSUING
====================================
*/

// IssueOnLogin mints a fresh access/refresh pair for userID. The caller has
// already verified credentials; this is the post-authentication half of
// login only.
//
// IssueOnLogin may return an error when input validation, dependency calls, or security checks fail.
// IssueOnLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) IssueOnLogin(ctx context.Context, userID string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := e.issuePair(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginIssued, false, userID, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginIssued)
	e.emitAudit(ctx, auditEventLoginIssued, true, userID, nil, nil)
	return pair, nil
}

// IssueOnRegistration mints the first pair for a newly created account. The
// semantics match [Engine.IssueOnLogin]; the event stream keeps the two
// apart so registration abuse stays visible.
func (e *Engine) IssueOnRegistration(ctx context.Context, userID string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := e.issuePair(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventRegistrationIssued, false, userID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationIssued)
	e.emitAudit(ctx, auditEventRegistrationIssued, true, userID, nil, nil)
	return pair, nil
}

func (e *Engine) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	rec, err := e.tokens.Create(ctx, user.ID, e.config.JWT.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh record create: %w", err)
	}

	access, err := e.jwtManager.CreateAccess(user.ID, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("access sign: %w", err)
	}

	refresh, err := e.jwtManager.CreateRefresh(user.ID, rec.ID, e.config.JWT.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh sign: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

/*
====================================
ROTATION
====================================
*/

// Rotate exchanges a refresh token for a new pair. The presented token is
// revoked in the same step, so each refresh token is spendable exactly once.
//
// A token whose jti is unknown or already revoked is treated as stolen: every
// refresh token of the claimed subject is revoked before
// [ErrTokenReuseDetected] comes back. A token presented for a different
// subject than the record's owner yields [ErrTokenUserMismatch]; one past
// its expiry yields [ErrTokenExpired].
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*RotateResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		if jwt.IsExpired(err) {
			e.metricInc(MetricRefreshExpired)
			e.emitAudit(ctx, auditEventRefreshExpired, false, "", ErrTokenExpired, nil)
			return nil, ErrTokenExpired
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	userID := claims.Subject
	rec, err := e.tokens.Rotate(ctx, claims.RegisteredClaims.ID, userID, e.config.JWT.RefreshTTL)
	if err != nil {
		return nil, e.rotateFailure(ctx, userID, err)
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		// The old token is already spent at this point. Failing the whole
		// rotation is still correct: the client re-authenticates, and no
		// pair exists for an account the provider no longer knows.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, ErrUserNotFound, nil)
		return nil, ErrUserNotFound
	}

	access, err := e.jwtManager.CreateAccess(user.ID, user.Roles)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("access sign: %w", err)
	}

	refresh, err := e.jwtManager.CreateRefresh(user.ID, rec.ID, e.config.JWT.RefreshTTL)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("refresh sign: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, nil, nil)

	return &RotateResult{
		Pair: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
		},
		UserID: userID,
	}, nil
}

func (e *Engine) rotateFailure(ctx context.Context, userID string, err error) error {
	switch {
	case errors.Is(err, token.ErrNotFound), errors.Is(err, token.ErrRevoked):
		// A signed token pointing at a missing or spent record means the
		// original was already rotated by someone else. Burn the whole
		// family for the claimed subject.
		if _, revokeErr := e.tokens.RevokeAll(ctx, userID); revokeErr != nil {
			log.Print("shopauth: mass revocation failed after reuse detection")
		}
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventReuseDetected, false, userID, ErrTokenReuseDetected, nil)
		return ErrTokenReuseDetected

	case errors.Is(err, token.ErrUserMismatch):
		e.metricInc(MetricRefreshUserMismatch)
		e.emitAudit(ctx, auditEventRefreshMismatch, false, userID, ErrTokenUserMismatch, nil)
		return ErrTokenUserMismatch

	case errors.Is(err, token.ErrExpired):
		e.metricInc(MetricRefreshExpired)
		e.emitAudit(ctx, auditEventRefreshExpired, false, userID, ErrTokenExpired, nil)
		return ErrTokenExpired

	default:
		e.metricInc(MetricRefreshFailure)
		return fmt.Errorf("refresh rotate: %w", err)
	}
}

/*
====================================
REVOCATION
====================================
*/

// Logout invalidates the session behind refreshToken. When the subject holds
// more than one active refresh token, every one of them is revoked; a user
// who logs out on one device while others are signed in is assumed to want
// all of them gone.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	userID := claims.Subject
	active, err := e.tokens.CountActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("active count: %w", err)
	}

	if active > 1 {
		if _, err := e.tokens.RevokeAll(ctx, userID); err != nil {
			return fmt.Errorf("logout all: %w", err)
		}
		e.metricInc(MetricLogoutAll)
		e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, func() map[string]string {
			return map[string]string{"active_before": fmt.Sprint(active)}
		})
		return nil
	}

	if err := e.tokens.Revoke(ctx, claims.RegisteredClaims.ID); err != nil && !errors.Is(err, token.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, nil, nil)
	return nil
}

// RevokeAll revokes every refresh token of userID and reports how many were
// still usable. Callers invoke it on password reset and on administrative
// lockout.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all: %w", err)
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

/*
====================================
VALIDATION
====================================
*/

// ValidateAccess verifies an access token and returns the identity inside
// it. Purely local: no store round-trip, which is why revocation only ever
// applies to refresh tokens.
//
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	e.metricObserve(MetricValidateLatency, e.now().Sub(start))

	return &AuthResult{
		UserID: claims.ID,
		Roles:  claims.Roles,
	}, nil
}

func (e *Engine) redisBacked() bool {
	_, ok := e.tokens.(*token.RedisStore)
	return ok
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func maskedClientIP(ctx context.Context) string {
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return ""
	}
	return rate.MaskIP(ip)
}
