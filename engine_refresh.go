package authgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/authgate/authgate/jwt"
)

// Refresh rotates a refresh token: the presented token's ledger record is
// revoked and a fresh pair is minted.
//
// Reuse detection is fail-closed. A structurally valid, correctly signed
// token with no live ledger record means the token was already rotated —
// someone is replaying it — so every live session for that user is revoked.
// A token that fails verification, whether the signature is wrong or the
// expiry has passed, is the same kind of signal: a stale token being
// presented is a replay candidate, so if a subject can still be extracted
// from the payload that account's sessions are revoked too.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil, e.handleUnverifiedRefresh(ctx, refreshToken, errors.Is(err, jwt.ErrTokenExpired))
	}

	userID := claims.Subject
	if userID == "" {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "missing_subject",
			}
		})
		return nil, ErrRefreshInvalid
	}

	records, err := e.tokens.FindLive(ctx, userID)
	if err != nil {
		return nil, err
	}

	matched, found := e.matchRecord(records, refreshToken)
	if !found {
		return nil, e.handleRefreshReuse(ctx, userID)
	}

	performed, err := e.tokens.Revoke(ctx, matched.ID)
	if err != nil {
		return nil, err
	}
	if !performed {
		// a concurrent rotation already claimed this record; the loser is
		// indistinguishable from a replay, fail closed
		return nil, e.handleRefreshReuse(ctx, userID)
	}

	// role and account state are re-read, never trusted from the old token
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", ErrRefreshInvalid, func() map[string]string {
				return map[string]string{
					"reason": "user_gone",
				}
			})
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	session, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, user.Email, nil, nil)
	return session, nil
}

func (e *Engine) matchRecord(records []RefreshTokenRecord, refreshToken string) (RefreshTokenRecord, bool) {
	for _, record := range records {
		if err := e.hasher.VerifyRefreshToken(record.TokenHash, refreshToken); err == nil {
			return record, true
		}
	}
	return RefreshTokenRecord{}, false
}

func (e *Engine) handleRefreshReuse(ctx context.Context, userID string) error {
	if err := e.tokens.RevokeAll(ctx, userID); err != nil {
		log.Print("authgate: revoke-all failed during reuse handling")
	}
	e.metricInc(MetricRefreshReuseDetected)
	e.emitAudit(ctx, auditEventRefreshReuse, false, userID, "", ErrRefreshReuse, nil)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"trigger": "refresh_reuse",
		}
	})
	return ErrRefreshReuse
}

// handleUnverifiedRefresh is the shared path for tokens that fail signature
// or expiry verification. Both attribute the token to its claimed subject via
// the unverified decode and sweep that account's sessions; the caller sees a
// uniform ErrRefreshInvalid either way.
func (e *Engine) handleUnverifiedRefresh(ctx context.Context, refreshToken string, expired bool) error {
	if !expired {
		e.metricInc(MetricRefreshTampered)
	}

	subject, ok := jwt.DecodeSubjectUnverified(refreshToken)
	if !ok {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "undecodable",
			}
		})
		return ErrRefreshInvalid
	}

	if err := e.tokens.RevokeAll(ctx, subject); err != nil {
		log.Print("authgate: revoke-all failed during refresh sweep")
	}

	event, trigger := auditEventRefreshTampered, "refresh_tamper"
	if expired {
		e.metricInc(MetricRefreshFailure)
		event, trigger = auditEventRefreshInvalid, "refresh_expired"
	}
	e.emitAudit(ctx, event, false, subject, "", ErrRefreshInvalid, nil)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, subject, "", nil, func() map[string]string {
		return map[string]string{
			"trigger": trigger,
		}
	})
	return ErrRefreshInvalid
}

// Logout revokes every ledger record for the account named by the presented
// refresh token. It is unconditionally best-effort and idempotent: a missing,
// malformed, expired, or already-rotated token is not an error, and neither
// is a store failure — from the caller's point of view logout always
// succeeds. The signature is deliberately not required: the caller is giving
// up sessions, not gaining anything.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	subject, ok := jwt.DecodeSubjectUnverified(refreshToken)
	if !ok {
		return nil
	}

	if err := e.tokens.RevokeAll(ctx, subject); err != nil {
		log.Print("authgate: revoke-all failed during logout")
		return nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, subject, "", nil, nil)
	return nil
}

// Validate parses and verifies an access token for transport middleware.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		UserID: claims.Subject,
		Role:   Role(claims.Role),
	}, nil
}

// Me resolves an access token to the current account record.
func (e *Engine) Me(ctx context.Context, accessToken string) (*PublicUser, error) {
	result, err := e.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := e.users.FindByID(ctx, result.UserID)
	if err != nil {
		return nil, err
	}

	pub := user.Public()
	return &pub, nil
}
