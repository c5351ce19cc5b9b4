package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RequestOTP re-issues the login code for a user who is mid-login, for
// example when the first email never arrived. The issue-path rate limit
// applies: a live code with exhausted attempts blocks re-issue until expiry.
func (e *Engine) RequestOTP(ctx context.Context, email string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(user.ID)
	defer unlock()

	if user.Locked(time.Now()) {
		return ErrAccountLocked
	}

	return e.issueOTP(ctx, user, PurposeLogin)
}

// VerifyOTP redeems a login code for a token pair. The refresh-token ledger
// record is persisted before either token is returned, so every token the
// caller ever sees is rotatable.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (*Session, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrValidation
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(user.ID)
	defer unlock()

	if err := e.checkOTP(ctx, user, PurposeLogin, code); err != nil {
		return nil, err
	}

	// fold the OTP clear and lockout reset into one write
	user.LoginAttempts = 0
	user.LockUntil = time.Time{}
	if err := e.users.Save(ctx, user); err != nil {
		return nil, err
	}

	session, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOTPSuccess)
	e.emitAudit(ctx, auditEventOTPVerified, true, user.ID, user.Email, nil, nil)
	return session, nil
}

// issueSession mints an access/refresh pair and persists the ledger record
// for the refresh token. Tokens are returned only after the record exists.
func (e *Engine) issueSession(ctx context.Context, user *User) (*Session, error) {
	access, err := e.jwtManager.CreateAccess(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := e.jwtManager.CreateRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	tokenHash, err := e.hasher.HashRefreshToken(refresh)
	if err != nil {
		return nil, err
	}

	record := RefreshTokenRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: time.Now().Add(e.config.JWT.RefreshTTL),
	}
	if err := e.tokens.Create(ctx, record); err != nil {
		e.emitAudit(ctx, auditEventSessionIssued, false, user.ID, user.Email, err, func() map[string]string {
			return map[string]string{
				"reason": "ledger_create_failed",
			}
		})
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, ErrStoreUnavailable
	}

	e.emitAudit(ctx, auditEventSessionIssued, true, user.ID, user.Email, nil, nil)

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.Public(),
	}, nil
}
