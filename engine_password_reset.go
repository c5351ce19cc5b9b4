package authgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/authgate/authgate/password"
)

// ForgotPassword issues a reset code to the account's email. The reset code
// uses its own sub-record, TTL, and attempt budget; an outstanding login code
// is unaffected.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
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

	if err := e.issueOTP(ctx, user, PurposeReset); err != nil {
		return err
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, user.ID, user.Email, nil, nil)
	return nil
}

// VerifyResetOTP checks the reset code without consuming it. On success the
// sub-record is marked verified and stays on file: it is the
// proof-of-possession [Engine.ResetPassword] requires. Verification and the
// actual reset are separate calls so a client can confirm the code before
// asking the user to type a new password.
func (e *Engine) VerifyResetOTP(ctx context.Context, email, code string) error {
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

	if err := e.checkOTP(ctx, user, PurposeReset, code); err != nil {
		return err
	}

	if err := e.users.Save(ctx, user); err != nil {
		return err
	}

	e.metricInc(MetricResetVerified)
	e.emitAudit(ctx, auditEventResetVerified, true, user.ID, user.Email, nil, nil)
	return nil
}

// ResetPassword replaces the account password. It requires a reset code that
// was already confirmed through [Engine.VerifyResetOTP]; an unverified or
// absent code fails with [ErrNoOTPRequested]. The presented code is checked
// against the stored digest once more so the two calls must carry the same
// code. On success the reset state is consumed, the lockout counters clear,
// and every refresh-token record for the user is deleted.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}
	if len(newPassword) < e.config.Password.ResetMinLength {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, "", email, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(user.ID)
	defer unlock()

	state := &user.ResetOTP
	now := time.Now()

	if !state.Active() || !state.Verified {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, user.ID, user.Email, ErrNoOTPRequested, func() map[string]string {
			return map[string]string{
				"reason": "not_verified",
			}
		})
		return ErrNoOTPRequested
	}

	if !state.ExpiresAt.After(now) {
		attempts := state.Attempts
		state.Clear()
		state.Attempts = attempts
		if err := e.users.Save(ctx, user); err != nil {
			return err
		}
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, user.ID, user.Email, ErrOTPExpired, nil)
		return ErrOTPExpired
	}

	if err := e.hasher.Verify(state.Hash, code); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			return err
		}
		state.Attempts++
		if err := e.users.Save(ctx, user); err != nil {
			return err
		}
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, user.ID, user.Email, ErrInvalidOTP, nil)
		return ErrInvalidOTP
	}

	newHash, err := e.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	user.PasswordHash = newHash
	user.LoginAttempts = 0
	user.LockUntil = time.Time{}
	state.Clear()

	if err := e.users.Save(ctx, user); err != nil {
		return err
	}

	// every outstanding session dies with the old password
	if err := e.tokens.DeleteAll(ctx, user.ID); err != nil {
		log.Print("authgate: ledger purge failed after password reset")
		e.emitAudit(ctx, auditEventResetFailure, false, user.ID, user.Email, err, func() map[string]string {
			return map[string]string{
				"reason": "ledger_purge_failed",
			}
		})
		return err
	}

	e.metricInc(MetricResetSuccess)
	e.emitAudit(ctx, auditEventResetSuccess, true, user.ID, user.Email, nil, nil)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, user.ID, user.Email, nil, func() map[string]string {
		return map[string]string{
			"trigger": "password_reset",
		}
	})
	return nil
}
