package authgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/password"
)

func (e *Engine) otpConfigFor(purpose OTPPurpose) OTPConfig {
	if purpose == PurposeReset {
		return e.config.ResetOTP
	}
	return e.config.LoginOTP
}

func stateFor(user *User, purpose OTPPurpose) *OTPState {
	if purpose == PurposeReset {
		return &user.ResetOTP
	}
	return &user.LoginOTP
}

// issueOTP generates, hashes, persists, and dispatches a fresh code for the
// given purpose. Caller must hold the user's stripe lock.
//
// The state is persisted before the email is sent so a crash mid-dispatch
// can never leave a deliverable code without a stored digest. If dispatch
// definitively fails the state is rolled back: the user should never be
// asked for a code that was never delivered.
func (e *Engine) issueOTP(ctx context.Context, user *User, purpose OTPPurpose) error {
	cfg := e.otpConfigFor(purpose)
	state := stateFor(user, purpose)
	now := time.Now()

	// gated purely on the persisted counter: an expired code does not hand
	// the budget back, so a capped-out user stays capped until intervention
	if state.Attempts >= cfg.MaxAttempts {
		e.metricInc(MetricOTPRateLimited)
		e.emitAudit(ctx, auditEventOTPRateLimited, false, user.ID, user.Email, ErrTooManyOTPAttempts, func() map[string]string {
			return map[string]string{
				"purpose": purpose.String(),
			}
		})
		return ErrTooManyOTPAttempts
	}

	code, err := internal.NewOTP(cfg.Digits)
	if err != nil {
		return err
	}
	hash, err := e.hasher.HashOTP(code)
	if err != nil {
		return err
	}

	previous := *state
	*state = OTPState{
		Hash:      hash,
		ExpiresAt: now.Add(cfg.TTL),
	}
	if err := e.users.Save(ctx, user); err != nil {
		*state = previous
		return err
	}

	var msg Message
	minutes := int(cfg.TTL.Minutes())
	if purpose == PurposeReset {
		msg = resetOTPMessage(e.config.Email.From, user.Email, code, minutes)
	} else {
		msg = loginOTPMessage(e.config.Email.From, user.Email, code, minutes)
	}

	if err := e.sender.Send(ctx, msg); err != nil {
		state.Clear()
		state.Attempts = previous.Attempts
		if saveErr := e.users.Save(ctx, user); saveErr != nil {
			log.Print("authgate: otp rollback save failed after delivery error")
		}
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventDeliveryFailure, false, user.ID, user.Email, ErrDeliveryFailed, func() map[string]string {
			return map[string]string{
				"purpose": purpose.String(),
			}
		})
		return ErrDeliveryFailed
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, user.ID, user.Email, nil, func() map[string]string {
		return map[string]string{
			"purpose": purpose.String(),
		}
	})
	return nil
}

// checkOTP validates a presented code against the stored state for the given
// purpose. Caller must hold the user's stripe lock. On success the state is
// mutated in memory (cleared for login, marked verified for reset) but NOT
// persisted; the caller decides what else to fold into the same Save.
func (e *Engine) checkOTP(ctx context.Context, user *User, purpose OTPPurpose, code string) error {
	cfg := e.otpConfigFor(purpose)
	state := stateFor(user, purpose)
	now := time.Now()

	if !state.Active() {
		e.metricInc(MetricOTPFailure)
		e.emitAudit(ctx, auditEventOTPFailure, false, user.ID, user.Email, ErrNoOTPRequested, func() map[string]string {
			return map[string]string{
				"purpose": purpose.String(),
				"reason":  "no_otp",
			}
		})
		return ErrNoOTPRequested
	}

	if !state.ExpiresAt.After(now) {
		// the code dies but the spent budget does not: a lapsed TTL must
		// not hand a hammering caller a fresh set of attempts
		attempts := state.Attempts
		state.Clear()
		state.Attempts = attempts
		if err := e.users.Save(ctx, user); err != nil {
			return err
		}
		e.metricInc(MetricOTPExpired)
		e.emitAudit(ctx, auditEventOTPFailure, false, user.ID, user.Email, ErrOTPExpired, func() map[string]string {
			return map[string]string{
				"purpose": purpose.String(),
				"reason":  "expired",
			}
		})
		return ErrOTPExpired
	}

	// the stored digest is consulted before any attempt accounting: only a
	// mismatch consumes a try, and a matching code is honored at any count
	if !validOTPFormat(code, cfg.Digits) {
		return e.failOTPAttempt(ctx, user, purpose, state, cfg, "format")
	}

	if err := e.hasher.Verify(state.Hash, code); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			return err
		}
		return e.failOTPAttempt(ctx, user, purpose, state, cfg, "mismatch")
	}

	if purpose == PurposeReset {
		state.Verified = true
	} else {
		state.Clear()
	}
	return nil
}

// failOTPAttempt books one failed try. The counter keeps climbing past the
// cap; once it reaches the cap the failure escalates from ErrInvalidOTP to
// ErrTooManyOTPAttempts and the issue-path rate limit engages.
func (e *Engine) failOTPAttempt(ctx context.Context, user *User, purpose OTPPurpose, state *OTPState, cfg OTPConfig, reason string) error {
	state.Attempts++
	failure := ErrInvalidOTP
	if state.Attempts >= cfg.MaxAttempts {
		failure = ErrTooManyOTPAttempts
	}
	if err := e.users.Save(ctx, user); err != nil {
		return err
	}
	e.metricInc(MetricOTPFailure)
	e.emitAudit(ctx, auditEventOTPFailure, false, user.ID, user.Email, failure, func() map[string]string {
		return map[string]string{
			"purpose": purpose.String(),
			"reason":  reason,
		}
	})
	return failure
}
