package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestForgotPasswordIssuesResetCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")

	if err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	user := env.users.get(t, "alice@example.com")
	if !user.ResetOTP.Active() {
		t.Fatal("expected an outstanding reset OTP")
	}
	if user.ResetOTP.Verified {
		t.Fatal("fresh reset OTP must not start verified")
	}
	if user.LoginOTP.Active() {
		t.Fatal("reset flow must not touch the login OTP slot")
	}
}

func TestResetPasswordRequiresVerification(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.sender.lastOTP(t)

	// skipping VerifyResetOTP is rejected even with the right code
	err := env.engine.ResetPassword(ctx, "alice@example.com", code, "brand-new-password")
	if !errors.Is(err, ErrNoOTPRequested) {
		t.Fatalf("expected ErrNoOTPRequested, got %v", err)
	}
}

func TestResetPasswordFullFlow(t *testing.T) {
	env := newTestEngine(t, testConfig())
	userID := env.registerUser(t, "alice@example.com", "secret1")
	ctx := context.Background()

	// a live session that must die with the old password
	env.loginAndVerify(t, "alice@example.com", "secret1")
	if env.tokens.liveCount(userID) != 1 {
		t.Fatalf("expected 1 live session, got %d", env.tokens.liveCount(userID))
	}

	// a few failed logins so we can observe the lockout counters clearing
	_ = env.engine.Login(ctx, "alice@example.com", "wrong")
	_ = env.engine.Login(ctx, "alice@example.com", "wrong")

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.sender.lastOTP(t)

	if err := env.engine.VerifyResetOTP(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyResetOTP failed: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "alice@example.com", code, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	user := env.users.get(t, "alice@example.com")
	if user.ResetOTP.Active() {
		t.Fatal("reset state must be consumed")
	}
	if user.LoginAttempts != 0 || !user.LockUntil.IsZero() {
		t.Fatal("lockout counters must clear on reset")
	}
	if env.tokens.total() != 0 {
		t.Fatalf("expected ledger purged, %d records remain", env.tokens.total())
	}

	// old password dead, new password live
	if err := env.engine.Login(ctx, "alice@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if err := env.engine.Login(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetPasswordPolicy(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.sender.lastOTP(t)
	if err := env.engine.VerifyResetOTP(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyResetOTP failed: %v", err)
	}

	// the reset floor is stricter than the registration floor
	if err := env.engine.ResetPassword(ctx, "alice@example.com", code, "seven77"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	// the verified state survives a policy rejection
	if err := env.engine.ResetPassword(ctx, "alice@example.com", code, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword after policy retry failed: %v", err)
	}
}

func TestResetPasswordWrongCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.sender.lastOTP(t)
	if err := env.engine.VerifyResetOTP(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyResetOTP failed: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	// both calls must carry the same code
	if err := env.engine.ResetPassword(ctx, "alice@example.com", wrong, "brand-new-password"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if got := env.users.get(t, "alice@example.com").ResetOTP.Attempts; got == 0 {
		t.Fatal("wrong code at reset must consume an attempt")
	}
}

func TestVerifyResetOTPWrongCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")
	ctx := context.Background()

	if err := env.engine.VerifyResetOTP(ctx, "alice@example.com", "123456"); !errors.Is(err, ErrNoOTPRequested) {
		t.Fatalf("expected ErrNoOTPRequested, got %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.sender.lastOTP(t)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if err := env.engine.VerifyResetOTP(ctx, "alice@example.com", wrong); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if env.users.get(t, "alice@example.com").ResetOTP.Verified {
		t.Fatal("wrong code must not mark the state verified")
	}
}
