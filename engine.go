package authgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/password"
	"github.com/google/uuid"
)

// Engine defines a public type used by authgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	users      UserStore
	tokens     RefreshTokenStore
	sender     Sender
	audit      *auditDispatcher
	metrics    *Metrics
	hasher     *password.Hasher
	jwtManager *jwt.Manager
	locks      *keyedMutex
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, email, plainPassword string, role Role) (*PublicUser, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrValidation, nil)
		return nil, ErrValidation
	}
	if len(plainPassword) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}

	if role == "" {
		role = e.config.Account.DefaultRole
	}
	if !e.registrableRole(role) {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrRoleInvalid, func() map[string]string {
			return map[string]string{
				"role": string(role),
			}
		})
		return nil, ErrRoleInvalid
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", email, ErrUserExists, nil)
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := e.hasher.HashPassword(plainPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}
	plainPassword = ""

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", email, ErrUserExists, nil)
			return nil, ErrUserExists
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, email, nil, func() map[string]string {
		return map[string]string{
			"role": string(role),
		}
	})

	pub := user.Public()
	return &pub, nil
}

// Login verifies the password and, on success, dispatches a login OTP. It
// never returns tokens: the session is minted by [Engine.VerifyOTP] once the
// emailed code is presented.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) || plainPassword == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return ErrInvalidCredentials
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"reason": "user_not_found",
				}
			})
			return ErrInvalidCredentials
		}
		return err
	}

	unlock := e.locks.lock(user.ID)
	defer unlock()

	now := time.Now()
	if user.Locked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, email, ErrAccountLocked, nil)
		return ErrAccountLocked
	}

	if err := e.hasher.Verify(user.PasswordHash, plainPassword); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			return err
		}
		return e.recordLoginFailure(ctx, user, now)
	}
	plainPassword = ""

	if user.LoginAttempts != 0 || !user.LockUntil.IsZero() {
		user.LoginAttempts = 0
		user.LockUntil = time.Time{}
		if err := e.users.Save(ctx, user); err != nil {
			return err
		}
	}

	if err := e.issueOTP(ctx, user, PurposeLogin); err != nil {
		return err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, email, nil, nil)
	return nil
}

// recordLoginFailure advances the lockout counter under the user's stripe
// lock. A lock window that already elapsed resets the count to one instead of
// stacking onto stale failures.
func (e *Engine) recordLoginFailure(ctx context.Context, user *User, now time.Time) error {
	if !user.LockUntil.IsZero() && !user.LockUntil.After(now) {
		user.LoginAttempts = 1
		user.LockUntil = time.Time{}
	} else {
		user.LoginAttempts++
	}

	locked := false
	if user.LoginAttempts >= e.config.Lockout.MaxAttempts && e.config.Lockout.Duration > 0 {
		user.LockUntil = now.Add(e.config.Lockout.Duration)
		locked = true
	}

	if err := e.users.Save(ctx, user); err != nil {
		return err
	}

	if locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, user.Email, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"reason": "attempts_exhausted",
			}
		})
		return ErrAccountLocked
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Email, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": "password_mismatch",
		}
	})
	return ErrInvalidCredentials
}

// EnsureSuperAdmin creates the bootstrap administrator account when no user
// with the given email exists. Safe to call on every startup.
func (e *Engine) EnsureSuperAdmin(ctx context.Context, email, plainPassword string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}
	if len(plainPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := e.hasher.HashPassword(plainPassword)
	if err != nil {
		return err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleSuperAdmin,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			// lost a startup race with another replica
			return nil
		}
		return err
	}

	log.Print("authgate: super admin account created")
	e.emitAudit(ctx, auditEventSuperAdminBootstrap, true, user.ID, email, nil, nil)
	return nil
}

func (e *Engine) registrableRole(role Role) bool {
	for _, allowed := range e.config.Account.RegistrableRoles {
		if role == allowed {
			return true
		}
	}
	return false
}
