package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterSuccess     = "register_success"
	auditEventRegisterFailure     = "register_failure"
	auditEventRegisterDuplicate   = "register_duplicate"
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginLocked         = "login_locked"
	auditEventOTPIssued           = "otp_issued"
	auditEventOTPRateLimited      = "otp_rate_limited"
	auditEventOTPVerified         = "otp_verified"
	auditEventOTPFailure          = "otp_failure"
	auditEventSessionIssued       = "session_issued"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuse        = "refresh_reuse_detected"
	auditEventRefreshTampered     = "refresh_tamper_detected"
	auditEventLogout              = "logout"
	auditEventResetRequested      = "password_reset_requested"
	auditEventResetVerified       = "password_reset_verified"
	auditEventResetSuccess        = "password_reset_success"
	auditEventResetFailure        = "password_reset_failure"
	auditEventDeliveryFailure     = "email_delivery_failure"
	auditEventSessionsRevoked     = "sessions_revoked"
	auditEventSuperAdminBootstrap = "super_admin_bootstrap"
)

// AuditErrorCode defines a public type used by authgate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRoleInvalid        AuditErrorCode = "role_invalid"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrNoOTPRequested     AuditErrorCode = "no_otp_requested"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrOTPInvalid         AuditErrorCode = "otp_invalid"
	auditErrOTPAttempts        AuditErrorCode = "otp_attempts_exceeded"
	auditErrTokenInvalid       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
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
		Email:     email,
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
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrNoOTPRequested):
		return auditErrNoOTPRequested
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrInvalidOTP):
		return auditErrOTPInvalid
	case errors.Is(err, ErrTooManyOTPAttempts):
		return auditErrOTPAttempts
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
