package authgate

import (
	"errors"
	"time"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	LoginOTP OTPConfig
	ResetOTP OTPConfig
	Lockout  LockoutConfig
	Account  AccountConfig
	Email    EmailConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authgate APIs.
//
// Access and refresh tokens are signed with distinct secrets so compromise of
// one class does not compromise the other.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authgate APIs.
//
// Costs are bcrypt work factors. OTPCost matches PasswordCost because OTPs
// are short and brute-force resistance matters most there; RefreshCost is
// lower because every refresh call verifies against up to N ledger digests
// and token length already provides entropy.
type PasswordConfig struct {
	PasswordCost   int
	OTPCost        int
	RefreshCost    int
	MinLength      int
	ResetMinLength int
}

// OTPConfig defines a public type used by authgate APIs.
//
// OTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

// LockoutConfig defines a public type used by authgate APIs.
//
// A Duration of zero disables the time-based auto-unlock; the account then
// stays locked until a successful password reset.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// AccountConfig defines a public type used by authgate APIs.
//
// AccountConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountConfig struct {
	DefaultRole      Role
	RegistrableRoles []Role
}

// EmailConfig defines a public type used by authgate APIs.
//
// EmailConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailConfig struct {
	From string
}

// AuditConfig defines a public type used by authgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 15 minute access tokens,
// 7 day refresh tokens, 6-digit OTPs (5 minute login window, 10 minute reset
// window, 5 attempts each), and a 1 hour lockout after 5 failed passwords.
// Signing secrets have no default and must be injected by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authgate",
		},
		Password: PasswordConfig{
			PasswordCost:   12,
			OTPCost:        12,
			RefreshCost:    8,
			MinLength:      6,
			ResetMinLength: 8,
		},
		LoginOTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
		},
		ResetOTP: OTPConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    time.Hour,
		},
		Account: AccountConfig{
			DefaultRole:      RoleCustomer,
			RegistrableRoles: []Role{RoleVendor, RoleCustomer},
		},
		Email: EmailConfig{
			From: "no-reply@example.com",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.Account.RegistrableRoles = append([]Role(nil), cfg.Account.RegistrableRoles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT access secret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT refresh secret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT refresh TTL must exceed access TTL")
	}
	if c.Password.PasswordCost < 4 || c.Password.OTPCost < 4 || c.Password.RefreshCost < 4 {
		return errors.New("bcrypt cost must be >= 4")
	}
	if c.Password.PasswordCost > 31 || c.Password.OTPCost > 31 || c.Password.RefreshCost > 31 {
		return errors.New("bcrypt cost must be <= 31")
	}
	if c.Password.MinLength < 6 {
		return errors.New("minimum password length must be >= 6")
	}
	if c.Password.ResetMinLength < c.Password.MinLength {
		return errors.New("reset minimum password length must be >= minimum password length")
	}
	for _, otp := range []OTPConfig{c.LoginOTP, c.ResetOTP} {
		if otp.Digits < 6 || otp.Digits > 10 {
			return errors.New("OTP digits must be between 6 and 10")
		}
		if otp.TTL <= 0 {
			return errors.New("OTP TTL must be positive")
		}
		if otp.MaxAttempts <= 0 {
			return errors.New("OTP max attempts must be positive")
		}
	}
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("lockout max attempts must be positive")
	}
	if c.Lockout.Duration < 0 {
		return errors.New("lockout duration must not be negative")
	}
	if !c.Account.DefaultRole.Valid() {
		return errors.New("account default role is not a known role")
	}
	for _, role := range c.Account.RegistrableRoles {
		if !role.Valid() {
			return errors.New("registrable role is not a known role")
		}
		if role == RoleSuperAdmin {
			return errors.New("SUPER_ADMIN must not be registrable")
		}
	}
	return nil
}
