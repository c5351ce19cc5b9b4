package authgate

import (
	"context"
	"time"
)

// Role represents the access level carried by a user account and embedded in
// access tokens.
type Role string

const (
	// RoleSuperAdmin is an exported constant or variable used by the authentication engine.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleVendor is an exported constant or variable used by the authentication engine.
	RoleVendor Role = "VENDOR"
	// RoleCustomer is an exported constant or variable used by the authentication engine.
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleVendor, RoleCustomer:
		return true
	}
	return false
}

// OTPPurpose selects which OTP sub-record on a user an operation targets.
type OTPPurpose uint8

const (
	// PurposeLogin is an exported constant or variable used by the authentication engine.
	PurposeLogin OTPPurpose = iota
	// PurposeReset is an exported constant or variable used by the authentication engine.
	PurposeReset
)

func (p OTPPurpose) String() string {
	if p == PurposeReset {
		return "reset"
	}
	return "login"
}

// OTPState is one purpose-scoped OTP sub-record on a [User]. A zero ExpiresAt
// means no OTP is outstanding for that purpose. Verified is only ever set on
// the reset sub-record: reset verification is two-phase, the verified OTP
// stays on file as proof-of-possession until the password reset completes.
type OTPState struct {
	Hash      string
	ExpiresAt time.Time
	Attempts  int
	Verified  bool
}

// Active reports whether an OTP hash is on file, regardless of expiry.
func (s OTPState) Active() bool {
	return s.Hash != "" && !s.ExpiresAt.IsZero()
}

// Clear resets the sub-record to its zero state.
func (s *OTPState) Clear() {
	*s = OTPState{}
}

// User is the account record exchanged with the [UserStore]. The engine
// mutates lockout and OTP fields and persists them through [UserStore.Save];
// everything else is owned by the store.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role

	LoginAttempts int
	LockUntil     time.Time

	LoginOTP OTPState
	ResetOTP OTPState
}

// Locked reports whether the account is inside an active lockout window.
func (u *User) Locked(now time.Time) bool {
	return !u.LockUntil.IsZero() && u.LockUntil.After(now)
}

// Public returns the identity fields safe to hand to callers.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Role: u.Role}
}

// PublicUser is the caller-visible projection of a [User].
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Session is returned by [Engine.VerifyOTP] and [Engine.Refresh]. It carries
// the freshly minted token pair and the owning user's public identity.
type Session struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         PublicUser `json:"user"`
}

// AuthResult is returned by [Engine.Validate] for transport middleware.
type AuthResult struct {
	UserID string
	Role   Role
}

// UserStore is the persistent account collaborator the caller must supply.
// FindByEmail and FindByID return [ErrUserNotFound] when no account matches.
// Save persists every engine-mutated field (password hash, lockout counters,
// both OTP sub-records) atomically for one user.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	Save(ctx context.Context, user *User) error
}

// RefreshTokenRecord is one row of the refresh-token ledger. TokenHash is the
// bcrypt digest of the signed refresh token; the raw token is never stored.
// Revoked is monotonic: once true it never flips back.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
}

// Live reports whether the record can still redeem a rotation.
func (r RefreshTokenRecord) Live(now time.Time) bool {
	return !r.Revoked && r.ExpiresAt.After(now)
}

// RefreshTokenStore is the ledger collaborator. FindLive returns only
// non-revoked, unexpired records for a user. Revoke performs the single
// Active to Revoked transition for one record and reports whether this call
// made the transition; a false return means another rotation already claimed
// the record. Implementations must make Revoke atomic with respect to
// concurrent calls for the same record id.
type RefreshTokenStore interface {
	Create(ctx context.Context, record RefreshTokenRecord) error
	FindLive(ctx context.Context, userID string) ([]RefreshTokenRecord, error)
	Revoke(ctx context.Context, recordID string) (bool, error)
	RevokeAll(ctx context.Context, userID string) error
	DeleteAll(ctx context.Context, userID string) error
}
