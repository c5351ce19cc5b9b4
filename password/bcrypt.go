// Package password hashes and verifies the three credential classes the
// authentication engine stores: account passwords, one-time passcodes, and
// refresh tokens. All three use bcrypt; they differ only in cost.
package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is an exported constant or variable used by the authentication engine.
var ErrMismatch = errors.New("credential mismatch")

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	PasswordCost int
	OTPCost      int
	RefreshCost  int
}

// Hasher defines a public type used by authgate APIs.
//
// Hasher instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Hasher struct {
	config Config
}

// NewHasher describes the newhasher operation and its observable behavior.
//
// NewHasher may return an error when input validation, dependency calls, or security checks fail.
// NewHasher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHasher(cfg Config) (*Hasher, error) {
	for _, cost := range []int{cfg.PasswordCost, cfg.OTPCost, cfg.RefreshCost} {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, errors.New("bcrypt cost out of range")
		}
	}
	return &Hasher{config: cfg}, nil
}

// HashPassword describes the hashpassword operation and its observable behavior.
//
// HashPassword may return an error when input validation, dependency calls, or security checks fail.
// HashPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) HashPassword(password string) (string, error) {
	return h.hash(password, h.config.PasswordCost)
}

// HashOTP describes the hashotp operation and its observable behavior.
//
// HashOTP may return an error when input validation, dependency calls, or security checks fail.
// HashOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) HashOTP(code string) (string, error) {
	return h.hash(code, h.config.OTPCost)
}

// HashRefreshToken hashes at a reduced cost. Refresh verification compares
// the presented token against every live ledger record for the user, so the
// per-comparison cost is bounded; the token itself is a signed JWT and
// carries far more entropy than a password. The token is pre-digested with
// SHA-256 because a serialized JWT exceeds bcrypt's 72-byte input limit.
func (h *Hasher) HashRefreshToken(token string) (string, error) {
	return h.hash(preDigest(token), h.config.RefreshCost)
}

// VerifyRefreshToken reports whether token matches a digest produced by
// [Hasher.HashRefreshToken].
func (h *Hasher) VerifyRefreshToken(hash, token string) error {
	return h.Verify(hash, preDigest(token))
}

func preDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

// Verify reports whether plaintext matches the stored digest. It returns
// [ErrMismatch] on a clean mismatch and a different error when the digest is
// malformed.
func (h *Hasher) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

func (h *Hasher) hash(plaintext string, cost int) (string, error) {
	// bcrypt truncates input past 72 bytes; refuse rather than silently
	// weaken the credential.
	if len(plaintext) > 72 {
		return "", errors.New("credential exceeds 72 bytes")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}
