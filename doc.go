// Package authgate provides an OTP-gated authentication engine with JWT access
// tokens, rotating hashed refresh tokens, reuse detection, and OTP-based
// password reset.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([UserStore], [RefreshTokenStore], [Sender]),
// and value types (Session, PublicUser, AuditEvent). Persistent storage,
// outbound email, and HTTP transport are collaborators supplied by the
// caller; reference implementations live under store/ and httpapi/.
//
// # What this package must NOT do
//
//   - Persist a raw refresh token or OTP anywhere; only bcrypt digests are
//     stored.
//   - Hand a refresh token to the caller before its ledger record is
//     persisted.
//   - Use the unverified token decode path for any authorization decision;
//     it exists solely for reuse-signal extraction and best-effort logout.
//
// # Security contract
//
// Login never returns tokens directly — tokens are minted only after a
// one-time passcode delivered out of band is verified. Every refresh rotates
// the refresh token; presenting an already-rotated token revokes every live
// session for that user.
package authgate
