package password

import (
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(Config{PasswordCost: 4, OTPCost: 4, RefreshCost: 4})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func TestPasswordRoundTrip(t *testing.T) {
	h := testHasher(t)

	hash, err := h.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash equals plaintext")
	}

	if err := h.Verify(hash, "hunter22"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := h.Verify(hash, "hunter23"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := testHasher(t)

	err := h.Verify("not-a-bcrypt-digest", "whatever")
	if err == nil {
		t.Fatal("malformed digest accepted")
	}
	if errors.Is(err, ErrMismatch) {
		t.Fatal("malformed digest must not read as a clean mismatch")
	}
}

func TestHashRejectsOverlongInput(t *testing.T) {
	h := testHasher(t)

	if _, err := h.HashPassword(strings.Repeat("a", 73)); err == nil {
		t.Fatal("input past bcrypt's 72-byte limit accepted")
	}
}

func TestRefreshTokenDigestHandlesLongTokens(t *testing.T) {
	h := testHasher(t)

	// serialized JWTs are far past bcrypt's input limit
	token := strings.Repeat("eyJhbGciOiJIUzI1NiJ9.", 20)

	hash, err := h.HashRefreshToken(token)
	if err != nil {
		t.Fatalf("HashRefreshToken failed: %v", err)
	}
	if err := h.VerifyRefreshToken(hash, token); err != nil {
		t.Fatalf("VerifyRefreshToken failed: %v", err)
	}
	if err := h.VerifyRefreshToken(hash, token+"x"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestOTPHashUsesOwnCost(t *testing.T) {
	h := testHasher(t)

	hash, err := h.HashOTP("123456")
	if err != nil {
		t.Fatalf("HashOTP failed: %v", err)
	}
	if err := h.Verify(hash, "123456"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestNewHasherRejectsBadCost(t *testing.T) {
	if _, err := NewHasher(Config{PasswordCost: 3, OTPCost: 4, RefreshCost: 4}); err == nil {
		t.Fatal("cost below bcrypt minimum accepted")
	}
	if _, err := NewHasher(Config{PasswordCost: 4, OTPCost: 4, RefreshCost: 32}); err == nil {
		t.Fatal("cost above bcrypt maximum accepted")
	}
}
