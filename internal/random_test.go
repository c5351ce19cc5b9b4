package internal

import "testing"

func TestNewOTPShape(t *testing.T) {
	for digits := 6; digits <= 10; digits++ {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("NewOTP(%d) returned %q (%d chars)", digits, code, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("NewOTP(%d) returned non-digit %q", digits, code)
			}
		}
		if code[0] == '0' {
			t.Fatalf("NewOTP(%d) returned leading zero %q", digits, code)
		}
	}
}

func TestNewOTPRejectsBadDigits(t *testing.T) {
	for _, digits := range []int{0, 5, 11, -1} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("NewOTP(%d) accepted", digits)
		}
	}
}

func TestNewOTPVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewOTP(6)
		if err != nil {
			t.Fatalf("NewOTP failed: %v", err)
		}
		seen[code] = true
	}
	// 50 draws from 900000 codes colliding down to 1 value would mean a
	// broken source
	if len(seen) < 2 {
		t.Fatal("generator produced a single value across 50 draws")
	}
}
