package authgate

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alice@Example.COM":  "alice@example.com",
		"  bob@example.com ": "bob@example.com",
		"plain@example.com":  "plain@example.com",
	}
	for in, want := range cases {
		if got := normalizeEmail(in); got != want {
			t.Fatalf("normalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "user.name+tag@example.org"}
	for _, email := range valid {
		if !validEmail(email) {
			t.Fatalf("validEmail(%q) = false", email)
		}
	}

	invalid := []string{"", "no-at-sign", "two@@example.com", "spaces in@example.com", "nodot@example", "x@" + strings.Repeat("a", 250) + ".com"}
	for _, email := range invalid {
		if validEmail(email) {
			t.Fatalf("validEmail(%q) = true", email)
		}
	}
}

func TestValidOTPFormat(t *testing.T) {
	if !validOTPFormat("123456", 6) {
		t.Fatal("well-formed code rejected")
	}
	for _, code := range []string{"", "12345", "1234567", "12345a", "12 456"} {
		if validOTPFormat(code, 6) {
			t.Fatalf("validOTPFormat(%q, 6) = true", code)
		}
	}
}
