package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// NewOTP returns a numeric one-time passcode with exactly the requested
// number of digits. Codes are drawn uniformly from [10^(digits-1), 10^digits)
// so the first digit is never zero and every code has full length without
// padding.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	low := int64(1)
	for i := 1; i < digits; i++ {
		low *= 10
	}
	span := big.NewInt(low * 9)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(low+n.Int64(), 10), nil
}
