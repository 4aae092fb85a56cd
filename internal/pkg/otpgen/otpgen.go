package otpgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generate returns a numeric code of the given length drawn uniformly from
// [10^(length-1), 10^length - 1]. The leading digit is never zero, so the
// code survives being treated as a number anywhere downstream.
func Generate(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("otp length must be positive, got %d", length)
	}
	lo := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	hi := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(hi, lo))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return n.Add(n, lo).String(), nil
}
