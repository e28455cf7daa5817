// utils/otp.go
package utils

import (
	"crypto/rand"
	"math/big"
)

// GenerateOTP draws a 6-digit numeric code uniformly over [100000, 999999].
// The range guarantees six digits without padding.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String(), nil
}
