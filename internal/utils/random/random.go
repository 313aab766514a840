package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// GenerateRandomBytes returns length cryptographically random bytes.
func GenerateRandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// GenerateURLSafeToken returns an unpadded URL-safe base64 token derived
// from byteLength random bytes.
func GenerateURLSafeToken(byteLength int) (string, error) {
	b, err := GenerateRandomBytes(byteLength)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}

// GenerateRandomDigits returns a random numeric string of the given length.
func GenerateRandomDigits(length int) (string, error) {
	digits := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte(n.Int64() + '0')
	}
	return string(digits), nil
}

// GenerateRandomStringFromCharset returns a random string drawn from charset.
func GenerateRandomStringFromCharset(length int, charset string) (string, error) {
	charsetLength := big.NewInt(int64(len(charset)))
	result := strings.Builder{}
	result.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, charsetLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		result.WriteByte(charset[n.Int64()])
	}
	return result.String(), nil
}

// GenerateRecoveryCode returns a recovery code in the form XXXXX-XXXXX using
// an unambiguous uppercase alphanumeric charset.
func GenerateRecoveryCode() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	left, err := GenerateRandomStringFromCharset(5, charset)
	if err != nil {
		return "", err
	}
	right, err := GenerateRandomStringFromCharset(5, charset)
	if err != nil {
		return "", err
	}
	return left + "-" + right, nil
}
