package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/random"
)

// Defaults shared with every authenticator app.
const (
	DefaultDigits = 6
	DefaultPeriod = 30

	MinSecretBytes = 16
	MaxSecretBytes = 32

	minDigits = 6
	maxDigits = 8
	minPeriod = 15
	maxPeriod = 120
)

// GenerateSecret returns a new random secret of byteLength bytes, encoded as
// unpadded RFC 4648 Base32. byteLength must be between 16 and 32.
func GenerateSecret(byteLength int) (string, error) {
	if byteLength < MinSecretBytes || byteLength > MaxSecretBytes {
		return "", fmt.Errorf("secret length must be between %d and %d bytes, got %d", MinSecretBytes, MaxSecretBytes, byteLength)
	}
	b, err := random.GenerateRandomBytes(byteLength)
	if err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

// FormatSecret groups a Base32 secret into blocks of four for manual entry.
func FormatSecret(secret string) string {
	clean := normalizeSecret(secret)
	var sb strings.Builder
	for i, r := range clean {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// BuildEnrollmentURI constructs the otpauth:// URI encoded into the
// enrollment QR code. Digits and period are appended only when they differ
// from the defaults every authenticator assumes.
func BuildEnrollmentURI(accountName, secret, issuer string, digits, period int) string {
	params := url.Values{}
	params.Set("secret", normalizeSecret(secret))
	params.Set("issuer", issuer)
	if digits != DefaultDigits {
		params.Set("digits", fmt.Sprintf("%d", digits))
	}
	if period != DefaultPeriod {
		params.Set("period", fmt.Sprintf("%d", period))
	}
	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(issuer),
		url.PathEscape(accountName),
		params.Encode(),
	)
}

// CurrentCode computes the code for the current time window.
func CurrentCode(secret string, digits, period int) (string, error) {
	return CodeAt(secret, time.Now(), digits, period)
}

// CodeAt computes the code for the time window containing t.
func CodeAt(secret string, t time.Time, digits, period int) (string, error) {
	if digits < minDigits || digits > maxDigits {
		return "", fmt.Errorf("unsupported digit count %d", digits)
	}
	if period < minPeriod || period > maxPeriod {
		return "", fmt.Errorf("unsupported period %d", period)
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	counter := uint64(t.Unix()) / uint64(period)
	return hotp(key, counter, digits), nil
}

// ValidateCode checks a submitted code against the current time window plus
// window periods of clock drift on either side. Malformed secrets, codes of
// the wrong shape and out-of-range parameters all report false: verification
// call sites get a single valid/invalid decision point.
func ValidateCode(secret, code string, window, digits, period int) bool {
	return ValidateCodeAt(secret, code, time.Now(), window, digits, period)
}

// ValidateCodeAt is ValidateCode evaluated at an explicit time.
func ValidateCodeAt(secret, code string, t time.Time, window, digits, period int) bool {
	if window < 0 {
		return false
	}
	if digits < minDigits || digits > maxDigits {
		return false
	}
	if period < minPeriod || period > maxPeriod {
		return false
	}
	candidate := normalizeCode(code)
	if len(candidate) != digits || !isNumeric(candidate) {
		return false
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return false
	}

	current := int64(uint64(t.Unix()) / uint64(period))
	match := 0
	for counter := current - int64(window); counter <= current+int64(window); counter++ {
		if counter < 0 {
			continue
		}
		expected := hotp(key, uint64(counter), digits)
		match |= subtle.ConstantTimeCompare([]byte(expected), []byte(candidate))
	}
	return match == 1
}

// TimeRemaining returns the seconds until the current code rolls over.
func TimeRemaining(period int) int {
	if period <= 0 {
		return 0
	}
	return period - int(time.Now().Unix()%int64(period))
}

// hotp implements the RFC 4226 derivation: HMAC-SHA1 over the big-endian
// counter, dynamic truncation by the last nibble, top bit masked, reduced
// modulo 10^digits and zero-padded.
func hotp(key []byte, counter uint64, digits int) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, value%mod)
}

func decodeSecret(secret string) ([]byte, error) {
	clean := normalizeSecret(secret)
	if clean == "" {
		return nil, fmt.Errorf("secret cannot be empty")
	}
	// Re-pad to a multiple of eight so the standard decoder accepts
	// unpadded secrets, which is how they are stored and displayed.
	if rem := len(clean) % 8; rem != 0 {
		clean += strings.Repeat("=", 8-rem)
	}
	key, err := base32.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 secret: %w", err)
	}
	return key, nil
}

func normalizeSecret(secret string) string {
	clean := strings.ToUpper(strings.TrimSpace(secret))
	clean = strings.ReplaceAll(clean, " ", "")
	return strings.TrimRight(clean, "=")
}

func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, " ", "")
	return strings.ReplaceAll(code, "-", "")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
