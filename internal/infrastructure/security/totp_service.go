package security

import (
	"time"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/service"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/totp"
)

// TOTPParams holds the code-derivation policy.
type TOTPParams struct {
	Issuer       string
	Digits       int
	Period       int
	Window       int
	SecretLength int
}

// totpService implements service.TOTPService on top of the totp util.
type totpService struct {
	params TOTPParams
}

// NewTOTPService creates the TOTP service with the given policy. Zero values
// fall back to the standard 6-digit, 30-second, ±1-period configuration.
func NewTOTPService(params TOTPParams) service.TOTPService {
	if params.Digits == 0 {
		params.Digits = totp.DefaultDigits
	}
	if params.Period == 0 {
		params.Period = totp.DefaultPeriod
	}
	if params.Window == 0 {
		params.Window = 1
	}
	if params.SecretLength == 0 {
		params.SecretLength = totp.MinSecretBytes + 4
	}
	return &totpService{params: params}
}

func (s *totpService) GenerateSecret() (string, error) {
	return totp.GenerateSecret(s.params.SecretLength)
}

func (s *totpService) FormatSecret(secret string) string {
	return totp.FormatSecret(secret)
}

func (s *totpService) BuildEnrollmentURI(secret, accountName string) string {
	return totp.BuildEnrollmentURI(accountName, secret, s.params.Issuer, s.params.Digits, s.params.Period)
}

func (s *totpService) ValidateCode(secret, code string, at time.Time) bool {
	return totp.ValidateCodeAt(secret, code, at, s.params.Window, s.params.Digits, s.params.Period)
}

func (s *totpService) Algorithm() string { return "SHA1" }
func (s *totpService) Digits() int       { return s.params.Digits }
func (s *totpService) Period() int       { return s.params.Period }

var _ service.TOTPService = (*totpService)(nil)
