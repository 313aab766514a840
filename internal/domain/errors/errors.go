package errors

import (
	"errors"
	"fmt"
)

var (
	// General errors.
	ErrInternal       = errors.New("internal server error")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrForbidden      = errors.New("access denied")

	// MFA method errors.
	ErrMFAMethodNotFound = errors.New("mfa method not found")
	ErrMFAAlreadyEnabled = errors.New("mfa method already enabled")
	ErrMFANotEnabled     = errors.New("mfa is not enabled")
	ErrMFANotVerified    = errors.New("mfa method is not verified")
	ErrLastEnabledMethod = errors.New("removing this method would disable mfa for the user")

	// Verification errors. These consume an attempt from the challenge budget.
	ErrInvalidMFACode      = errors.New("invalid mfa code")
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
	ErrSetupCodeExpired    = errors.New("setup verification code expired")

	// Challenge state errors.
	ErrChallengeNotFound  = errors.New("mfa challenge not found")
	ErrChallengeExpired   = errors.New("mfa challenge expired")
	ErrChallengeCompleted = errors.New("mfa challenge already completed")
	ErrChallengeInvalid   = errors.New("mfa challenge is invalid")
	ErrAttemptsExhausted  = errors.New("mfa challenge attempt limit reached")

	// Push challenge errors.
	ErrPushDeviceNotFound    = errors.New("push device not found")
	ErrPushDeviceInactive    = errors.New("push device is inactive")
	ErrPushChallengeNotFound = errors.New("push challenge not found")
	ErrPushChallengeExpired  = errors.New("push challenge expired")
	ErrPushAlreadyResponded  = errors.New("push challenge already responded to")
	ErrPushNotApproved       = errors.New("push challenge is not approved")
	ErrPushAlreadyConsumed   = errors.New("push approval already consumed")
	ErrPushSignatureMissing  = errors.New("push response signature is required")

	// Security anomalies. These must never be reported as a plain verification
	// failure; callers are expected to escalate.
	ErrSignCountRegression = errors.New("authenticator signature counter regressed")

	// Rate limiting.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// AppError carries an error with a user-facing message and an API code.
type AppError struct {
	Err     error
	Message string
	Code    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{Err: err, Message: message, Code: code}
}

// IsNotFound reports whether err is any of the "not found" errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMFAMethodNotFound) ||
		errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrPushDeviceNotFound) ||
		errors.Is(err, ErrPushChallengeNotFound)
}

// IsInvalidState reports whether err is a rejected state transition, as
// opposed to a wrong code.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrMFAAlreadyEnabled) ||
		errors.Is(err, ErrMFANotVerified) ||
		errors.Is(err, ErrChallengeCompleted) ||
		errors.Is(err, ErrChallengeInvalid) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrPushAlreadyResponded) ||
		errors.Is(err, ErrPushChallengeExpired) ||
		errors.Is(err, ErrPushNotApproved) ||
		errors.Is(err, ErrPushAlreadyConsumed)
}

// IsVerificationFailure reports whether err consumed an attempt from the
// challenge budget.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrInvalidMFACode) ||
		errors.Is(err, ErrInvalidRecoveryCode)
}

// IsSecurityAnomaly reports whether err must be escalated rather than shown
// to the end user as a plain failure.
func IsSecurityAnomaly(err error) bool {
	return errors.Is(err, ErrSignCountRegression)
}

// IsRetryable reports whether the caller may retry the operation after
// waiting out the window.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
