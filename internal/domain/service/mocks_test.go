package service_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/rate"
)

// --- Mocks ---

type MockMFAMethodRepository struct {
	mock.Mock
}

func (m *MockMFAMethodRepository) Create(ctx context.Context, method *entity.MFAMethod) error {
	args := m.Called(ctx, method)
	return args.Error(0)
}
func (m *MockMFAMethodRepository) Update(ctx context.Context, method *entity.MFAMethod) error {
	args := m.Called(ctx, method)
	return args.Error(0)
}
func (m *MockMFAMethodRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMFAMethodRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAMethod, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAMethod), args.Error(1)
}
func (m *MockMFAMethodRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAMethod, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFAMethod), args.Error(1)
}
func (m *MockMFAMethodRepository) FindByUserIDAndType(ctx context.Context, userID uuid.UUID, mfaType entity.MFAType) (*entity.MFAMethod, error) {
	args := m.Called(ctx, userID, mfaType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAMethod), args.Error(1)
}
func (m *MockMFAMethodRepository) FindEnabledByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAMethod, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFAMethod), args.Error(1)
}
func (m *MockMFAMethodRepository) FindDefaultByUserID(ctx context.Context, userID uuid.UUID) (*entity.MFAMethod, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAMethod), args.Error(1)
}
func (m *MockMFAMethodRepository) CountEnabledByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *MockMFAMethodRepository) ClearDefaultForUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
func (m *MockMFAMethodRepository) DeleteUnverifiedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockMFARecoveryCodeRepository struct {
	mock.Mock
}

func (m *MockMFARecoveryCodeRepository) CreateMultiple(ctx context.Context, codes []*entity.MFARecoveryCode) error {
	args := m.Called(ctx, codes)
	return args.Error(0)
}
func (m *MockMFARecoveryCodeRepository) MarkAsUsed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMFARecoveryCodeRepository) FindByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.MFARecoveryCode, error) {
	args := m.Called(ctx, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFARecoveryCode), args.Error(1)
}
func (m *MockMFARecoveryCodeRepository) FindUnusedByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.MFARecoveryCode, error) {
	args := m.Called(ctx, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFARecoveryCode), args.Error(1)
}
func (m *MockMFARecoveryCodeRepository) CountUnusedByMethodID(ctx context.Context, methodID uuid.UUID) (int, error) {
	args := m.Called(ctx, methodID)
	return args.Int(0), args.Error(1)
}
func (m *MockMFARecoveryCodeRepository) DeleteUnusedByMethodID(ctx context.Context, methodID uuid.UUID) error {
	args := m.Called(ctx, methodID)
	return args.Error(0)
}
func (m *MockMFARecoveryCodeRepository) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	args := m.Called(ctx, methodID)
	return args.Error(0)
}

type MockMFAChallengeRepository struct {
	mock.Mock
}

func (m *MockMFAChallengeRepository) Create(ctx context.Context, challenge *entity.MFAChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}
func (m *MockMFAChallengeRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMFAChallengeRepository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}
func (m *MockMFAChallengeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAChallenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAChallenge), args.Error(1)
}
func (m *MockMFAChallengeRepository) FindByToken(ctx context.Context, token string) (*entity.MFAChallenge, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAChallenge), args.Error(1)
}
func (m *MockMFAChallengeRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, at time.Time) (*entity.MFAChallenge, error) {
	args := m.Called(ctx, id, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAChallenge), args.Error(1)
}
func (m *MockMFAChallengeRepository) InvalidateActiveByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockMFAChallengeRepository) DeleteExpiredOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockWebAuthnCredentialRepository struct {
	mock.Mock
}

func (m *MockWebAuthnCredentialRepository) Create(ctx context.Context, credential *entity.WebAuthnCredential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}
func (m *MockWebAuthnCredentialRepository) Update(ctx context.Context, credential *entity.WebAuthnCredential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}
func (m *MockWebAuthnCredentialRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.WebAuthnCredential, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WebAuthnCredential), args.Error(1)
}
func (m *MockWebAuthnCredentialRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*entity.WebAuthnCredential, error) {
	args := m.Called(ctx, credentialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WebAuthnCredential), args.Error(1)
}
func (m *MockWebAuthnCredentialRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.WebAuthnCredential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.WebAuthnCredential), args.Error(1)
}
func (m *MockWebAuthnCredentialRepository) FindActiveByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.WebAuthnCredential, error) {
	args := m.Called(ctx, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.WebAuthnCredential), args.Error(1)
}
func (m *MockWebAuthnCredentialRepository) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	args := m.Called(ctx, methodID)
	return args.Error(0)
}

type MockPushDeviceRepository struct {
	mock.Mock
}

func (m *MockPushDeviceRepository) Create(ctx context.Context, device *entity.MFAPushDevice) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}
func (m *MockPushDeviceRepository) Update(ctx context.Context, device *entity.MFAPushDevice) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}
func (m *MockPushDeviceRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAPushDevice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAPushDevice), args.Error(1)
}
func (m *MockPushDeviceRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAPushDevice, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFAPushDevice), args.Error(1)
}
func (m *MockPushDeviceRepository) FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAPushDevice, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFAPushDevice), args.Error(1)
}
func (m *MockPushDeviceRepository) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	args := m.Called(ctx, methodID)
	return args.Error(0)
}

type MockPushChallengeRepository struct {
	mock.Mock
}

func (m *MockPushChallengeRepository) Create(ctx context.Context, challenge *entity.MFAPushChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}
func (m *MockPushChallengeRepository) TransitionStatus(ctx context.Context, challenge *entity.MFAPushChallenge, expected entity.PushChallengeStatus) error {
	args := m.Called(ctx, challenge, expected)
	return args.Error(0)
}
func (m *MockPushChallengeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAPushChallenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MFAPushChallenge), args.Error(1)
}
func (m *MockPushChallengeRepository) FindPendingByDeviceID(ctx context.Context, deviceID uuid.UUID) ([]*entity.MFAPushChallenge, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.MFAPushChallenge), args.Error(1)
}
func (m *MockPushChallengeRepository) MarkExpiredOlderThan(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockPushChallengeRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockTOTPService struct {
	mock.Mock
}

func (m *MockTOTPService) GenerateSecret() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
func (m *MockTOTPService) FormatSecret(secret string) string {
	args := m.Called(secret)
	return args.String(0)
}
func (m *MockTOTPService) BuildEnrollmentURI(secret, accountName string) string {
	args := m.Called(secret, accountName)
	return args.String(0)
}
func (m *MockTOTPService) ValidateCode(secret, code string, at time.Time) bool {
	args := m.Called(secret, code, at)
	return args.Bool(0)
}
func (m *MockTOTPService) Algorithm() string { return "SHA1" }
func (m *MockTOTPService) Digits() int       { return 6 }
func (m *MockTOTPService) Period() int       { return 30 }

type MockCodeHasher struct {
	mock.Mock
}

func (m *MockCodeHasher) Hash(code string) (string, error) {
	args := m.Called(code)
	return args.String(0), args.Error(1)
}
func (m *MockCodeHasher) Verify(code, encodedHash string) (bool, error) {
	args := m.Called(code, encodedHash)
	return args.Bool(0), args.Error(1)
}

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendSetupVerificationCode(ctx context.Context, to string, code string, expiryMinutes int, appName string) error {
	args := m.Called(ctx, to, code, expiryMinutes, appName)
	return args.Error(0)
}
func (m *MockEmailSender) SendSecurityNotification(ctx context.Context, to string, eventType string, details string, occurredAt time.Time, ipAddress string, appName string) error {
	args := m.Called(ctx, to, eventType, details, occurredAt, ipAddress, appName)
	return args.Error(0)
}

type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) SendPushNotification(ctx context.Context, token string, title string, body string, data map[string]string) error {
	args := m.Called(ctx, token, title, body, data)
	return args.Error(0)
}
func (m *MockPushSender) ValidateToken(ctx context.Context, token string, platform entity.PushPlatform) error {
	args := m.Called(ctx, token, platform)
	return args.Error(0)
}

// stubLimiter allows or denies everything, no redis involved.
type stubLimiter struct {
	allow bool
}

func (l *stubLimiter) Allow(ctx context.Context, key string, rule rate.Rule) (bool, error) {
	return l.allow, nil
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	args := m.Called(ctx, eventType, payload)
	return args.Error(0)
}
