package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/service"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/rate"
)

type challengeMocks struct {
	challengeRepo     *MockMFAChallengeRepository
	methodRepo        *MockMFAMethodRepository
	recoveryRepo      *MockMFARecoveryCodeRepository
	webauthnRepo      *MockWebAuthnCredentialRepository
	pushChallengeRepo *MockPushChallengeRepository
	totpSvc           *MockTOTPService
	hasher            *MockCodeHasher
	emailSender       *MockEmailSender
	publisher         *MockEventPublisher
}

func newChallengeFixture(allow bool) (*service.MFAChallengeService, *challengeMocks) {
	m := &challengeMocks{
		challengeRepo:     new(MockMFAChallengeRepository),
		methodRepo:        new(MockMFAMethodRepository),
		recoveryRepo:      new(MockMFARecoveryCodeRepository),
		webauthnRepo:      new(MockWebAuthnCredentialRepository),
		pushChallengeRepo: new(MockPushChallengeRepository),
		totpSvc:           new(MockTOTPService),
		hasher:            new(MockCodeHasher),
		emailSender:       new(MockEmailSender),
		publisher:         new(MockEventPublisher),
	}
	cfg := service.ChallengeConfig{
		IssuerName:      "Aurora ID",
		Policy:          entity.ChallengePolicy{MaxAttempts: 3, TTL: 5 * time.Minute},
		EmailCodeLength: 6,
		CreateRule:      rate.Rule{Enabled: true, Limit: 5, Window: 15 * time.Minute},
		SendRule:        rate.Rule{Enabled: true, Limit: 5, Window: 15 * time.Minute},
	}
	svc := service.NewMFAChallengeService(
		m.challengeRepo, m.methodRepo, m.recoveryRepo, m.webauthnRepo, m.pushChallengeRepo,
		m.totpSvc, m.hasher, m.emailSender,
		&stubLimiter{allow: allow}, m.publisher, zap.NewNop(), cfg,
	)
	return svc, m
}

func newChallengeFor(t *testing.T, method *entity.MFAMethod) *entity.MFAChallenge {
	t.Helper()
	challenge, err := entity.NewMFAChallenge(method.UserID, method.Type, &method.ID,
		entity.ChallengePolicy{MaxAttempts: 3, TTL: 5 * time.Minute}, time.Now().UTC())
	require.NoError(t, err)
	return challenge
}

// expectCompletion wires the mocks for the successful verification tail.
func expectCompletion(m *challengeMocks) {
	m.challengeRepo.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.methodRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.Anything, service.EventChallengeCompleted, mock.Anything).Return(nil)
}

func TestCreateChallenge(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("opens a challenge against the requested type", func(t *testing.T) {
		svc, m := newChallengeFixture(true)
		method := newEnabledMethod(t, userID, entity.MFATypeTOTP, "Authenticator app")
		mfaType := entity.MFATypeTOTP
		m.methodRepo.On("FindByUserIDAndType", mock.Anything, userID, entity.MFATypeTOTP).
			Return(method, nil)
		m.challengeRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventChallengeCreated, mock.Anything).Return(nil)

		resp, err := svc.CreateChallenge(ctx, userID, &mfaType)

		require.NoError(t, err)
		assert.NotEmpty(t, resp.ChallengeToken)
		assert.Equal(t, entity.MFATypeTOTP, resp.Type)
		assert.Equal(t, 3, resp.AttemptsRemaining)
		assert.WithinDuration(t, time.Now().UTC().Add(5*time.Minute), resp.ExpiresAt, 5*time.Second)
	})

	t.Run("falls back to the default method when no type is given", func(t *testing.T) {
		svc, m := newChallengeFixture(true)
		method := newEnabledMethod(t, userID, entity.MFATypeTOTP, "Authenticator app")
		require.NoError(t, method.SetAsDefault(time.Now().UTC()))
		m.methodRepo.On("FindDefaultByUserID", mock.Anything, userID).Return(method, nil)
		m.challengeRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventChallengeCreated, mock.Anything).Return(nil)

		resp, err := svc.CreateChallenge(ctx, userID, nil)

		require.NoError(t, err)
		assert.Equal(t, entity.MFATypeTOTP, resp.Type)
	})

	t.Run("without default or enabled methods mfa is not enabled", func(t *testing.T) {
		svc, m := newChallengeFixture(true)
		m.methodRepo.On("FindDefaultByUserID", mock.Anything, userID).
			Return(nil, domainErrors.ErrNotFound)
		m.methodRepo.On("FindEnabledByUserID", mock.Anything, userID).
			Return([]*entity.MFAMethod{}, nil)

		_, err := svc.CreateChallenge(ctx, userID, nil)

		assert.ErrorIs(t, err, domainErrors.ErrMFANotEnabled)
	})

	t.Run("an email challenge carries a hashed login code", func(t *testing.T) {
		svc, m := newChallengeFixture(true)
		method := newEnabledMethod(t, userID, entity.MFATypeEmail, "Email")
		method.Metadata.Email = &entity.EmailMetadata{EmailAddress: "player@example.com"}
		mfaType := entity.MFATypeEmail
		m.methodRepo.On("FindByUserIDAndType", mock.Anything, userID, entity.MFATypeEmail).
			Return(method, nil)
		m.hasher.On("Hash", mock.AnythingOfType("string")).Return("login-code-hash", nil)
		m.emailSender.On("SendSetupVerificationCode", mock.Anything, "player@example.com", mock.AnythingOfType("string"), mock.AnythingOfType("int"), "Aurora ID").
			Return(nil)
		m.challengeRepo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			stored := args.Get(1).(*entity.MFAChallenge)
			require.NotNil(t, stored.EmailCodeHash)
			assert.Equal(t, "login-code-hash", *stored.EmailCodeHash)
		}).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventChallengeCreated, mock.Anything).Return(nil)

		_, err := svc.CreateChallenge(ctx, userID, &mfaType)

		require.NoError(t, err)
		m.emailSender.AssertExpectations(t)
	})

	t.Run("rejects when the creation budget is exhausted", func(t *testing.T) {
		svc, m := newChallengeFixture(false)

		_, err := svc.CreateChallenge(ctx, userID, nil)

		assert.ErrorIs(t, err, domainErrors.ErrRateLimitExceeded)
		m.challengeRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("a disabled method cannot be challenged", func(t *testing.T) {
		svc, m := newChallengeFixture(true)
		method := entity.NewMFAMethod(userID, entity.MFATypeTOTP, "Authenticator app", time.Now().UTC())
		mfaType := entity.MFATypeTOTP
		m.methodRepo.On("FindByUserIDAndType", mock.Anything, userID, entity.MFATypeTOTP).
			Return(method, nil)

		_, err := svc.CreateChallenge(ctx, userID, &mfaType)

		assert.ErrorIs(t, err, domainErrors.ErrMFANotEnabled)
	})
}

func TestVerifyChallengeCode(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	secret := "JBSWY3DPEHPK3PXP"

	newTOTPFixtures := func(t *testing.T) (*entity.MFAMethod, *entity.MFAChallenge) {
		method := newEnabledMethod(t, userID, entity.MFATypeTOTP, "Authenticator app")
		method.Secret = &secret
		return method, newChallengeFor(t, method)
	}

	t.Run("completes the challenge on a valid code", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newTOTPFixtures(t)
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.totpSvc.On("ValidateCode", secret, "123456", mock.Anything).Return(true)
		expectCompletion(m)

		result, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "123456")

		require.NoError(t, err)
		assert.True(t, result.Verified)
		assert.True(t, challenge.IsCompleted)
		assert.NotNil(t, method.LastUsedAt)
	})

	t.Run("a wrong code burns one attempt", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newTOTPFixtures(t)
		burned := *challenge
		burned.AttemptCount = 1
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.totpSvc.On("ValidateCode", secret, "000000", mock.Anything).Return(false)
		m.challengeRepo.On("RecordFailedAttempt", mock.Anything, challenge.ID, mock.Anything).
			Return(&burned, nil)

		result, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "000000")

		assert.ErrorIs(t, err, domainErrors.ErrInvalidMFACode)
		assert.True(t, domainErrors.IsVerificationFailure(err))
		assert.False(t, result.Verified)
		assert.Equal(t, 2, result.AttemptsRemaining)
	})

	t.Run("exhausting the budget invalidates the challenge", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newTOTPFixtures(t)
		exhausted := *challenge
		exhausted.AttemptCount = 3
		exhausted.IsInvalid = true
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.totpSvc.On("ValidateCode", secret, "000000", mock.Anything).Return(false)
		m.challengeRepo.On("RecordFailedAttempt", mock.Anything, challenge.ID, mock.Anything).
			Return(&exhausted, nil)
		m.publisher.On("Publish", mock.Anything, service.EventChallengeExhausted, mock.Anything).Return(nil)

		result, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "000000")

		assert.ErrorIs(t, err, domainErrors.ErrAttemptsExhausted)
		assert.Equal(t, 0, result.AttemptsRemaining)
	})

	t.Run("a success that lost the race to an exhaustion is rejected", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newTOTPFixtures(t)
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.totpSvc.On("ValidateCode", secret, "123456", mock.Anything).Return(true)
		// A concurrent wrong submission exhausted the budget between our
		// read and the completion write; the guarded write reports it.
		m.challengeRepo.On("Complete", mock.Anything, challenge.ID, mock.Anything).
			Return(domainErrors.ErrChallengeInvalid)

		_, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "123456")

		assert.ErrorIs(t, err, domainErrors.ErrChallengeInvalid)
		m.methodRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		m.publisher.AssertNotCalled(t, "Publish", mock.Anything, service.EventChallengeCompleted, mock.Anything)
	})

	t.Run("an expired challenge is rejected before any check", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		_, challenge := newTOTPFixtures(t)
		challenge.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)

		_, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "123456")

		assert.ErrorIs(t, err, domainErrors.ErrChallengeExpired)
		m.challengeRepo.AssertNotCalled(t, "RecordFailedAttempt", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("a completed challenge cannot be replayed", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		_, challenge := newTOTPFixtures(t)
		require.NoError(t, challenge.Complete(time.Now().UTC()))
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)

		_, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "123456")

		assert.ErrorIs(t, err, domainErrors.ErrChallengeCompleted)
	})

	t.Run("an email challenge checks against the stored hash", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method := newEnabledMethod(t, userID, entity.MFATypeEmail, "Email")
		challenge := newChallengeFor(t, method)
		codeHash := "login-code-hash"
		challenge.EmailCodeHash = &codeHash
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.hasher.On("Verify", "654321", codeHash).Return(true, nil)
		expectCompletion(m)

		result, err := svc.VerifyChallengeCode(ctx, challenge.ChallengeToken, "654321")

		require.NoError(t, err)
		assert.True(t, result.Verified)
	})

	t.Run("an unknown token reports challenge not found", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		m.challengeRepo.On("FindByToken", mock.Anything, "missing").
			Return(nil, domainErrors.ErrNotFound)

		_, err := svc.VerifyChallengeCode(ctx, "missing", "123456")

		assert.ErrorIs(t, err, domainErrors.ErrChallengeNotFound)
	})
}

// newTOTPVerifyFixture is newChallengeFixture with the limiter always open,
// named for the verification paths that never consult it.
func newTOTPVerifyFixture(t *testing.T) (*service.MFAChallengeService, *challengeMocks) {
	t.Helper()
	return newChallengeFixture(true)
}

func TestVerifyChallengeRecoveryCode(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	newFixtures := func(t *testing.T) (*entity.MFAMethod, *entity.MFAChallenge) {
		method := newEnabledMethod(t, userID, entity.MFATypeTOTP, "Authenticator app")
		return method, newChallengeFor(t, method)
	}

	t.Run("consumes the matching code and completes", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newFixtures(t)
		now := time.Now().UTC()
		first := entity.NewMFARecoveryCode(method.ID, "hash-one", now)
		second := entity.NewMFARecoveryCode(method.ID, "hash-two", now)
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.recoveryRepo.On("FindUnusedByMethodID", mock.Anything, method.ID).
			Return([]*entity.MFARecoveryCode{first, second}, nil)
		m.hasher.On("Verify", "ABCDE-23456", "hash-one").Return(false, nil)
		m.hasher.On("Verify", "ABCDE-23456", "hash-two").Return(true, nil)
		m.recoveryRepo.On("MarkAsUsed", mock.Anything, second.ID).Return(nil)
		expectCompletion(m)

		result, err := svc.VerifyChallengeRecoveryCode(ctx, challenge.ChallengeToken, "ABCDE-23456")

		require.NoError(t, err)
		assert.True(t, result.Verified)
		m.recoveryRepo.AssertCalled(t, "MarkAsUsed", mock.Anything, second.ID)
	})

	t.Run("no match burns an attempt", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newFixtures(t)
		code := entity.NewMFARecoveryCode(method.ID, "hash-one", time.Now().UTC())
		burned := *challenge
		burned.AttemptCount = 1
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.recoveryRepo.On("FindUnusedByMethodID", mock.Anything, method.ID).
			Return([]*entity.MFARecoveryCode{code}, nil)
		m.hasher.On("Verify", "WRONG-CODES", "hash-one").Return(false, nil)
		m.challengeRepo.On("RecordFailedAttempt", mock.Anything, challenge.ID, mock.Anything).
			Return(&burned, nil)

		result, err := svc.VerifyChallengeRecoveryCode(ctx, challenge.ChallengeToken, "WRONG-CODES")

		assert.ErrorIs(t, err, domainErrors.ErrInvalidRecoveryCode)
		assert.Equal(t, 2, result.AttemptsRemaining)
	})

	t.Run("losing a concurrent consume race counts as a failure", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge := newFixtures(t)
		code := entity.NewMFARecoveryCode(method.ID, "hash-one", time.Now().UTC())
		burned := *challenge
		burned.AttemptCount = 1
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.recoveryRepo.On("FindUnusedByMethodID", mock.Anything, method.ID).
			Return([]*entity.MFARecoveryCode{code}, nil)
		m.hasher.On("Verify", "ABCDE-23456", "hash-one").Return(true, nil)
		m.recoveryRepo.On("MarkAsUsed", mock.Anything, code.ID).Return(domainErrors.ErrNotFound)
		m.challengeRepo.On("RecordFailedAttempt", mock.Anything, challenge.ID, mock.Anything).
			Return(&burned, nil)

		_, err := svc.VerifyChallengeRecoveryCode(ctx, challenge.ChallengeToken, "ABCDE-23456")

		assert.ErrorIs(t, err, domainErrors.ErrInvalidRecoveryCode)
	})
}

func TestVerifyChallengeWebAuthn(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	credentialID := []byte{0x01, 0x02, 0x03}

	newFixtures := func(t *testing.T, signCount uint32) (*entity.MFAMethod, *entity.MFAChallenge, *entity.WebAuthnCredential) {
		method := newEnabledMethod(t, userID, entity.MFATypeWebAuthn, "Security key")
		challenge := newChallengeFor(t, method)
		credential := entity.NewWebAuthnCredential(method.ID, userID, credentialID, []byte{0x04}, signCount, nil, time.Now().UTC())
		return method, challenge, credential
	}

	t.Run("an advancing counter completes the challenge", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, credential := newFixtures(t, 10)
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.webauthnRepo.On("FindByCredentialID", mock.Anything, credentialID).Return(credential, nil)
		m.webauthnRepo.On("Update", mock.Anything, credential).Return(nil)
		expectCompletion(m)

		result, err := svc.VerifyChallengeWebAuthn(ctx, challenge.ChallengeToken, credentialID, 11)

		require.NoError(t, err)
		assert.True(t, result.Verified)
		assert.Equal(t, uint32(11), credential.SignCount)
	})

	t.Run("a regressed counter is a security anomaly, not a failed attempt", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, credential := newFixtures(t, 10)
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.webauthnRepo.On("FindByCredentialID", mock.Anything, credentialID).Return(credential, nil)
		m.challengeRepo.On("Invalidate", mock.Anything, challenge.ID).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventSignCountRegression, mock.Anything).Return(nil)

		_, err := svc.VerifyChallengeWebAuthn(ctx, challenge.ChallengeToken, credentialID, 5)

		assert.ErrorIs(t, err, domainErrors.ErrSignCountRegression)
		assert.True(t, domainErrors.IsSecurityAnomaly(err))
		assert.True(t, challenge.IsInvalid)
		assert.Equal(t, uint32(10), credential.SignCount, "stored counter must not move")
		m.challengeRepo.AssertNotCalled(t, "RecordFailedAttempt", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("an unknown credential burns an attempt", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, _ := newFixtures(t, 10)
		burned := *challenge
		burned.AttemptCount = 1
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.webauthnRepo.On("FindByCredentialID", mock.Anything, credentialID).
			Return(nil, domainErrors.ErrNotFound)
		m.challengeRepo.On("RecordFailedAttempt", mock.Anything, challenge.ID, mock.Anything).
			Return(&burned, nil)

		_, err := svc.VerifyChallengeWebAuthn(ctx, challenge.ChallengeToken, credentialID, 11)

		assert.ErrorIs(t, err, domainErrors.ErrInvalidMFACode)
	})

	t.Run("rejects a credential of another user", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, _ := newFixtures(t, 10)
		foreign := entity.NewWebAuthnCredential(method.ID, uuid.New(), credentialID, []byte{0x04}, 10, nil, time.Now().UTC())
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.webauthnRepo.On("FindByCredentialID", mock.Anything, credentialID).Return(foreign, nil)

		_, err := svc.VerifyChallengeWebAuthn(ctx, challenge.ChallengeToken, credentialID, 11)

		assert.ErrorIs(t, err, domainErrors.ErrForbidden)
	})
}

func TestVerifyChallengePush(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	deviceID := uuid.New()
	now := time.Now().UTC()

	newFixtures := func(t *testing.T) (*entity.MFAMethod, *entity.MFAChallenge, *entity.MFAPushChallenge) {
		method := newEnabledMethod(t, userID, entity.MFATypePush, "Mobile device")
		challenge := newChallengeFor(t, method)
		pushChallenge, err := entity.NewMFAPushChallenge(deviceID, userID, "session-1", "203.0.113.7", "aurora-app/3.2", 5*time.Minute, now)
		require.NoError(t, err)
		return method, challenge, pushChallenge
	}

	t.Run("an approved push completes the challenge and consumes the approval", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, pushChallenge := newFixtures(t)
		require.NoError(t, pushChallenge.Approve("device-signature", now))
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.pushChallengeRepo.On("FindByID", mock.Anything, pushChallenge.ID).Return(pushChallenge, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, pushChallenge, entity.PushChallengeApproved).Return(nil)
		expectCompletion(m)

		result, err := svc.VerifyChallengePush(ctx, challenge.ChallengeToken, pushChallenge.ID)

		require.NoError(t, err)
		assert.True(t, result.Verified)
		assert.Equal(t, entity.PushChallengeConsumed, pushChallenge.Status)
	})

	t.Run("a denied push is a state error and burns no attempt", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, pushChallenge := newFixtures(t)
		require.NoError(t, pushChallenge.Deny("device-signature", now))
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.pushChallengeRepo.On("FindByID", mock.Anything, pushChallenge.ID).Return(pushChallenge, nil)

		_, err := svc.VerifyChallengePush(ctx, challenge.ChallengeToken, pushChallenge.ID)

		assert.ErrorIs(t, err, domainErrors.ErrPushNotApproved)
		m.challengeRepo.AssertNotCalled(t, "RecordFailedAttempt", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("losing the consume race to a parallel login fails the challenge", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, pushChallenge := newFixtures(t)
		require.NoError(t, pushChallenge.Approve("device-signature", now))
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.pushChallengeRepo.On("FindByID", mock.Anything, pushChallenge.ID).Return(pushChallenge, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, pushChallenge, entity.PushChallengeApproved).
			Return(domainErrors.ErrPushAlreadyConsumed)

		_, err := svc.VerifyChallengePush(ctx, challenge.ChallengeToken, pushChallenge.ID)

		assert.ErrorIs(t, err, domainErrors.ErrPushAlreadyConsumed)
		m.publisher.AssertNotCalled(t, "Publish", mock.Anything, service.EventChallengeCompleted, mock.Anything)
	})

	t.Run("a consumed approval cannot be replayed", func(t *testing.T) {
		svc, m := newTOTPVerifyFixture(t)
		method, challenge, pushChallenge := newFixtures(t)
		require.NoError(t, pushChallenge.Approve("device-signature", now))
		require.NoError(t, pushChallenge.MarkConsumed())
		m.challengeRepo.On("FindByToken", mock.Anything, challenge.ChallengeToken).Return(challenge, nil)
		m.methodRepo.On("FindByID", mock.Anything, method.ID).Return(method, nil)
		m.pushChallengeRepo.On("FindByID", mock.Anything, pushChallenge.ID).Return(pushChallenge, nil)

		_, err := svc.VerifyChallengePush(ctx, challenge.ChallengeToken, pushChallenge.ID)

		assert.ErrorIs(t, err, domainErrors.ErrPushAlreadyConsumed)
	})
}

func TestInvalidateUserChallenges(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	svc, m := newChallengeFixture(true)
	m.challengeRepo.On("InvalidateActiveByUserID", mock.Anything, userID).Return(int64(2), nil)

	affected, err := svc.InvalidateUserChallenges(ctx, userID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
}
