package service_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
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

type pushMocks struct {
	pushChallengeRepo *MockPushChallengeRepository
	pushDeviceRepo    *MockPushDeviceRepository
	pushSender        *MockPushSender
	publisher         *MockEventPublisher
}

func newPushFixture(allow bool) (*service.MFAPushService, *pushMocks) {
	m := &pushMocks{
		pushChallengeRepo: new(MockPushChallengeRepository),
		pushDeviceRepo:    new(MockPushDeviceRepository),
		pushSender:        new(MockPushSender),
		publisher:         new(MockEventPublisher),
	}
	cfg := service.PushConfig{
		ChallengeTTL: 5 * time.Minute,
		SendRule:     rate.Rule{Enabled: true, Limit: 5, Window: 15 * time.Minute},
	}
	svc := service.NewMFAPushService(
		m.pushChallengeRepo, m.pushDeviceRepo, m.pushSender,
		&stubLimiter{allow: allow}, m.publisher, zap.NewNop(), cfg,
	)
	return svc, m
}

func newActiveDevice(userID uuid.UUID, publicKey string) *entity.MFAPushDevice {
	return entity.NewMFAPushDevice(uuid.New(), userID, "Pixel 9", entity.PushPlatformAndroid,
		"fcm-token", publicKey, time.Now().UTC())
}

func TestCreatePushChallenge(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("stores the challenge and delivers the prompt", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device := newActiveDevice(userID, "")
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		m.pushChallengeRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		m.pushSender.On("SendPushNotification", mock.Anything, "fcm-token", "Sign-in request", mock.Anything, mock.Anything).
			Return(nil)

		view, err := svc.CreatePushChallenge(ctx, userID, device.ID, "session-1", "203.0.113.7", "Firefox", 0)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, view.ID)
		assert.NotEmpty(t, view.ChallengeCode)
		assert.Equal(t, "session-1", view.SessionID)
		assert.WithinDuration(t, time.Now().UTC().Add(5*time.Minute), view.ExpiresAt, 5*time.Second)
		m.pushSender.AssertExpectations(t)
	})

	t.Run("an inactive device receives no challenges", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device := newActiveDevice(userID, "")
		device.Deactivate()
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		_, err := svc.CreatePushChallenge(ctx, userID, device.ID, "session-1", "", "", 0)

		assert.ErrorIs(t, err, domainErrors.ErrPushDeviceInactive)
		m.pushChallengeRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects a device owned by another user", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device := newActiveDevice(uuid.New(), "")
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		_, err := svc.CreatePushChallenge(ctx, userID, device.ID, "session-1", "", "", 0)

		assert.ErrorIs(t, err, domainErrors.ErrForbidden)
	})

	t.Run("an out-of-range ttl is rejected", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device := newActiveDevice(userID, "")
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		_, err := svc.CreatePushChallenge(ctx, userID, device.ID, "session-1", "", "", time.Hour)

		assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest)
	})

	t.Run("rejects when the send budget is exhausted", func(t *testing.T) {
		svc, m := newPushFixture(false)
		device := newActiveDevice(userID, "")
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		_, err := svc.CreatePushChallenge(ctx, userID, device.ID, "session-1", "", "", 0)

		assert.ErrorIs(t, err, domainErrors.ErrRateLimitExceeded)
	})
}

func TestRespondToPush(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	newFixtures := func(t *testing.T, publicKey string) (*entity.MFAPushDevice, *entity.MFAPushChallenge) {
		device := newActiveDevice(userID, publicKey)
		challenge, err := entity.NewMFAPushChallenge(device.ID, userID, "session-1", "203.0.113.7", "Firefox", 5*time.Minute, now)
		require.NoError(t, err)
		return device, challenge
	}

	t.Run("records an approval", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, "")
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengePending).Return(nil)
		m.pushDeviceRepo.On("Update", mock.Anything, device).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventPushResponded, mock.Anything).Return(nil)

		err := svc.RespondToPush(ctx, device.ID, challenge.ID, true, "device-signature")

		require.NoError(t, err)
		assert.Equal(t, entity.PushChallengeApproved, challenge.Status)
		require.NotNil(t, challenge.Signature)
		assert.Equal(t, "device-signature", *challenge.Signature)
		assert.NotNil(t, device.LastUsedAt)
	})

	t.Run("records a denial", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, "")
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengePending).Return(nil)
		m.pushDeviceRepo.On("Update", mock.Anything, device).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventPushResponded, mock.Anything).Return(nil)

		err := svc.RespondToPush(ctx, device.ID, challenge.ID, false, "device-signature")

		require.NoError(t, err)
		assert.Equal(t, entity.PushChallengeDenied, challenge.Status)
	})

	t.Run("a response without signature is rejected", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, "")
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		err := svc.RespondToPush(ctx, device.ID, challenge.ID, true, "")

		assert.ErrorIs(t, err, domainErrors.ErrPushSignatureMissing)
		assert.Equal(t, entity.PushChallengePending, challenge.Status)
	})

	t.Run("a second response is rejected", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, "")
		require.NoError(t, challenge.Approve("device-signature", now))
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		err := svc.RespondToPush(ctx, device.ID, challenge.ID, false, "device-signature")

		assert.ErrorIs(t, err, domainErrors.ErrPushAlreadyResponded)
		assert.Equal(t, entity.PushChallengeApproved, challenge.Status, "first response must stand")
	})

	t.Run("losing the guarded write to a concurrent response is rejected", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, "")
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		// A second response raced us and won the row between our read and
		// the status-guarded write.
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengePending).
			Return(domainErrors.ErrPushAlreadyResponded)

		err := svc.RespondToPush(ctx, device.ID, challenge.ID, true, "device-signature")

		assert.ErrorIs(t, err, domainErrors.ErrPushAlreadyResponded)
		m.pushDeviceRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		m.publisher.AssertNotCalled(t, "Publish", mock.Anything, service.EventPushResponded, mock.Anything)
	})

	t.Run("responding after expiry marks the challenge expired", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, "")
		challenge.ExpiresAt = now.Add(-time.Minute)
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengePending).Return(nil)

		err := svc.RespondToPush(ctx, device.ID, challenge.ID, true, "device-signature")

		assert.ErrorIs(t, err, domainErrors.ErrPushChallengeExpired)
		assert.Equal(t, entity.PushChallengeExpired, challenge.Status)
	})

	t.Run("verifies an ed25519 signature over the challenge code", func(t *testing.T) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, base64.StdEncoding.EncodeToString(pub))
		signature := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(challenge.ChallengeCode)))
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengePending).Return(nil)
		m.pushDeviceRepo.On("Update", mock.Anything, device).Return(nil)
		m.publisher.On("Publish", mock.Anything, service.EventPushResponded, mock.Anything).Return(nil)

		require.NoError(t, svc.RespondToPush(ctx, device.ID, challenge.ID, true, signature))
		assert.Equal(t, entity.PushChallengeApproved, challenge.Status)
	})

	t.Run("rejects a signature made with the wrong key", func(t *testing.T) {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		_, wrongPriv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		svc, m := newPushFixture(true)
		device, challenge := newFixtures(t, base64.StdEncoding.EncodeToString(pub))
		signature := base64.StdEncoding.EncodeToString(ed25519.Sign(wrongPriv, []byte(challenge.ChallengeCode)))
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		verr := svc.RespondToPush(ctx, device.ID, challenge.ID, true, signature)

		assert.ErrorIs(t, verr, domainErrors.ErrForbidden)
		assert.Equal(t, entity.PushChallengePending, challenge.Status)
	})
}

func TestConsumePushApproval(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("an approval is consumed exactly once", func(t *testing.T) {
		svc, m := newPushFixture(true)
		challenge, err := entity.NewMFAPushChallenge(uuid.New(), userID, "session-1", "", "", 5*time.Minute, now)
		require.NoError(t, err)
		require.NoError(t, challenge.Approve("device-signature", now))
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengeApproved).Return(nil)

		require.NoError(t, svc.ConsumePushApproval(ctx, challenge.ID))
		assert.Equal(t, entity.PushChallengeConsumed, challenge.Status)

		err = svc.ConsumePushApproval(ctx, challenge.ID)
		assert.ErrorIs(t, err, domainErrors.ErrPushAlreadyConsumed)
	})

	t.Run("a concurrent consume that won the row rejects this one", func(t *testing.T) {
		svc, m := newPushFixture(true)
		challenge, err := entity.NewMFAPushChallenge(uuid.New(), userID, "session-1", "", "", 5*time.Minute, now)
		require.NoError(t, err)
		require.NoError(t, challenge.Approve("device-signature", now))
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)
		m.pushChallengeRepo.On("TransitionStatus", mock.Anything, challenge, entity.PushChallengeApproved).
			Return(domainErrors.ErrPushAlreadyConsumed)

		cerr := svc.ConsumePushApproval(ctx, challenge.ID)

		assert.ErrorIs(t, cerr, domainErrors.ErrPushAlreadyConsumed)
	})

	t.Run("a pending challenge is not consumable", func(t *testing.T) {
		svc, m := newPushFixture(true)
		challenge, err := entity.NewMFAPushChallenge(uuid.New(), userID, "session-1", "", "", 5*time.Minute, now)
		require.NoError(t, err)
		m.pushChallengeRepo.On("FindByID", mock.Anything, challenge.ID).Return(challenge, nil)

		cerr := svc.ConsumePushApproval(ctx, challenge.ID)

		assert.ErrorIs(t, cerr, domainErrors.ErrPushNotApproved)
	})
}

func TestGetPendingChallenges(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("filters challenges already past their window", func(t *testing.T) {
		svc, m := newPushFixture(true)
		device := newActiveDevice(userID, "")
		live, err := entity.NewMFAPushChallenge(device.ID, userID, "session-1", "", "", 5*time.Minute, now)
		require.NoError(t, err)
		stale, err := entity.NewMFAPushChallenge(device.ID, userID, "session-2", "", "", 5*time.Minute, now)
		require.NoError(t, err)
		stale.ExpiresAt = now.Add(-time.Minute)
		m.pushDeviceRepo.On("FindByID", mock.Anything, device.ID).Return(device, nil)
		m.pushChallengeRepo.On("FindPendingByDeviceID", mock.Anything, device.ID).
			Return([]*entity.MFAPushChallenge{live, stale}, nil)

		views, gerr := svc.GetPendingChallenges(ctx, userID, device.ID)

		require.NoError(t, gerr)
		require.Len(t, views, 1)
		assert.Equal(t, live.ID, views[0].ID)
	})
}
