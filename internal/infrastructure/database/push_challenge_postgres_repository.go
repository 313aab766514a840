package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
)

type pgxPushChallengeRepository struct {
	db *pgxpool.Pool
}

// NewPgxPushChallengeRepository creates a new instance of pgxPushChallengeRepository.
func NewPgxPushChallengeRepository(db *pgxpool.Pool) repository.PushChallengeRepository {
	return &pgxPushChallengeRepository{db: db}
}

const pushChallengeColumns = `id, device_id, user_id, challenge_code, session_id, ip_address, user_agent, status, signature, created_at, expires_at, responded_at`

func (r *pgxPushChallengeRepository) Create(ctx context.Context, challenge *entity.MFAPushChallenge) error {
	query := `
		INSERT INTO mfa_push_challenges (` + pushChallengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		challenge.ID, challenge.DeviceID, challenge.UserID, challenge.ChallengeCode,
		challenge.SessionID, challenge.IPAddress, challenge.UserAgent, challenge.Status,
		challenge.Signature, challenge.CreatedAt, challenge.ExpiresAt, challenge.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create push challenge: %w", err)
	}
	return nil
}

// TransitionStatus writes the response only while the row still holds the
// status the caller observed, so concurrent responses serialize on the row
// and exactly one wins. The loser's error names the state that beat it.
func (r *pgxPushChallengeRepository) TransitionStatus(ctx context.Context, challenge *entity.MFAPushChallenge, expected entity.PushChallengeStatus) error {
	query := `
		UPDATE mfa_push_challenges SET
			status = $2, signature = $3, responded_at = $4
		WHERE id = $1 AND status = $5`
	tag, err := r.db.Exec(ctx, query,
		challenge.ID, challenge.Status, challenge.Signature, challenge.RespondedAt, expected)
	if err != nil {
		return fmt.Errorf("failed to transition push challenge: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current entity.PushChallengeStatus
	err = r.db.QueryRow(ctx,
		`SELECT status FROM mfa_push_challenges WHERE id = $1`, challenge.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainErrors.ErrPushChallengeNotFound
		}
		return fmt.Errorf("failed to read push challenge status: %w", err)
	}
	switch {
	case current == entity.PushChallengeConsumed:
		return domainErrors.ErrPushAlreadyConsumed
	case current == entity.PushChallengeExpired:
		return domainErrors.ErrPushChallengeExpired
	case expected == entity.PushChallengePending:
		return domainErrors.ErrPushAlreadyResponded
	default:
		return domainErrors.ErrPushNotApproved
	}
}

func (r *pgxPushChallengeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAPushChallenge, error) {
	query := `SELECT ` + pushChallengeColumns + ` FROM mfa_push_challenges WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxPushChallengeRepository) FindPendingByDeviceID(ctx context.Context, deviceID uuid.UUID) ([]*entity.MFAPushChallenge, error) {
	query := `SELECT ` + pushChallengeColumns + `
		FROM mfa_push_challenges WHERE device_id = $1 AND status = $2 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, deviceID, entity.PushChallengePending)
	if err != nil {
		return nil, fmt.Errorf("failed to query push challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*entity.MFAPushChallenge
	for rows.Next() {
		challenge, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, challenge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push challenges: %w", err)
	}
	return challenges, nil
}

func (r *pgxPushChallengeRepository) MarkExpiredOlderThan(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE mfa_push_challenges SET status = $1 WHERE status = $2 AND expires_at < $3`,
		entity.PushChallengeExpired, entity.PushChallengePending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire push challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgxPushChallengeRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM mfa_push_challenges WHERE status <> $1 AND expires_at < $2`,
		entity.PushChallengePending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete push challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgxPushChallengeRepository) scanOne(row pgx.Row) (*entity.MFAPushChallenge, error) {
	challenge := &entity.MFAPushChallenge{}
	err := row.Scan(
		&challenge.ID, &challenge.DeviceID, &challenge.UserID, &challenge.ChallengeCode,
		&challenge.SessionID, &challenge.IPAddress, &challenge.UserAgent, &challenge.Status,
		&challenge.Signature, &challenge.CreatedAt, &challenge.ExpiresAt, &challenge.RespondedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan push challenge: %w", err)
	}
	return challenge, nil
}
