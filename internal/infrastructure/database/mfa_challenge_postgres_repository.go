package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
)

type pgxMFAChallengeRepository struct {
	db *pgxpool.Pool
}

// NewPgxMFAChallengeRepository creates a new instance of pgxMFAChallengeRepository.
func NewPgxMFAChallengeRepository(db *pgxpool.Pool) repository.MFAChallengeRepository {
	return &pgxMFAChallengeRepository{db: db}
}

const mfaChallengeColumns = `id, challenge_token, user_id, type, mfa_method_id, attempt_count, max_attempts, is_completed, is_invalid, email_code_hash, created_at, expires_at, completed_at, last_attempt_at`

func (r *pgxMFAChallengeRepository) Create(ctx context.Context, challenge *entity.MFAChallenge) error {
	query := `
		INSERT INTO mfa_challenges (` + mfaChallengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx, query,
		challenge.ID, challenge.ChallengeToken, challenge.UserID, challenge.Type,
		challenge.MFAMethodID, challenge.AttemptCount, challenge.MaxAttempts,
		challenge.IsCompleted, challenge.IsInvalid, challenge.EmailCodeHash,
		challenge.CreatedAt, challenge.ExpiresAt, challenge.CompletedAt, challenge.LastAttemptAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func (r *pgxMFAChallengeRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE mfa_challenges SET is_invalid = TRUE WHERE id = $1 AND NOT is_completed`, id)
	if err != nil {
		return fmt.Errorf("failed to invalidate challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrChallengeCompleted
	}
	return nil
}

func (r *pgxMFAChallengeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAChallenge, error) {
	query := `SELECT ` + mfaChallengeColumns + ` FROM mfa_challenges WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxMFAChallengeRepository) FindByToken(ctx context.Context, token string) (*entity.MFAChallenge, error) {
	query := `SELECT ` + mfaChallengeColumns + ` FROM mfa_challenges WHERE challenge_token = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, token))
}

// Complete flips the challenge to completed with the same still-valid guard
// a concurrent RecordFailedAttempt serializes against: a success that lost
// the race to an exhaustion can never resurrect the row.
func (r *pgxMFAChallengeRepository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE mfa_challenges SET
			is_completed = TRUE, completed_at = $2
		WHERE id = $1 AND NOT is_completed AND NOT is_invalid`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete challenge: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var isCompleted, isInvalid bool
	err = r.db.QueryRow(ctx,
		`SELECT is_completed, is_invalid FROM mfa_challenges WHERE id = $1`, id).
		Scan(&isCompleted, &isInvalid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainErrors.ErrChallengeNotFound
		}
		return fmt.Errorf("failed to read challenge state: %w", err)
	}
	if isCompleted {
		return domainErrors.ErrChallengeCompleted
	}
	return domainErrors.ErrChallengeInvalid
}

// RecordFailedAttempt bumps the counter and flips the challenge invalid in
// the same statement when the budget is exhausted. Two concurrent wrong
// submissions serialize on the row lock, so neither can observe a stale
// count.
func (r *pgxMFAChallengeRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, at time.Time) (*entity.MFAChallenge, error) {
	query := `
		UPDATE mfa_challenges SET
			attempt_count = attempt_count + 1,
			last_attempt_at = $2,
			is_invalid = is_invalid OR attempt_count + 1 >= max_attempts
		WHERE id = $1 AND NOT is_completed
		RETURNING ` + mfaChallengeColumns
	challenge, err := r.scanOne(r.db.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			return nil, domainErrors.ErrChallengeNotFound
		}
		return nil, err
	}
	return challenge, nil
}

func (r *pgxMFAChallengeRepository) InvalidateActiveByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE mfa_challenges SET is_invalid = TRUE
		 WHERE user_id = $1 AND NOT is_completed AND NOT is_invalid`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgxMFAChallengeRepository) DeleteExpiredOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM mfa_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgxMFAChallengeRepository) scanOne(row pgx.Row) (*entity.MFAChallenge, error) {
	challenge := &entity.MFAChallenge{}
	err := row.Scan(
		&challenge.ID, &challenge.ChallengeToken, &challenge.UserID, &challenge.Type,
		&challenge.MFAMethodID, &challenge.AttemptCount, &challenge.MaxAttempts,
		&challenge.IsCompleted, &challenge.IsInvalid, &challenge.EmailCodeHash,
		&challenge.CreatedAt, &challenge.ExpiresAt, &challenge.CompletedAt, &challenge.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan challenge: %w", err)
	}
	return challenge, nil
}
