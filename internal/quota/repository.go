package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists user quota rows. Rows are created on first recorded
// usage and never deleted.
type Repository interface {
	// Get returns the user's quota row, or nil if no row exists.
	Get(ctx context.Context, userIDHash string) (*UserQuota, error)
	// StartPeriod opens a fresh counting period with one consumed operation.
	// It covers both the first-usage insert and the period-rollover reset.
	StartPeriod(ctx context.Context, userIDHash string, resetDate time.Time) error
	// Increment adds one consumed operation, but only while the count is
	// below limit. A no-op (a concurrent recording already reached the
	// limit) is not an error: the row is simply never charged past limit.
	Increment(ctx context.Context, userIDHash string, limit int) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Get(ctx context.Context, userIDHash string) (*UserQuota, error) {
	query := `SELECT user_id_hash, check_count, reset_date FROM users WHERE user_id_hash = $1`

	u := &UserQuota{}
	err := r.pool.QueryRow(ctx, query, userIDHash).Scan(&u.UserIDHash, &u.CheckCount, &u.ResetDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user quota: %w", err)
	}
	return u, nil
}

func (r *postgresRepository) StartPeriod(ctx context.Context, userIDHash string, resetDate time.Time) error {
	// Upsert so that two confirmations racing on the same new-user or
	// needs-reset snapshot both land on check_count = 1 instead of one of
	// them failing on the primary key.
	query := `
		INSERT INTO users (user_id_hash, check_count, reset_date)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id_hash)
		DO UPDATE SET check_count = 1, reset_date = EXCLUDED.reset_date`

	_, err := r.pool.Exec(ctx, query, userIDHash, resetDate)
	if err != nil {
		return fmt.Errorf("starting quota period: %w", err)
	}
	return nil
}

func (r *postgresRepository) Increment(ctx context.Context, userIDHash string, limit int) error {
	// Conditional increment: the WHERE guard makes concurrent recordings
	// against the same snapshot unable to push check_count past the limit.
	query := `
		UPDATE users SET check_count = check_count + 1
		WHERE user_id_hash = $1 AND check_count < $2`

	_, err := r.pool.Exec(ctx, query, userIDHash, limit)
	if err != nil {
		return fmt.Errorf("incrementing quota usage: %w", err)
	}
	return nil
}
