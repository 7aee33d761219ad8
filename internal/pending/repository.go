package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pending-operation ledger.
type Repository interface {
	// Create inserts a new pending operation and returns its generated id.
	Create(ctx context.Context, op Op) (uuid.UUID, error)
	// Consume atomically deletes the row matching both id and owner and
	// returns its data. The delete is the atomicity gate: of two concurrent
	// consumes for the same id, exactly one succeeds and the other gets
	// ErrNotFound.
	Consume(ctx context.Context, userIDHash string, opID uuid.UUID) (*Op, error)
	// DeleteOlderThan removes orphaned rows created before cutoff and
	// returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, op Op) (uuid.UUID, error) {
	opID := uuid.New()
	query := `
		INSERT INTO pending_ops (op_id, user_id, is_new_user, needs_reset, prev_count, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	_, err := r.pool.Exec(ctx, query, opID, op.UserIDHash, op.IsNewUser, op.NeedsReset, op.PrevCount)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting pending operation: %w", err)
	}
	return opID, nil
}

func (r *postgresRepository) Consume(ctx context.Context, userIDHash string, opID uuid.UUID) (*Op, error) {
	query := `
		DELETE FROM pending_ops
		WHERE op_id = $1 AND user_id = $2
		RETURNING op_id, user_id, is_new_user, needs_reset, prev_count, created_at`

	op := &Op{}
	err := r.pool.QueryRow(ctx, query, opID, userIDHash).Scan(
		&op.ID, &op.UserIDHash, &op.IsNewUser, &op.NeedsReset, &op.PrevCount, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consuming pending operation: %w", err)
	}
	return op, nil
}

func (r *postgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pending_ops WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale pending operations: %w", err)
	}
	return tag.RowsAffected(), nil
}
