package postgres

import (
	"context"
	"fmt"
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, transfer_id, status, attempts, next_attempt_at, last_error, created_at, updated_at`

// SettlementTaskRepo implements ports.SettlementTaskRepository on the
// settlement_tasks outbox table.
type SettlementTaskRepo struct {
	pool Pool
}

// NewSettlementTaskRepo creates a new SettlementTaskRepo.
func NewSettlementTaskRepo(pool Pool) *SettlementTaskRepo {
	return &SettlementTaskRepo{pool: pool}
}

// Enqueue writes a task inside the caller's transaction.
func (r *SettlementTaskRepo) Enqueue(ctx context.Context, tx pgx.Tx, task *domain.SettlementTask) error {
	query := `INSERT INTO settlement_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		task.ID, task.TransferID, task.Status, task.Attempts,
		task.NextAttemptAt, task.LastError, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue settlement task: %w", err)
	}
	return nil
}

// ClaimDue moves up to limit due tasks to PROCESSING and returns them.
// SKIP LOCKED lets several workers or processes claim disjoint batches.
func (r *SettlementTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
	query := `UPDATE settlement_tasks SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM settlement_tasks
			WHERE status = $3 AND next_attempt_at <= $2
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := r.pool.Query(ctx, query, domain.TaskStatusProcessing, now, domain.TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim settlement tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.SettlementTask
	for rows.Next() {
		var t domain.SettlementTask
		if err := rows.Scan(
			&t.ID, &t.TransferID, &t.Status, &t.Attempts,
			&t.NextAttemptAt, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement tasks: %w", err)
	}
	return tasks, nil
}

// MarkDone closes a claimed task.
func (r *SettlementTaskRepo) MarkDone(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE settlement_tasks SET status = $1, updated_at = $2 WHERE id = $3`

	if _, err := r.pool.Exec(ctx, query, domain.TaskStatusDone, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark task done: %w", err)
	}
	return nil
}

// MarkRetry returns a claimed task to PENDING with a new due time.
func (r *SettlementTaskRepo) MarkRetry(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error {
	query := `UPDATE settlement_tasks
		SET status = $1, attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6`

	_, err := r.pool.Exec(ctx, query,
		domain.TaskStatusPending, lastError, nextAttemptAt, time.Now().UTC(), id, domain.TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark task retry: %w", err)
	}
	return nil
}

// MarkDead parks a task that will not be retried.
func (r *SettlementTaskRepo) MarkDead(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `UPDATE settlement_tasks
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
		WHERE id = $4`

	if _, err := r.pool.Exec(ctx, query, domain.TaskStatusDead, lastError, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark task dead: %w", err)
	}
	return nil
}

// ResetStuck requeues PROCESSING tasks whose worker went away.
func (r *SettlementTaskRepo) ResetStuck(ctx context.Context, before time.Time) (int64, error) {
	query := `UPDATE settlement_tasks SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4`

	tag, err := r.pool.Exec(ctx, query, domain.TaskStatusPending, time.Now().UTC(), domain.TaskStatusProcessing, before)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EnqueueOrphans creates tasks for non-terminal transfers older than before
// that have no PENDING or PROCESSING task.
func (r *SettlementTaskRepo) EnqueueOrphans(ctx context.Context, before time.Time) (int64, error) {
	query := `INSERT INTO settlement_tasks (id, transfer_id, status, attempts, next_attempt_at, created_at, updated_at)
		SELECT gen_random_uuid(), t.id, $1, 0, $2, $2, $2
		FROM transfers t
		WHERE t.status IN ($3, $4) AND t.initiated_at < $5
		  AND NOT EXISTS (
			SELECT 1 FROM settlement_tasks s
			WHERE s.transfer_id = t.id AND s.status IN ($1, $6)
		  )`

	tag, err := r.pool.Exec(ctx, query,
		domain.TaskStatusPending, time.Now().UTC(),
		domain.TransferStatusInitiated, domain.TransferStatusProcessing, before,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue orphan tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}
