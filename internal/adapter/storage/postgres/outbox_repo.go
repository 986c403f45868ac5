package postgres

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Create inserts a message in the same transaction as its cause.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.OutboxMessage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_messages
		(id, kind, aggregate_id, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Kind, m.AggregateID, m.Payload, m.Status, m.Attempts,
		m.NextAttemptAt, m.LastError, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// ListDue returns pending messages whose next attempt is due, oldest first.
func (r *OutboxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, aggregate_id, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		 FROM outbox_messages
		 WHERE status = 'PENDING' AND next_attempt_at <= $1
		 ORDER BY next_attempt_at ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due outbox messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(
			&m.ID, &m.Kind, &m.AggregateID, &m.Payload, &m.Status, &m.Attempts,
			&m.NextAttemptAt, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateDelivery records the outcome of a dispatch attempt.
func (r *OutboxRepo) UpdateDelivery(ctx context.Context, m *domain.OutboxMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_messages
		 SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = $5
		 WHERE id = $6`,
		m.Status, m.Attempts, m.NextAttemptAt, m.LastError, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update outbox message: %w", err)
	}
	return nil
}
