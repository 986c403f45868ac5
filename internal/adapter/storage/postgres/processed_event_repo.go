package postgres

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ProcessedEventRepo implements ports.ProcessedEventRepository.
type ProcessedEventRepo struct {
	pool Pool
}

// NewProcessedEventRepo creates a new ProcessedEventRepo.
func NewProcessedEventRepo(pool Pool) *ProcessedEventRepo {
	return &ProcessedEventRepo{pool: pool}
}

// Record inserts the event id inside the caller's transaction. A conflict
// means another delivery of the same event already committed.
func (r *ProcessedEventRepo) Record(ctx context.Context, tx pgx.Tx, e *domain.ProcessedEvent) (bool, error) {
	query := `INSERT INTO processed_payment_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query, e.EventID, e.EventType, e.ProcessedAt)
	if err != nil {
		return false, fmt.Errorf("record processed event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether the event id has been recorded.
func (r *ProcessedEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_payment_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return exists, nil
}
