package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// enqueue records a side effect in the caller's transaction. It is
// dispatched only after that transaction commits.
func enqueue(ctx context.Context, tx pgx.Tx, repo ports.OutboxRepository, kind domain.OutboxKind, aggregateID uuid.UUID, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	now := time.Now().UTC()
	msg := &domain.OutboxMessage{
		ID:            uuid.New(),
		Kind:          kind,
		AggregateID:   aggregateID,
		Payload:       body,
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}

func notify(ctx context.Context, tx pgx.Tx, repo ports.OutboxRepository, recipient uuid.UUID, template string, data map[string]string) error {
	if recipient == uuid.Nil {
		return nil
	}
	return enqueue(ctx, tx, repo, domain.OutboxKindNotification, recipient, domain.Notification{
		RecipientID: recipient,
		Template:    template,
		Data:        data,
	})
}
