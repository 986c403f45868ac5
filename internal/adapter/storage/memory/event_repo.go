package memory

import (
	"context"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ProcessedEventRepo implements ports.ProcessedEventRepository.
type ProcessedEventRepo struct {
	s *Store
}

// NewProcessedEventRepo creates a ProcessedEventRepo over the store.
func NewProcessedEventRepo(s *Store) *ProcessedEventRepo {
	return &ProcessedEventRepo{s: s}
}

func (r *ProcessedEventRepo) Record(ctx context.Context, tx pgx.Tx, e *domain.ProcessedEvent) (bool, error) {
	var inserted bool
	r.s.write(tx, func() {
		if _, ok := r.s.processed[e.EventID]; ok {
			return
		}
		r.s.processed[e.EventID] = *e
		inserted = true
	}, func() {
		if inserted {
			delete(r.s.processed, e.EventID)
		}
	})
	return inserted, nil
}

func (r *ProcessedEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	var ok bool
	r.s.read(func() {
		_, ok = r.s.processed[eventID]
	})
	return ok, nil
}

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	s *Store
}

// NewOutboxRepo creates an OutboxRepo over the store.
func NewOutboxRepo(s *Store) *OutboxRepo {
	return &OutboxRepo{s: s}
}

func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.OutboxMessage) error {
	r.s.write(tx, func() {
		r.s.outbox[m.ID] = *m
		r.s.outboxOrder = append(r.s.outboxOrder, m.ID)
	}, func() {
		delete(r.s.outbox, m.ID)
		if n := len(r.s.outboxOrder); n > 0 && r.s.outboxOrder[n-1] == m.ID {
			r.s.outboxOrder = r.s.outboxOrder[:n-1]
		}
	})
	return nil
}

// ListDue returns pending messages in insertion order.
func (r *OutboxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	r.s.read(func() {
		for _, id := range r.s.outboxOrder {
			if limit > 0 && len(out) >= limit {
				return
			}
			m := r.s.outbox[id]
			if m.Status == domain.OutboxStatusPending && !m.NextAttemptAt.After(now) {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

func (r *OutboxRepo) UpdateDelivery(ctx context.Context, m *domain.OutboxMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.outbox[m.ID]
	if !ok {
		return nil
	}
	cur.Status = m.Status
	cur.Attempts = m.Attempts
	cur.NextAttemptAt = m.NextAttemptAt
	cur.LastError = m.LastError
	cur.UpdatedAt = m.UpdatedAt
	r.s.outbox[m.ID] = cur
	return nil
}

// Messages returns every outbox message in insertion order.
func (r *OutboxRepo) Messages() []domain.OutboxMessage {
	var out []domain.OutboxMessage
	r.s.read(func() {
		for _, id := range r.s.outboxOrder {
			out = append(out, r.s.outbox[id])
		}
	})
	return out
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	s *Store
}

// NewAuditRepo creates an AuditRepo over the store.
func NewAuditRepo(s *Store) *AuditRepo {
	return &AuditRepo{s: s}
}

func (r *AuditRepo) Create(ctx context.Context, l *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *l)
	return nil
}

// Entries returns the audit trail in insertion order.
func (r *AuditRepo) Entries() []domain.AuditLog {
	var out []domain.AuditLog
	r.s.read(func() {
		out = append(out, r.s.audit...)
	})
	return out
}
