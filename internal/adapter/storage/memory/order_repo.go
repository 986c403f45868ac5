package memory

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	s *Store
}

// NewOrderRepo creates an OrderRepo over the store.
func NewOrderRepo(s *Store) *OrderRepo {
	return &OrderRepo{s: s}
}

func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	var dup bool
	r.s.write(tx, func() {
		if _, dup = r.s.orders[o.ID]; dup {
			return
		}
		r.s.orders[o.ID] = *o
	}, func() {
		if !dup {
			delete(r.s.orders, o.ID)
		}
	})
	if dup {
		return fmt.Errorf("insert order: duplicate id %s", o.ID)
	}
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var out *domain.Order
	r.s.read(func() {
		if o, ok := r.s.orders[id]; ok {
			out = &o
		}
	})
	return out, nil
}

func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

// mutate applies fn to the stored order when guard holds and reports
// whether it did.
func (r *OrderRepo) mutate(tx pgx.Tx, id uuid.UUID, guard func(domain.Order) bool, fn func(*domain.Order)) bool {
	var prev domain.Order
	var applied bool
	r.s.write(tx, func() {
		cur, ok := r.s.orders[id]
		if !ok || !guard(cur) {
			return
		}
		prev = cur
		fn(&cur)
		r.s.orders[id] = cur
		applied = true
	}, func() {
		if applied {
			r.s.orders[id] = prev
		}
	})
	return applied
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, o *domain.Order, expected domain.OrderStatus, expectedVersion int) (bool, error) {
	ok := r.mutate(tx, o.ID, func(cur domain.Order) bool {
		return cur.Status == expected && cur.StatusVersion == expectedVersion
	}, func(cur *domain.Order) {
		cur.Status = o.Status
		cur.StatusVersion = expectedVersion + 1
		cur.DriverID = o.DriverID
		cur.CancelReason = o.CancelReason
		cur.AcceptedAt = o.AcceptedAt
		cur.ReadyAt = o.ReadyAt
		cur.AssignedAt = o.AssignedAt
		cur.PickedUpAt = o.PickedUpAt
		cur.DeliveredAt = o.DeliveredAt
		cur.CancelledAt = o.CancelledAt
		cur.UpdatedAt = o.UpdatedAt
	})
	if ok {
		o.StatusVersion = expectedVersion + 1
	}
	return ok, nil
}

func (r *OrderRepo) AssignDriver(ctx context.Context, tx pgx.Tx, orderID, driverID uuid.UUID, at time.Time) (bool, error) {
	ok := r.mutate(tx, orderID, func(cur domain.Order) bool {
		return cur.Status == domain.OrderStatusReady && cur.DriverID == nil
	}, func(cur *domain.Order) {
		d, ts := driverID, at
		cur.DriverID = &d
		cur.Status = domain.OrderStatusAssigned
		cur.StatusVersion++
		cur.AssignedAt = &ts
		cur.UpdatedAt = at
	})
	return ok, nil
}

func (r *OrderRepo) SetEarnings(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, split domain.Split) (bool, error) {
	ok := r.mutate(tx, orderID, func(cur domain.Order) bool {
		return cur.BusinessEarnings == nil
	}, func(cur *domain.Order) {
		platform, business, driver := split.Platform, split.Business, split.Driver
		cur.PlatformFee = &platform
		cur.BusinessEarnings = &business
		cur.DeliveryEarnings = &driver
		cur.UpdatedAt = time.Now().UTC()
	})
	return ok, nil
}

func (r *OrderRepo) UpdatePayment(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	ok := r.mutate(tx, o.ID, func(domain.Order) bool { return true }, func(cur *domain.Order) {
		cur.PaymentStatus = o.PaymentStatus
		cur.ChargeID = o.ChargeID
		cur.RefundAmount = o.RefundAmount
		cur.RefundedAt = o.RefundedAt
		cur.UpdatedAt = o.UpdatedAt
	})
	if !ok {
		return fmt.Errorf("order not found: %s", o.ID)
	}
	return nil
}

func (r *OrderRepo) AppendEvent(ctx context.Context, tx pgx.Tx, e *domain.OrderEvent) error {
	r.s.write(tx, func() {
		r.s.orderEvents[e.OrderID] = append(r.s.orderEvents[e.OrderID], *e)
	}, func() {
		events := r.s.orderEvents[e.OrderID]
		if n := len(events); n > 0 {
			r.s.orderEvents[e.OrderID] = events[:n-1]
		}
	})
	return nil
}

func (r *OrderRepo) ListEvents(ctx context.Context, orderID uuid.UUID) ([]domain.OrderEvent, error) {
	var out []domain.OrderEvent
	r.s.read(func() {
		out = append(out, r.s.orderEvents[orderID]...)
	})
	return out, nil
}

func (r *OrderRepo) SumDriverCardEarnings(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, from, to time.Time) (int64, error) {
	var sum int64
	r.s.read(func() {
		for _, o := range r.s.orders {
			if !o.HasDriver(driverID) || o.PaymentMethod != domain.PaymentMethodCard || o.Status != domain.OrderStatusDelivered {
				continue
			}
			if o.DeliveredAt == nil || o.DeliveryEarnings == nil || !inRange(*o.DeliveredAt, &from, &to) {
				continue
			}
			sum += *o.DeliveryEarnings
		}
	})
	return sum, nil
}
