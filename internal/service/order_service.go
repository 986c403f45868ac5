package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var errDriverUnavailable = errors.New("driver is not available")

// OrderServiceImpl implements ports.OrderService and ports.OrderPaymentHandler.
type OrderServiceImpl struct {
	orderRepo         ports.OrderRepository
	driverRepo        ports.DriverRepository
	businessRepo      ports.BusinessRepository
	outboxRepo        ports.OutboxRepository
	ledger            ports.LedgerService
	distribution      ports.DistributionService
	assignment        ports.AssignmentService
	transactor        ports.DBTransactor
	platformOwnerID   uuid.UUID
	maxAssignAttempts int
	log               zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl.
func NewOrderService(
	orderRepo ports.OrderRepository,
	driverRepo ports.DriverRepository,
	businessRepo ports.BusinessRepository,
	outboxRepo ports.OutboxRepository,
	ledger ports.LedgerService,
	distribution ports.DistributionService,
	assignment ports.AssignmentService,
	transactor ports.DBTransactor,
	platformOwnerID uuid.UUID,
	maxAssignAttempts int,
	log zerolog.Logger,
) *OrderServiceImpl {
	if maxAssignAttempts < 1 {
		maxAssignAttempts = 1
	}
	return &OrderServiceImpl{
		orderRepo:         orderRepo,
		driverRepo:        driverRepo,
		businessRepo:      businessRepo,
		outboxRepo:        outboxRepo,
		ledger:            ledger,
		distribution:      distribution,
		assignment:        assignment,
		transactor:        transactor,
		platformOwnerID:   platformOwnerID,
		maxAssignAttempts: maxAssignAttempts,
		log:               log,
	}
}

// Create places a new PENDING order for the calling customer.
func (s *OrderServiceImpl) Create(ctx context.Context, actor domain.Actor, req ports.CreateOrderRequest) (*domain.Order, error) {
	if actor.Role != domain.RoleCustomer {
		return nil, apperror.ErrForbidden()
	}
	if req.Total <= 0 {
		return nil, apperror.Validation("total must be positive")
	}
	if !req.PaymentMethod.Valid() {
		return nil, apperror.Validation("payment method must be CARD or CASH")
	}

	business, err := s.businessRepo.GetByID(ctx, req.BusinessID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get business: %w", err))
	}
	if business == nil {
		return nil, apperror.ErrNotFound("business")
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:            uuid.New(),
		CustomerID:    actor.ID,
		BusinessID:    business.ID,
		Status:        domain.OrderStatusPending,
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusNotRequired,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.PaymentMethod == domain.PaymentMethodCard {
		order.PaymentStatus = domain.PaymentStatusAwaiting
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.orderRepo.Create(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}
	if err := s.record(ctx, dbTx, order, "", actor, ""); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("business_id", order.BusinessID.String()).
		Int64("total", order.Total).
		Str("payment_method", string(order.PaymentMethod)).
		Msg("order created")
	return order, nil
}

// Get returns an order visible to actor.
func (s *OrderServiceImpl) Get(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if !canView(actor, order) {
		return nil, apperror.ErrForbidden()
	}
	return order, nil
}

// Events returns the status history of an order visible to actor.
func (s *OrderServiceImpl) Events(ctx context.Context, actor domain.Actor, orderID uuid.UUID) ([]domain.OrderEvent, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	events, err := s.orderRepo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list order events: %w", err))
	}
	return events, nil
}

// Accept moves PENDING to ACCEPTED. Card orders must be paid first.
func (s *OrderServiceImpl) Accept(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, actor, orderID, domain.OrderStatusAccepted, transitionOpts{
		authorize: isBusinessOwner,
		guard: func(o *domain.Order) error {
			if o.PaymentMethod == domain.PaymentMethodCard && !o.IsCaptured() {
				return apperror.ErrInvalidState("card payment has not been captured")
			}
			return nil
		},
	})
}

// StartPreparing moves ACCEPTED to PREPARING.
func (s *OrderServiceImpl) StartPreparing(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, actor, orderID, domain.OrderStatusPreparing, transitionOpts{authorize: isBusinessOwner})
}

// MarkReady moves PREPARING to READY and then tries to auto-assign. A
// failed auto-assignment leaves the order READY.
func (s *OrderServiceImpl) MarkReady(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.transition(ctx, actor, orderID, domain.OrderStatusReady, transitionOpts{authorize: isBusinessOwner})
	if err != nil {
		return nil, err
	}

	assigned, err := s.AutoAssign(ctx, orderID)
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID.String()).Msg("auto-assignment failed, order stays ready")
		return order, nil
	}
	return assigned, nil
}

// Assign gives a READY order to driverID. Only one caller can win.
func (s *OrderServiceImpl) Assign(ctx context.Context, actor domain.Actor, orderID, driverID uuid.UUID) (*domain.Order, error) {
	if !actor.IsPrivileged() && !(actor.Role == domain.RoleDriver && actor.ID == driverID) {
		return nil, apperror.ErrForbidden()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.lockOrder(ctx, dbTx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusAssigned) {
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(domain.OrderStatusAssigned))
	}

	driver, err := s.driverRepo.GetByIDForUpdate(ctx, dbTx, driverID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock driver: %w", err))
	}
	if driver == nil {
		return nil, apperror.ErrNotFound("driver")
	}
	if !driver.IsAssignable() {
		return nil, apperror.Wrap(apperror.CodeNoDriver, "Driver is not available", http.StatusConflict, errDriverUnavailable)
	}

	now := time.Now().UTC()
	claimed, err := s.orderRepo.AssignDriver(ctx, dbTx, orderID, driverID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("assign driver: %w", err))
	}
	if !claimed {
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(domain.OrderStatusAssigned))
	}

	from := order.Status
	order.Status = domain.OrderStatusAssigned
	order.StatusVersion++
	order.DriverID = &driverID
	order.StampTransition(domain.OrderStatusAssigned, now)

	driver.IsAvailable = false
	driver.UpdatedAt = now
	if err := s.driverRepo.UpdateState(ctx, dbTx, driver); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark driver busy: %w", err))
	}
	if err := s.record(ctx, dbTx, order, from, actor, ""); err != nil {
		return nil, err
	}
	if err := notify(ctx, dbTx, s.outboxRepo, driverID, domain.NotifyOrderAssigned, map[string]string{
		"order_id": order.ID.String(),
	}); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", orderID.String()).
		Str("driver_id", driverID.String()).
		Msg("driver assigned")
	return order, nil
}

// AutoAssign offers the order to the best ranked drivers in turn.
func (s *OrderServiceImpl) AutoAssign(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.Status != domain.OrderStatusReady {
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(domain.OrderStatusAssigned))
	}

	business, err := s.businessRepo.GetByID(ctx, order.BusinessID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get business: %w", err))
	}
	if business == nil {
		return nil, apperror.ErrNotFound("business")
	}

	candidates, err := s.assignment.Rank(ctx, business.Lat, business.Lng)
	if err != nil {
		return nil, err
	}

	attempts := 0
	for _, c := range candidates {
		if attempts >= s.maxAssignAttempts {
			break
		}
		attempts++

		assigned, err := s.Assign(ctx, domain.SystemActor, orderID, c.DriverID)
		if err == nil {
			return assigned, nil
		}
		if errors.Is(err, errDriverUnavailable) || apperror.HasCode(err, apperror.CodeNotFound) {
			s.log.Debug().Str("order_id", orderID.String()).Str("driver_id", c.DriverID.String()).Msg("candidate no longer available")
			continue
		}
		return nil, err
	}

	return nil, apperror.ErrNoDriverAvailable()
}

// PickUp moves ASSIGNED to PICKED_UP for the assigned driver.
func (s *OrderServiceImpl) PickUp(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, actor, orderID, domain.OrderStatusPickedUp, transitionOpts{authorize: isAssignedDriver})
}

// Deliver moves PICKED_UP to DELIVERED, distributes revenue and frees the
// driver, all in one transaction.
func (s *OrderServiceImpl) Deliver(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, actor, orderID, domain.OrderStatusDelivered, transitionOpts{
		authorize: isAssignedDriver,
		after: func(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
			if err := s.distribution.DistributeInTx(ctx, tx, o); err != nil {
				return err
			}
			return s.releaseDriver(ctx, tx, o, true)
		},
	})
}

// Cancel moves any non-terminal order to CANCELLED. A captured card charge
// is handed to the processor for refund.
func (s *OrderServiceImpl) Cancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID, reason string) (*domain.Order, error) {
	return s.cancel(ctx, actor, orderID, reason, false)
}

// RegretCancel lets the customer withdraw an order nobody has acted on yet.
func (s *OrderServiceImpl) RegretCancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	return s.cancel(ctx, actor, orderID, "customer changed their mind", true)
}

func (s *OrderServiceImpl) cancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID, reason string, regret bool) (*domain.Order, error) {
	authorize := func(a domain.Actor, o *domain.Order) bool {
		if regret {
			return a.Role == domain.RoleCustomer && a.ID == o.CustomerID
		}
		return a.IsPrivileged() ||
			(a.Role == domain.RoleCustomer && a.ID == o.CustomerID) ||
			(a.Role == domain.RoleBusiness && a.ID == o.BusinessID)
	}

	return s.transition(ctx, actor, orderID, domain.OrderStatusCancelled, transitionOpts{
		authorize: authorize,
		guard: func(o *domain.Order) error {
			if regret && o.Status != domain.OrderStatusPending {
				return apperror.ErrInvalidTransition(string(o.Status), string(domain.OrderStatusCancelled))
			}
			return nil
		},
		before: func(o *domain.Order) {
			if reason != "" {
				r := reason
				o.CancelReason = &r
			}
		},
		after: func(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
			if o.DriverID != nil {
				if err := s.releaseDriver(ctx, tx, o, false); err != nil {
					return err
				}
			}
			return s.requestRefundIfCaptured(ctx, tx, o)
		},
	})
}

func (s *OrderServiceImpl) requestRefundIfCaptured(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	if !o.IsCaptured() || o.ChargeID == nil {
		return nil
	}
	if err := enqueue(ctx, tx, s.outboxRepo, domain.OutboxKindRefundRequest, o.ID, domain.RefundRequest{
		OrderID:  o.ID,
		ChargeID: *o.ChargeID,
		Amount:   o.Total,
	}); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

// releaseDriver makes the order's driver available again.
func (s *OrderServiceImpl) releaseDriver(ctx context.Context, tx pgx.Tx, o *domain.Order, completed bool) error {
	driver, err := s.driverRepo.GetByIDForUpdate(ctx, tx, *o.DriverID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock driver: %w", err))
	}
	if driver == nil {
		return apperror.ErrNotFound("driver")
	}
	driver.IsAvailable = true
	if completed {
		driver.CompletedOrders++
	}
	driver.UpdatedAt = time.Now().UTC()
	if err := s.driverRepo.UpdateState(ctx, tx, driver); err != nil {
		return apperror.InternalError(fmt.Errorf("release driver: %w", err))
	}
	return nil
}

type transitionOpts struct {
	authorize func(domain.Actor, *domain.Order) bool
	guard     func(*domain.Order) error
	before    func(*domain.Order)
	after     func(context.Context, pgx.Tx, *domain.Order) error
}

// transition runs one lifecycle move in its own transaction.
func (s *OrderServiceImpl) transition(ctx context.Context, actor domain.Actor, orderID uuid.UUID, to domain.OrderStatus, opts transitionOpts) (*domain.Order, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.lockOrder(ctx, dbTx, orderID)
	if err != nil {
		return nil, err
	}
	if opts.authorize != nil && !opts.authorize(actor, order) {
		return nil, apperror.ErrForbidden()
	}
	if err := s.transitionInTx(ctx, dbTx, order, to, actor, opts); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(order.Status)).
		Str("actor_role", string(actor.Role)).
		Msg("order status changed")
	return order, nil
}

// transitionInTx applies a move to an order already locked in tx.
func (s *OrderServiceImpl) transitionInTx(ctx context.Context, tx pgx.Tx, order *domain.Order, to domain.OrderStatus, actor domain.Actor, opts transitionOpts) error {
	from := order.Status
	if !domain.CanTransition(from, to) {
		return apperror.ErrInvalidTransition(string(from), string(to))
	}
	if opts.guard != nil {
		if err := opts.guard(order); err != nil {
			return err
		}
	}

	expectedVersion := order.StatusVersion
	order.Status = to
	order.StampTransition(to, time.Now().UTC())
	if opts.before != nil {
		opts.before(order)
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, tx, order, from, expectedVersion)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidTransition(string(from), string(to))
	}

	if opts.after != nil {
		if err := opts.after(ctx, tx, order); err != nil {
			return err
		}
	}

	note := ""
	if order.CancelReason != nil && to == domain.OrderStatusCancelled {
		note = *order.CancelReason
	}
	return s.record(ctx, tx, order, from, actor, note)
}

// record appends the history row and tells the other parties.
func (s *OrderServiceImpl) record(ctx context.Context, tx pgx.Tx, order *domain.Order, from domain.OrderStatus, actor domain.Actor, note string) error {
	event := &domain.OrderEvent{
		ID:         uuid.New(),
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   order.Status,
		ActorRole:  actor.Role,
		ActorID:    actor.IDPtr(),
		Note:       note,
		CreatedAt:  order.UpdatedAt,
	}
	if err := s.orderRepo.AppendEvent(ctx, tx, event); err != nil {
		return apperror.InternalError(fmt.Errorf("append order event: %w", err))
	}

	data := map[string]string{
		"order_id": order.ID.String(),
		"status":   string(order.Status),
	}
	recipients := []uuid.UUID{order.CustomerID, order.BusinessID}
	if order.DriverID != nil {
		recipients = append(recipients, *order.DriverID)
	}
	for _, r := range recipients {
		if r == actor.ID {
			continue
		}
		if err := notify(ctx, tx, s.outboxRepo, r, domain.NotifyOrderStatusChanged, data); err != nil {
			return apperror.InternalError(err)
		}
	}
	return nil
}

func (s *OrderServiceImpl) lockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	return order, nil
}

func isBusinessOwner(a domain.Actor, o *domain.Order) bool {
	return a.IsPrivileged() || (a.Role == domain.RoleBusiness && a.ID == o.BusinessID)
}

func isAssignedDriver(a domain.Actor, o *domain.Order) bool {
	return a.IsPrivileged() || (a.Role == domain.RoleDriver && o.HasDriver(a.ID))
}

func canView(a domain.Actor, o *domain.Order) bool {
	switch a.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return true
	case domain.RoleCustomer:
		return a.ID == o.CustomerID
	case domain.RoleBusiness:
		return a.ID == o.BusinessID
	case domain.RoleDriver:
		return o.HasDriver(a.ID)
	}
	return false
}
