package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// PaymentEventServiceImpl implements ports.PaymentEventService. Redis is a
// fast path only; the processed event table inside the effect's
// transaction is what guarantees exactly-once.
type PaymentEventServiceImpl struct {
	processedRepo ports.ProcessedEventRepository
	cache         ports.EventCache
	orders        ports.OrderPaymentHandler
	driverRepo    ports.DriverRepository
	payoutRepo    ports.PayoutRepository
	ledger        ports.LedgerService
	encryption    ports.EncryptionService
	transactor    ports.DBTransactor
	cacheTTL      time.Duration
	log           zerolog.Logger
}

// NewPaymentEventService creates a new PaymentEventServiceImpl.
func NewPaymentEventService(
	processedRepo ports.ProcessedEventRepository,
	cache ports.EventCache,
	orders ports.OrderPaymentHandler,
	driverRepo ports.DriverRepository,
	payoutRepo ports.PayoutRepository,
	ledger ports.LedgerService,
	encryption ports.EncryptionService,
	transactor ports.DBTransactor,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *PaymentEventServiceImpl {
	return &PaymentEventServiceImpl{
		processedRepo: processedRepo,
		cache:         cache,
		orders:        orders,
		driverRepo:    driverRepo,
		payoutRepo:    payoutRepo,
		ledger:        ledger,
		encryption:    encryption,
		transactor:    transactor,
		cacheTTL:      cacheTTL,
		log:           log,
	}
}

// Apply runs the effect of one processor event at most once.
func (s *PaymentEventServiceImpl) Apply(ctx context.Context, event domain.PaymentEvent) (domain.EventOutcome, error) {
	if event.ID == "" || event.Type == "" {
		return domain.EventOutcomeFailed, apperror.Validation("event id and type are required")
	}
	log := s.log.With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()

	if s.cache != nil {
		seen, err := s.cache.Seen(ctx, event.ID)
		if err != nil {
			log.Warn().Err(err).Msg("event cache unavailable, falling back to database")
		} else if seen {
			log.Debug().Msg("duplicate event dropped by cache")
			return domain.EventOutcomeDuplicate, nil
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return domain.EventOutcomeFailed, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	fresh, err := s.processedRepo.Record(ctx, dbTx, &domain.ProcessedEvent{
		EventID:     event.ID,
		EventType:   event.Type,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.EventOutcomeFailed, apperror.InternalError(fmt.Errorf("record processed event: %w", err))
	}
	if !fresh {
		log.Info().Msg("duplicate event dropped")
		s.markSeen(ctx, event.ID, log)
		return domain.EventOutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, dbTx, event, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to apply payment event")
		return domain.EventOutcomeFailed, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return domain.EventOutcomeFailed, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	s.markSeen(ctx, event.ID, log)

	log.Info().Str("outcome", string(outcome)).Msg("payment event processed")
	return outcome, nil
}

// ApplyBatch applies events in order. One failing event does not stop the
// rest.
func (s *PaymentEventServiceImpl) ApplyBatch(ctx context.Context, events []domain.PaymentEvent) []ports.EventResult {
	results := make([]ports.EventResult, 0, len(events))
	for _, ev := range events {
		outcome, err := s.Apply(ctx, ev)
		r := ports.EventResult{EventID: ev.ID, Outcome: outcome}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

func (s *PaymentEventServiceImpl) dispatch(ctx context.Context, tx pgx.Tx, event domain.PaymentEvent, log zerolog.Logger) (domain.EventOutcome, error) {
	switch event.Type {
	case domain.EventPaymentSucceeded:
		var data domain.PaymentIntentData
		if err := decodeEventData(event, &data); err != nil {
			return "", err
		}
		return domain.EventOutcomeApplied, s.orders.ApplyPaymentCaptured(ctx, tx, data)

	case domain.EventPaymentFailed:
		var data domain.PaymentIntentData
		if err := decodeEventData(event, &data); err != nil {
			return "", err
		}
		return domain.EventOutcomeApplied, s.orders.ApplyPaymentFailed(ctx, tx, data)

	case domain.EventChargeRefunded:
		var data domain.ChargeRefundedData
		if err := decodeEventData(event, &data); err != nil {
			return "", err
		}
		return domain.EventOutcomeApplied, s.orders.ApplyRefund(ctx, tx, data)

	case domain.EventAccountUpdated:
		var data domain.AccountUpdatedData
		if err := decodeEventData(event, &data); err != nil {
			return "", err
		}
		return domain.EventOutcomeApplied, s.applyAccountUpdated(ctx, tx, data)

	case domain.EventPayoutPaid, domain.EventPayoutFailed:
		var data domain.PayoutEventData
		if err := decodeEventData(event, &data); err != nil {
			return "", err
		}
		return s.applyPayout(ctx, tx, event.Type, data, log)
	}

	// Recorded anyway so redeliveries stop at the dedupe insert.
	log.Warn().Msg("unhandled payment event type")
	return domain.EventOutcomeIgnored, nil
}

func (s *PaymentEventServiceImpl) applyAccountUpdated(ctx context.Context, tx pgx.Tx, data domain.AccountUpdatedData) error {
	driver, err := s.driverRepo.GetByIDForUpdate(ctx, tx, data.DriverID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock driver: %w", err))
	}
	if driver == nil {
		return apperror.ErrNotFound("driver")
	}

	driver.PayoutAccountEnc = nil
	if data.PayoutsEnabled && data.AccountID != "" {
		enc, err := s.encryption.Encrypt(data.AccountID)
		if err != nil {
			return apperror.ErrEncryptionFailure(err)
		}
		driver.PayoutAccountEnc = &enc
	}
	driver.UpdatedAt = time.Now().UTC()
	if err := s.driverRepo.UpdateState(ctx, tx, driver); err != nil {
		return apperror.InternalError(fmt.Errorf("update driver payout account: %w", err))
	}

	s.log.Info().
		Str("driver_id", driver.ID.String()).
		Bool("payouts_enabled", driver.HasPayoutAccount()).
		Msg("driver payout account updated")
	return nil
}

func (s *PaymentEventServiceImpl) applyPayout(ctx context.Context, tx pgx.Tx, typ domain.PaymentEventType, data domain.PayoutEventData, log zerolog.Logger) (domain.EventOutcome, error) {
	payout, err := s.payoutRepo.GetByIDForUpdate(ctx, tx, data.PayoutID)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("lock payout: %w", err))
	}
	if payout == nil {
		log.Warn().Str("payout_id", data.PayoutID.String()).Msg("payout event for unknown payout")
		return domain.EventOutcomeIgnored, nil
	}
	if payout.Status.IsTerminal() {
		return domain.EventOutcomeIgnored, nil
	}

	if typ == domain.EventPayoutFailed {
		if err := failPayout(ctx, tx, s.payoutRepo, s.ledger, payout, data.FailureReason); err != nil {
			return "", err
		}
		return domain.EventOutcomeApplied, nil
	}

	payout.Status = domain.PayoutStatusPaid
	if data.TransferID != "" {
		transferID := data.TransferID
		payout.ExternalTransferID = &transferID
	}
	payout.UpdatedAt = time.Now().UTC()
	if err := s.payoutRepo.Update(ctx, tx, payout); err != nil {
		return "", apperror.InternalError(fmt.Errorf("update payout: %w", err))
	}
	return domain.EventOutcomeApplied, nil
}

func (s *PaymentEventServiceImpl) markSeen(ctx context.Context, eventID string, log zerolog.Logger) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkSeen(ctx, eventID, s.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("failed to cache processed event")
	}
}

func decodeEventData(event domain.PaymentEvent, dst any) error {
	if len(event.Data) == 0 {
		return apperror.Validation(fmt.Sprintf("%s event has no data", event.Type))
	}
	if err := json.Unmarshal(event.Data, dst); err != nil {
		return apperror.Validation(fmt.Sprintf("malformed %s data", event.Type))
	}
	return nil
}
