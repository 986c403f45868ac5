package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/rs/zerolog"
)

// outboxRetryIntervals is the backoff between delivery attempts. Attempts
// past the end reuse the last interval.
var outboxRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return outboxRetryIntervals[0]
	}
	if attempt > len(outboxRetryIntervals) {
		return outboxRetryIntervals[len(outboxRetryIntervals)-1]
	}
	return outboxRetryIntervals[attempt-1]
}

// permanentError marks a delivery that will never succeed on retry.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// OutboxDispatcherImpl implements ports.OutboxDispatcher. It is the only
// place that talks to the push provider and the payment processor.
type OutboxDispatcherImpl struct {
	outboxRepo  ports.OutboxRepository
	payoutRepo  ports.PayoutRepository
	driverRepo  ports.DriverRepository
	ledger      ports.LedgerService
	encryption  ports.EncryptionService
	pushTokens  ports.PushTokenStore
	sink        ports.NotificationSink
	processor   ports.PaymentProcessor
	transactor  ports.DBTransactor
	batchSize   int
	maxAttempts int
	log         zerolog.Logger
}

// NewOutboxDispatcher creates a new OutboxDispatcherImpl.
func NewOutboxDispatcher(
	outboxRepo ports.OutboxRepository,
	payoutRepo ports.PayoutRepository,
	driverRepo ports.DriverRepository,
	ledger ports.LedgerService,
	encryption ports.EncryptionService,
	pushTokens ports.PushTokenStore,
	sink ports.NotificationSink,
	processor ports.PaymentProcessor,
	transactor ports.DBTransactor,
	batchSize, maxAttempts int,
	log zerolog.Logger,
) *OutboxDispatcherImpl {
	if batchSize < 1 {
		batchSize = 100
	}
	if maxAttempts < 1 {
		maxAttempts = len(outboxRetryIntervals) + 1
	}
	return &OutboxDispatcherImpl{
		outboxRepo:  outboxRepo,
		payoutRepo:  payoutRepo,
		driverRepo:  driverRepo,
		ledger:      ledger,
		encryption:  encryption,
		pushTokens:  pushTokens,
		sink:        sink,
		processor:   processor,
		transactor:  transactor,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Dispatch delivers one batch of due messages.
func (d *OutboxDispatcherImpl) Dispatch(ctx context.Context, now time.Time) (*ports.CycleResult, error) {
	due, err := d.outboxRepo.ListDue(ctx, now, d.batchSize)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list due outbox messages: %w", err))
	}

	result := &ports.CycleResult{}
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		msg := &due[i]
		err := d.deliver(ctx, msg)
		if err == nil {
			msg.Status = domain.OutboxStatusDelivered
			msg.LastError = nil
			result.Processed++
		} else {
			d.recordFailure(ctx, msg, err, now)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", msg.Kind, msg.ID, err))
		}
		msg.UpdatedAt = now
		if err := d.outboxRepo.UpdateDelivery(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("outbox_id", msg.ID.String()).Msg("failed to update outbox message")
		}
	}
	return result, nil
}

func (d *OutboxDispatcherImpl) recordFailure(ctx context.Context, msg *domain.OutboxMessage, cause error, now time.Time) {
	msg.Attempts++
	errText := cause.Error()
	msg.LastError = &errText

	var perm permanentError
	isPermanent := errors.As(cause, &perm)
	if isPermanent || msg.Attempts >= d.maxAttempts {
		msg.Status = domain.OutboxStatusFailed
		d.log.Error().
			Err(cause).
			Str("outbox_id", msg.ID.String()).
			Str("kind", string(msg.Kind)).
			Int("attempts", msg.Attempts).
			Msg("outbox: giving up on message")
		d.abandon(ctx, msg, errText, isPermanent)
		return
	}

	msg.NextAttemptAt = now.Add(retryDelay(msg.Attempts))
	d.log.Warn().
		Err(cause).
		Str("outbox_id", msg.ID.String()).
		Str("kind", string(msg.Kind)).
		Int("attempt", msg.Attempts).
		Time("next_attempt_at", msg.NextAttemptAt).
		Msg("outbox: delivery failed, retrying")
}

// abandon compensates for side effects that will never happen. A payout
// whose transfer may have reached the processor is left PROCESSING: only a
// payout.* event or an operator can tell whether the money moved.
func (d *OutboxDispatcherImpl) abandon(ctx context.Context, msg *domain.OutboxMessage, reason string, isPermanent bool) {
	if msg.Kind != domain.OutboxKindPayoutTransfer {
		return
	}
	var req domain.PayoutTransferRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}

	dbTx, err := d.transactor.Begin(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("outbox: begin tx to fail payout")
		return
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payout, err := d.payoutRepo.GetByIDForUpdate(ctx, dbTx, req.PayoutID)
	if err != nil || payout == nil {
		return
	}
	if payout.Status == domain.PayoutStatusProcessing && !isPermanent {
		note := "transfer outcome unknown: " + reason
		payout.FailureReason = &note
		payout.UpdatedAt = time.Now().UTC()
		if err := d.payoutRepo.Update(ctx, dbTx, payout); err != nil {
			d.log.Error().Err(err).Str("payout_id", payout.ID.String()).Msg("outbox: failed to flag payout")
			return
		}
		if err := dbTx.Commit(ctx); err != nil {
			d.log.Error().Err(err).Str("payout_id", payout.ID.String()).Msg("outbox: commit payout flag")
			return
		}
		d.log.Error().
			Str("payout_id", payout.ID.String()).
			Str("driver_id", payout.DriverID.String()).
			Int64("amount", payout.Amount).
			Msg("outbox: payout outcome unknown, needs manual reconciliation")
		return
	}
	if err := failPayout(ctx, dbTx, d.payoutRepo, d.ledger, payout, reason); err != nil {
		d.log.Error().Err(err).Str("payout_id", payout.ID.String()).Msg("outbox: failed to reverse payout")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		d.log.Error().Err(err).Str("payout_id", payout.ID.String()).Msg("outbox: commit payout failure")
	}
}

func (d *OutboxDispatcherImpl) deliver(ctx context.Context, msg *domain.OutboxMessage) error {
	switch msg.Kind {
	case domain.OutboxKindNotification:
		var n domain.Notification
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			return permanent(fmt.Errorf("decode notification: %w", err))
		}
		return d.sendNotification(ctx, n)
	case domain.OutboxKindPayoutTransfer:
		var req domain.PayoutTransferRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return permanent(fmt.Errorf("decode payout transfer: %w", err))
		}
		return d.transferPayout(ctx, req)
	case domain.OutboxKindRefundRequest:
		var req domain.RefundRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return permanent(fmt.Errorf("decode refund request: %w", err))
		}
		refundID, err := d.processor.CreateRefund(ctx, req)
		if err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
		d.log.Info().Str("order_id", req.OrderID.String()).Str("refund_id", refundID).Msg("refund requested")
		return nil
	}
	return permanent(fmt.Errorf("unknown outbox kind %q", msg.Kind))
}

func (d *OutboxDispatcherImpl) sendNotification(ctx context.Context, n domain.Notification) error {
	token, err := d.pushTokens.Lookup(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("lookup push token: %w", err)
	}
	if token == "" {
		d.log.Debug().Str("recipient_id", n.RecipientID.String()).Str("template", n.Template).Msg("no device registered, notification dropped")
		return nil
	}
	if err := d.sink.Send(ctx, token, n); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// transferPayout debits the driver's wallet once, then asks the processor
// to move the money. The payout id is the idempotency key so a retry after
// a lost response does not pay twice.
func (d *OutboxDispatcherImpl) transferPayout(ctx context.Context, req domain.PayoutTransferRequest) error {
	payout, err := d.startPayout(ctx, req)
	if err != nil || payout == nil {
		return err
	}

	driver, err := d.driverRepo.GetByID(ctx, payout.DriverID)
	if err != nil {
		return fmt.Errorf("get driver: %w", err)
	}
	if driver == nil || !driver.HasPayoutAccount() {
		return permanent(errors.New("driver has no payout account"))
	}
	destination, err := d.encryption.Decrypt(*driver.PayoutAccountEnc)
	if err != nil {
		return permanent(fmt.Errorf("decrypt payout account: %w", err))
	}

	transferID, err := d.processor.CreateTransfer(ctx, ports.TransferRequest{
		IdempotencyKey: payout.ID.String(),
		Destination:    destination,
		Amount:         payout.Amount,
		PayoutID:       payout.ID,
	})
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}

	dbTx, err := d.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := d.payoutRepo.GetByIDForUpdate(ctx, dbTx, payout.ID)
	if err != nil {
		return fmt.Errorf("lock payout: %w", err)
	}
	// A payout.* event may already have settled it.
	if locked == nil || locked.Status != domain.PayoutStatusProcessing {
		return nil
	}
	locked.ExternalTransferID = &transferID
	locked.UpdatedAt = time.Now().UTC()
	if err := d.payoutRepo.Update(ctx, dbTx, locked); err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	d.log.Info().
		Str("payout_id", payout.ID.String()).
		Str("transfer_id", transferID).
		Int64("amount", payout.Amount).
		Msg("payout transfer created")
	return nil
}

// startPayout moves a PENDING payout to PROCESSING and posts the
// withdrawal. It returns nil when there is nothing left to send.
func (d *OutboxDispatcherImpl) startPayout(ctx context.Context, req domain.PayoutTransferRequest) (*domain.Payout, error) {
	dbTx, err := d.transactor.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payout, err := d.payoutRepo.GetByIDForUpdate(ctx, dbTx, req.PayoutID)
	if err != nil {
		return nil, fmt.Errorf("lock payout: %w", err)
	}
	if payout == nil {
		return nil, permanent(fmt.Errorf("payout %s not found", req.PayoutID))
	}

	switch payout.Status {
	case domain.PayoutStatusProcessing:
		return payout, nil
	case domain.PayoutStatusPending:
	default:
		return nil, nil
	}

	if _, err := d.ledger.PostInTx(ctx, dbTx, ports.PostRequest{
		WalletID:    payout.WalletID,
		Bucket:      domain.BucketAvailable,
		Type:        domain.TransactionTypeWithdrawal,
		Amount:      -payout.Amount,
		Description: "weekly card earnings payout",
	}); err != nil {
		if apperror.HasCode(err, apperror.CodeInsufficientFunds) {
			return nil, permanent(err)
		}
		return nil, err
	}

	payout.Status = domain.PayoutStatusProcessing
	payout.UpdatedAt = time.Now().UTC()
	if err := d.payoutRepo.Update(ctx, dbTx, payout); err != nil {
		return nil, fmt.Errorf("update payout: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return payout, nil
}
