// Package app wires configuration, storage and services into the
// components shared by the API server and the background worker.
package app

import (
	"context"
	"fmt"
	"net/http"

	"delivery-settlement/config"
	"delivery-settlement/internal/adapter/notify"
	"delivery-settlement/internal/adapter/processor"
	"delivery-settlement/internal/adapter/storage/memory"
	pgStorage "delivery-settlement/internal/adapter/storage/postgres"
	redisStorage "delivery-settlement/internal/adapter/storage/redis"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/internal/service"
	"delivery-settlement/pkg/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Repositories is one storage backend's set of repositories.
type Repositories struct {
	Wallets      ports.WalletRepository
	Transactions ports.TransactionRepository
	Orders       ports.OrderRepository
	Drivers      ports.DriverRepository
	Businesses   ports.BusinessRepository
	Settlements  ports.SettlementRepository
	Payouts      ports.PayoutRepository
	Processed    ports.ProcessedEventRepository
	Outbox       ports.OutboxRepository
	Audit        ports.AuditRepository
	Transactor   ports.DBTransactor
	Health       ports.HealthChecker
}

// App holds every wired service.
type App struct {
	Config *config.Config
	Repos  Repositories
	Redis  *goredis.Client

	TokenSvc    *service.JWTTokenService
	SigSvc      *service.HMACSignatureService
	Ledger      *service.LedgerServiceImpl
	Assignment  *service.AssignmentServiceImpl
	Orders      *service.OrderServiceImpl
	Settlements *service.SettlementServiceImpl
	Events      *service.PaymentEventServiceImpl
	Reporting   ports.ReportingService
	Audit       *service.AuditServiceImpl
	Dispatcher  *service.OutboxDispatcherImpl
	EventCache  *redisStorage.EventCache
	PushTokens  *redisStorage.PushTokenStore
	JobLock     *redisStorage.JobLock
	RateLimits  *redisStorage.RateLimitStore
	RedisHealth *redisStorage.HealthCheck
	closers     []func()
}

// New connects to the configured backends and builds every service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	policy, err := cfg.Commission.Policy()
	if err != nil {
		return nil, err
	}
	platformID, err := uuid.Parse(cfg.Platform.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("platform.owner_id: %w", err)
	}

	if err := a.openStorage(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.EventCache = redisStorage.NewEventCache(rdb)
	a.PushTokens = redisStorage.NewPushTokenStore(rdb)
	a.JobLock = redisStorage.NewJobLock(rdb)
	a.RateLimits = redisStorage.NewRateLimitStore(rdb)
	a.RedisHealth = redisStorage.NewHealthCheck(rdb)

	enc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("encryption service: %w", err)
	}
	a.SigSvc = service.NewHMACSignatureService()
	a.TokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	r := a.Repos
	a.Ledger = service.NewLedgerService(r.Wallets, r.Transactions, r.Transactor, logger.Component(log, "ledger"))
	distributor := service.NewDistributionService(r.Orders, a.Ledger, r.Transactor, policy, platformID, logger.Component(log, "distribution"))
	a.Assignment = service.NewAssignmentService(r.Drivers, logger.Component(log, "assignment"))
	a.Orders = service.NewOrderService(r.Orders, r.Drivers, r.Businesses, r.Outbox, a.Ledger,
		distributor, a.Assignment, r.Transactor, platformID, cfg.Assignment.MaxAttempts, logger.Component(log, "orders"))
	a.Audit = service.NewAuditService(r.Audit, logger.Component(log, "audit"))
	a.Settlements = service.NewSettlementService(r.Settlements, r.Wallets, r.Drivers, r.Orders, r.Payouts,
		r.Outbox, a.Ledger, a.Audit, r.Transactor, cfg.Settlement.Deadline, logger.Component(log, "settlement"))
	a.Events = service.NewPaymentEventService(r.Processed, a.EventCache, a.Orders, r.Drivers, r.Payouts,
		a.Ledger, enc, r.Transactor, cfg.Idempotency.CacheTTL, logger.Component(log, "payment_events"))
	a.Reporting = service.NewReportingService(r.Transactions, r.Wallets)

	sink, err := notificationSink(ctx, cfg.Firebase, logger.Component(log, "notify"))
	if err != nil {
		a.Close()
		return nil, err
	}
	proc := processor.NewClient(cfg.Processor.BaseURL, cfg.Processor.APIKey, a.SigSvc,
		&http.Client{Timeout: cfg.Processor.Timeout}, logger.Component(log, "processor"))
	a.Dispatcher = service.NewOutboxDispatcher(r.Outbox, r.Payouts, r.Drivers, a.Ledger, enc,
		a.PushTokens, sink, proc, r.Transactor, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts, logger.Component(log, "outbox"))

	return a, nil
}

// HealthCheckers lists the dependencies reported by /health.
func (a *App) HealthCheckers() []ports.HealthChecker {
	return []ports.HealthChecker{a.Repos.Health, a.RedisHealth}
}

// Close waits for pending audit writes and releases connections.
func (a *App) Close() {
	if a.Audit != nil {
		a.Audit.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Storage.Driver {
	case "memory":
		s := memory.NewStore()
		a.Repos = Repositories{
			Wallets:      memory.NewWalletRepo(s),
			Transactions: memory.NewLedgerRepo(s),
			Orders:       memory.NewOrderRepo(s),
			Drivers:      memory.NewDriverRepo(s),
			Businesses:   memory.NewBusinessRepo(s),
			Settlements:  memory.NewSettlementRepo(s),
			Payouts:      memory.NewPayoutRepo(s),
			Processed:    memory.NewProcessedEventRepo(s),
			Outbox:       memory.NewOutboxRepo(s),
			Audit:        memory.NewAuditRepo(s),
			Transactor:   s,
			Health:       s,
		}
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		return nil

	case "postgres", "":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if cfg.Database.AutoMigrate {
			if err := pgStorage.Migrate(ctx, pool, log); err != nil {
				return err
			}
		}
		a.Repos = Repositories{
			Wallets:      pgStorage.NewWalletRepo(pool),
			Transactions: pgStorage.NewLedgerRepo(pool),
			Orders:       pgStorage.NewOrderRepo(pool),
			Drivers:      pgStorage.NewDriverRepo(pool),
			Businesses:   pgStorage.NewBusinessRepo(pool),
			Settlements:  pgStorage.NewSettlementRepo(pool),
			Payouts:      pgStorage.NewPayoutRepo(pool),
			Processed:    pgStorage.NewProcessedEventRepo(pool),
			Outbox:       pgStorage.NewOutboxRepo(pool),
			Audit:        pgStorage.NewAuditRepo(pool),
			Transactor:   pgStorage.NewTransactor(pool),
			Health:       pgStorage.NewHealthCheck(pool),
		}
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// notificationSink uses Firebase when credentials are configured and
// otherwise logs notifications.
func notificationSink(ctx context.Context, cfg config.FirebaseConfig, log zerolog.Logger) (ports.NotificationSink, error) {
	if cfg.CredentialsFile == "" {
		log.Warn().Msg("firebase credentials not set, notifications are only logged")
		return notify.NewLogSink(log), nil
	}
	sink, err := notify.NewFCMSink(ctx, cfg.CredentialsFile, log)
	if err != nil {
		return nil, fmt.Errorf("firebase sink: %w", err)
	}
	return sink, nil
}
