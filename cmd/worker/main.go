package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"delivery-settlement/config"
	"delivery-settlement/internal/app"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/logger"

	"github.com/rs/zerolog"
)

// job is one periodic task. Only one worker in the cluster runs a given
// job at a time.
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context, now time.Time) (any, error)
}

func main() {
	cfg, err := config.Load(os.Getenv("DSE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty, "worker")
	log.Info().Str("storage", cfg.Storage.Driver).Msg("Starting delivery settlement worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	jobs := []job{
		{
			name:     "settlement.close_week",
			interval: cfg.Settlement.CloseInterval,
			run: func(ctx context.Context, now time.Time) (any, error) {
				return a.Settlements.CloseWeek(ctx, now)
			},
		},
		{
			name:     "settlement.block_overdue",
			interval: cfg.Settlement.BlockInterval,
			run: func(ctx context.Context, now time.Time) (any, error) {
				return a.Settlements.BlockOverdue(ctx, now)
			},
		},
		{
			name:     "ledger.reconcile",
			interval: cfg.Reconcile.Interval,
			run: func(ctx context.Context, _ time.Time) (any, error) {
				return a.Ledger.ReconcileAll(ctx)
			},
		},
		{
			name:     "outbox.dispatch",
			interval: cfg.Outbox.PollInterval,
			run: func(ctx context.Context, now time.Time) (any, error) {
				return a.Dispatcher.Dispatch(ctx, now)
			},
		},
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			schedule(ctx, j, a.JobLock, log)
		}(j)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down worker...")
	wg.Wait()
	log.Info().Msg("Worker exited")
}

// schedule runs j on every tick until ctx is cancelled.
func schedule(ctx context.Context, j job, lock ports.JobLock, log zerolog.Logger) {
	if j.interval <= 0 {
		log.Warn().Str("job", j.name).Msg("job disabled, interval not set")
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			runOnce(ctx, j, lock, now, log)
		}
	}
}

func runOnce(ctx context.Context, j job, lock ports.JobLock, now time.Time, log zerolog.Logger) {
	// The lock outlives a crashed holder by at most one interval.
	acquired, err := lock.Acquire(ctx, j.name, j.interval)
	if err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("job lock unavailable")
		return
	}
	if !acquired {
		log.Debug().Str("job", j.name).Msg("job held by another worker")
		return
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx), j.name); err != nil {
			log.Warn().Err(err).Str("job", j.name).Msg("job lock release failed")
		}
	}()

	start := time.Now()
	result, err := j.run(ctx, now.UTC())
	if err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("job failed")
		return
	}
	log.Info().
		Str("job", j.name).
		Dur("took", time.Since(start)).
		Interface("result", result).
		Msg("job finished")
}
