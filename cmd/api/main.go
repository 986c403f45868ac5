package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delivery-settlement/config"
	"delivery-settlement/internal/app"
	httpHandler "delivery-settlement/internal/adapter/http/handler"
	"delivery-settlement/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("DSE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty, "api")

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting delivery settlement API")

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		OrderSvc:       a.Orders,
		AssignSvc:      a.Assignment,
		SettlementSvc:  a.Settlements,
		ReportingSvc:   a.Reporting,
		LedgerSvc:      a.Ledger,
		EventSvc:       a.Events,
		PushTokens:     a.PushTokens,
		TokenSvc:       a.TokenSvc,
		SigSvc:         a.SigSvc,
		WebhookSecret:  cfg.Processor.WebhookSecret,
		RateLimitStore: a.RateLimits,
		HealthCheckers: a.HealthCheckers(),
		AuditSvc:       a.Audit,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
