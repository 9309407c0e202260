package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/decoledger/internal/api"
	"github.com/punchamoorthee/decoledger/internal/config"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/payout"
	"github.com/punchamoorthee/decoledger/internal/service"
	"github.com/punchamoorthee/decoledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to open store: %v", err)
	}
	defer st.Close()

	// Initialize Layers
	rt := service.NewRuntime(st, logger)
	requests := service.NewOutboxRequestLedger(rt, payout.NewOutbox())
	tokens := service.NewTokenLedger(rt)
	handler := api.NewHandler(requests, tokens, st, []byte(cfg.JWTSecret), logger)

	if cfg.PayoutWebhookURL != "" {
		d := payout.NewDispatcher(st, requests, nil, cfg.PayoutWebhookURL, cfg.PayoutPollInterval, logger.With("component", "payout"))
		go d.Run(ctx)
	} else {
		logger.Warn(ctx, "PAYOUT_WEBHOOK_URL not set; payouts stay pending in the outbox")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "shutdown failed", "error", err)
		}
	}()

	logger.Info(ctx, "server starting", "port", cfg.Port, "driver", cfg.DBDriver, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "server stopped")
}
