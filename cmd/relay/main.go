// Command relay follows a service ledger's event stream through the api host
// and forwards every document generation request to the oracle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/punchamoorthee/decoledger/internal/config"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/listener"
	"github.com/punchamoorthee/decoledger/internal/logging"
)

func main() {
	after := flag.Uint64("after", 0, "skip events up to and including this sequence number")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateRelay(); err != nil {
		log.Fatal(err)
	}
	ledger, err := domain.ParseAccountID(cfg.RelayLedger)
	if err != nil {
		log.Fatalf("RELAY_LEDGER: %v", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := listener.NewFollower(
		listener.NewHTTPSource(cfg.APIBaseURL, nil),
		ledger,
		listener.NewOracleForwarder(cfg.OracleURL, nil),
		cfg.RelayPollInterval,
		logger.With("component", "relay"),
	)
	f.StartAfter(*after)

	logger.Info(ctx, "relay starting", "ledger", ledger, "api", cfg.APIBaseURL, "oracle", cfg.OracleURL, "after", *after)
	if err := f.Run(ctx); err != nil {
		logger.Error(ctx, "relay stopped", "error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "relay stopped", "cursor", f.Cursor())
}
