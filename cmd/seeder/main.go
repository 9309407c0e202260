package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/punchamoorthee/decoledger/internal/config"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/service"
	"github.com/punchamoorthee/decoledger/internal/store"
)

func main() {
	path := flag.String("genesis", "genesis.toml", "TOML file describing the ledgers to deploy")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DBDriver == config.DriverMemory {
		log.Fatal("seeding the memory driver has no lasting effect; set DB_DRIVER")
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("Unable to read genesis: %v", err)
	}
	g, err := ParseGenesis(raw)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to open store: %v", err)
	}
	defer st.Close()

	log.Println("--- Seeding Ledgers ---")

	rt := service.NewRuntime(st, logger)
	s := &Seeder{
		Requests: service.NewRequestLedger(rt, nil),
		Tokens:   service.NewTokenLedger(rt),
		Store:    st,
		Log:      logger,
	}
	if err := s.Apply(ctx, g); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Seeding complete.")
}
