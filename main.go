package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "go.uber.org/automaxprocs"

	"github.com/dzeckelev/gift-ledger/api"
	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/db"
	"github.com/dzeckelev/gift-ledger/eth"
	"github.com/dzeckelev/gift-ledger/ipfs"
	"github.com/dzeckelev/gift-ledger/metrics"
	"github.com/dzeckelev/gift-ledger/proc"
	"github.com/dzeckelev/gift-ledger/view"
)

func main() {
	fConfig := flag.String("config", "config.json", "Configuration file path.")
	fEnv := flag.String("env", "", "Environment file path.")

	flag.Parse()

	var dotenv []string
	if *fEnv != "" {
		dotenv = append(dotenv, *fEnv)
	}

	cfg, err := config.Load(*fConfig, dotenv...)
	if err != nil {
		log.Crit("Failed to load configuration", "err", err)
	}

	if err := config.SetupLog(cfg.Log); err != nil {
		log.Crit("Failed to set up logging", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer cancel()

	ethClient, err := eth.Dial(ctx, cfg.Eth.NodeURL)
	if err != nil {
		log.Crit("Failed to connect to node", "url", cfg.Eth.NodeURL,
			"err", err)
	}
	defer ethClient.Close()

	syncPause := time.Duration(cfg.Eth.SyncPause) * time.Millisecond
	if err := eth.WaitSync(ctx, ethClient, syncPause); err != nil {
		log.Crit("Failed to wait for node sync", "err", err)
	}

	chainID := big.NewInt(cfg.Eth.ChainID)
	if cfg.Eth.ChainID == 0 {
		if chainID, err = ethClient.ChainID(ctx); err != nil {
			log.Crit("Failed to read chain id", "err", err)
		}
	}

	var opts *bind.TransactOpts
	if cfg.Eth.PrivateKey != "" {
		if opts, err = eth.NewTransactor(cfg.Eth.PrivateKey,
			chainID); err != nil {
			log.Crit("Failed to create transactor", "err", err)
		}
	}

	ledger, err := eth.NewClient(ethClient, cfg.Eth, opts)
	if err != nil {
		log.Crit("Failed to create ledger client", "err", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr := metrics.New(registry)

	resolver := ipfs.NewResolver(cfg.IPFS, mtr)
	scanner := proc.NewScanner(ledger, cfg.Proc, mtr)
	aggregator := view.NewAggregator(ledger, scanner, resolver)
	orchestrator := proc.NewOrchestrator(ledger, resolver, mtr)

	var journal api.Journal
	if cfg.DB.Enabled {
		conn, err := db.Connect(db.ConnectArgs(cfg.DB))
		if err != nil {
			log.Crit("Failed to connect to database", "err", err)
		}

		database := db.NewDB(conn)
		defer func() {
			if err := db.CloseDB(database); err != nil {
				log.Warn("Failed to close database", "err", err)
			}
		}()

		j := db.NewJournal(database)
		if err := j.Migrate(); err != nil {
			log.Crit("Failed to migrate database", "err", err)
		}

		orchestrator.SetJournal(j)
		journal = j
	}

	srv := api.NewServer(cfg.API, registry)
	if err := srv.AddHandler(api.NewHandler(ledger, aggregator,
		orchestrator, journal)); err != nil {
		log.Crit("Failed to register API handler", "err", err)
	}
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("API server started", "addr", cfg.API.Addr,
		"chainID", chainID, "account", ledger.Account(),
		"journal", cfg.DB.Enabled)

	select {
	case err := <-errCh:
		log.Error("API server stopped", "err", err)
	case <-ctx.Done():
		log.Info("Shutting down")
	}
}
