package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kpapadakis/ledgerdesk/internal/agent"
	"github.com/kpapadakis/ledgerdesk/internal/bus"
	"github.com/kpapadakis/ledgerdesk/internal/config"
	"github.com/kpapadakis/ledgerdesk/internal/ledger"
	"github.com/kpapadakis/ledgerdesk/internal/nlp"
	"github.com/kpapadakis/ledgerdesk/internal/pending"
	"github.com/kpapadakis/ledgerdesk/internal/router"
	"github.com/kpapadakis/ledgerdesk/internal/store"
	"github.com/kpapadakis/ledgerdesk/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("ledgerdesk %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "vault":
		if err := runVault(os.Args[2:]); err != nil {
			slog.Error("vault command failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ledgerdesk <command>

Commands:
  gateway    Start the ledgerdesk gateway service
  backup     Archive the data directory to a tar.zst file
  vault      Seal or inspect the model API key
  version    Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting ledgerdesk gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	if err := seedAccounts(db); err != nil {
		return fmt.Errorf("seed chart of accounts: %w", err)
	}

	// Embedded NATS
	natsSrv, err := bus.NewServer(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer natsSrv.Close()
	slog.Info("nats started", "port", natsSrv.Port())

	msgBus, err := bus.New(db, natsSrv, cfg.Bus)
	if err != nil {
		return fmt.Errorf("init message bus: %w", err)
	}
	defer msgBus.Close()

	// Pending operations
	pendingStore := pending.NewStore(cfg.Pending.TTL)
	go pending.NewSweeper(pendingStore, cfg.Pending).Start(ctx)

	// NLP pipeline
	apiKey, err := resolveAPIKey(cfg)
	if err != nil {
		return fmt.Errorf("resolve model api key: %w", err)
	}
	pipeline, err := nlp.Build(cfg.NLP, apiKey)
	if err != nil {
		return fmt.Errorf("build nlp pipeline: %w", err)
	}
	slog.Info("nlp pipeline ready", "strategy", cfg.NLP.Strategy)

	// Ledger engine
	engine := ledger.New(db, cfg.Ledger.SuspenseAccountCode)

	deps := &agent.Deps{
		Store:              db,
		Ledger:             engine,
		Bus:                msgBus,
		Pending:            pendingStore,
		NLP:                pipeline,
		DefaultExpenseCode: cfg.Ledger.DefaultExpenseCode,
	}

	generalLedger := agent.NewGeneralLedger(deps)

	// Registration order is the claim order.
	rtr := router.New(db, pendingStore, pipeline.Classifier)
	rtr.Register(agent.NewPayable(deps))
	rtr.Register(agent.NewReceivable(deps))
	rtr.Register(agent.NewStatement(deps))
	rtr.Register(generalLedger)
	rtr.RegisterFallback(agent.NewChat())

	// Serve bus inboxes between conversational turns too, so a sender
	// blocking on a reply does not wait for the recipient's next turn.
	agent.NewInboxRunner(deps, time.Second, generalLedger).Start(ctx)

	// Web API
	srv := web.NewServer(db, rtr, cfg.Web, version)
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("web server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}

// seedAccounts installs the minimal chart of accounts on first start.
// An existing chart, however customized, is left alone.
func seedAccounts(db *store.Store) error {
	accounts, err := db.ListAccounts()
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}

	seed := []store.Account{
		{Code: "1000", Name: "Cash", Type: "asset"},
		{Code: "1200", Name: "Accounts Receivable", Type: "asset"},
		{Code: "2000", Name: "Accounts Payable", Type: "liability"},
		{Code: "4000", Name: "Revenue", Type: "revenue"},
		{Code: "6000", Name: "General Expense", Type: "expense"},
		{Code: "9999", Name: "Suspense", Type: "suspense"},
	}
	for _, a := range seed {
		a.ID = uuid.NewString()
		if err := db.SaveAccount(&a); err != nil {
			return err
		}
	}
	slog.Info("seeded chart of accounts", "accounts", len(seed))
	return nil
}
