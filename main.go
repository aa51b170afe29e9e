package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradepilot/internal/analyzer"
	"tradepilot/internal/api"
	"tradepilot/internal/balance"
	"tradepilot/internal/engine"
	"tradepilot/internal/events"
	"tradepilot/internal/executor"
	"tradepilot/internal/exit"
	"tradepilot/internal/indicators"
	"tradepilot/internal/ledger"
	"tradepilot/internal/market"
	"tradepilot/internal/persistence"
	"tradepilot/internal/risk"
	"tradepilot/internal/store"
	"tradepilot/pkg/config"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Risk profiles, optionally overridden from YAML.
	profiles := risk.NewTable()
	if cfg.RiskProfilesPath != "" {
		if err := profiles.LoadProfiles(cfg.RiskProfilesPath); err != nil {
			log.Fatalf("risk profiles: %v", err)
		}
		log.Printf("risk profiles loaded from %s", cfg.RiskProfilesPath)
	}

	// Persistence.
	st, err := store.NewSQLiteStore(cfg.DBPath, cfg.UserID)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	snapshots := store.NewSnapshotManager(cfg.SnapshotPath)

	bus := events.NewBus()
	queue := persistence.NewRetryQueue(5*time.Second, 10, bus)
	queue.Start(ctx)
	defer queue.Stop()

	// Market data.
	calendar := market.EquityCalendar{}
	var feed market.Feed
	if cfg.UseMockFeed || cfg.QuoteWSURL == "" {
		mock := market.NewMockFeed()
		mock.Start(ctx)
		feed = mock
		log.Println("market: 📈 using mock price feed")
	} else {
		stream := market.NewStreamFeed(cfg.QuoteWSURL)
		stream.Start(ctx)
		feed = stream
		log.Printf("market: 📡 streaming quotes from %s", cfg.QuoteWSURL)
	}
	quoter := market.NewQuoter(feed, cfg.FeedTimeout)

	// Core modules.
	history := indicators.NewHistory(0)
	an := analyzer.New(history, calendar)
	lg := ledger.New(cfg.DefaultMaxPositions, calendar)
	balances := balance.NewManager(cfg.InitialBuyingPower)
	exec := executor.New(lg, balances, quoter, profiles, st, queue, bus)
	exits := exit.NewEvaluator(an)

	settings := risk.DefaultSettings(cfg.DefaultRiskLevel, cfg.WatchedSymbols)
	settings.MaxPositions = cfg.DefaultMaxPositions

	eng := engine.New(engine.Deps{
		Feed:      feed,
		Quoter:    quoter,
		History:   history,
		Analyzer:  an,
		Ledger:    lg,
		Balances:  balances,
		Executor:  exec,
		Exits:     exits,
		Profiles:  profiles,
		Store:     st,
		Queue:     queue,
		Snapshots: snapshots,
		Bus:       bus,
	}, engine.Intervals{
		Refresh:  cfg.RefreshInterval,
		Analysis: cfg.AnalysisInterval,
		Monitor:  cfg.MonitorInterval,
	}, settings)

	// Crash recovery runs once, before any loop starts.
	recovered, err := store.Recover(ctx, st, snapshots)
	if err != nil {
		log.Fatalf("recovery: %v", err)
	}
	eng.Restore(recovered, cfg.InitialBuyingPower)
	if recovered.FromSnapshot {
		log.Println("recovery: 💾 account restored from local snapshot")
	}

	eng.Start(ctx)
	defer eng.Stop()

	server := api.NewServer(eng, an, lg, balances, st, queue, bus, api.SystemMeta{
		Symbols:     cfg.WatchedSymbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     version,
		StartedAt:   time.Now(),
	})
	server.BaseCtx = ctx

	go func() {
		log.Printf("api: listening on :%s", cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}
