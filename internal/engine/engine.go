// Package engine schedules the trading loops. Three periodic tasks run while
// the engine is active: position refresh, symbol analysis, and exit
// monitoring. The engine owns the active settings; everything else reads a
// snapshot of them per pass.
package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"tradepilot/internal/analyzer"
	"tradepilot/internal/balance"
	"tradepilot/internal/events"
	"tradepilot/internal/executor"
	"tradepilot/internal/exit"
	"tradepilot/internal/indicators"
	"tradepilot/internal/ledger"
	"tradepilot/internal/market"
	"tradepilot/internal/persistence"
	"tradepilot/internal/risk"
	"tradepilot/internal/store"
	"tradepilot/pkg/db"
)

// Intervals configures the three scheduler periods.
type Intervals struct {
	Refresh  time.Duration
	Analysis time.Duration
	Monitor  time.Duration
}

func (iv *Intervals) normalize() {
	if iv.Refresh <= 0 {
		iv.Refresh = 5 * time.Second
	}
	if iv.Analysis <= 0 {
		iv.Analysis = 30 * time.Second
	}
	if iv.Monitor <= 0 {
		iv.Monitor = 10 * time.Second
	}
}

// Deps bundles the collaborators the engine drives.
type Deps struct {
	Feed      market.Feed
	Quoter    *market.Quoter
	History   *indicators.History
	Analyzer  *analyzer.Analyzer
	Ledger    *ledger.Ledger
	Balances  *balance.Manager
	Executor  *executor.Executor
	Exits     *exit.Evaluator
	Profiles  *risk.Table
	Store     store.Store
	Queue     *persistence.RetryQueue
	Snapshots *store.SnapshotManager
	Bus       *events.Bus
}

// Engine runs the decision loops over the watched symbols.
type Engine struct {
	deps      Deps
	intervals Intervals

	// stateMu guards the run state. Stop holds it while waiting for loops,
	// so loops must never take it.
	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// settingsMu guards the active settings, separately from run state.
	settingsMu sync.RWMutex
	settings   risk.Settings

	unsubscribe []func()
}

// New creates a stopped engine with the given settings.
func New(deps Deps, intervals Intervals, settings risk.Settings) *Engine {
	intervals.normalize()
	settings.Normalize()
	return &Engine{
		deps:      deps,
		intervals: intervals,
		settings:  settings,
	}
}

// Running reports whether the loops are active.
func (e *Engine) Running() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.running
}

// Settings returns a snapshot of the active settings.
func (e *Engine) Settings() risk.Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// Start launches the scheduler. Starting a running engine is a no-op. The
// analysis pass runs once immediately so a fresh start does not wait a full
// interval before its first decision.
func (e *Engine) Start(ctx context.Context) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.startLocked(ctx)
}

func (e *Engine) startLocked(ctx context.Context) {
	if e.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.subscribeFeeds()

	e.wg.Add(3)
	go e.refreshLoop(runCtx)
	go e.analysisLoop(runCtx)
	go e.monitorLoop(runCtx)

	log.Println("engine: 🚀 started")
	e.publishStatus(true, "engine started")
}

// Stop halts all loops and returns only after they have exited. Stopping a
// stopped engine is a no-op.
func (e *Engine) Stop() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running {
		return
	}

	e.cancel()
	e.wg.Wait()
	e.unsubscribeFeeds()
	e.running = false
	e.cancel = nil

	log.Println("engine: 🛑 stopped")
	e.publishStatus(false, "engine stopped")
}

// UpdateSettings applies a settings patch as one unit: the scheduler is
// paused, the merged settings swapped in, and the scheduler resumed if it
// was running. No pass ever observes a half-applied configuration.
func (e *Engine) UpdateSettings(ctx context.Context, patch risk.SettingsPatch) risk.Settings {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	wasRunning := e.running
	if wasRunning {
		e.stopLocked()
	}

	e.settingsMu.Lock()
	merged := patch.Apply(e.settings)
	merged.Normalize()
	e.settings = merged
	e.settingsMu.Unlock()

	e.deps.Ledger.SetMaxPositions(merged.MaxPositions)
	e.persistSettings(ctx, merged)

	if wasRunning {
		e.startLocked(ctx)
	}

	log.Printf("engine: settings updated (risk level %d, %d symbols)", merged.RiskLevel, len(merged.Symbols))
	return merged
}

// Restore seeds in-memory state from recovered storage. It must be called
// before Start; the engine does not guard against restoring into live loops.
func (e *Engine) Restore(state store.RecoveredState, initialBuyingPower float64) {
	if state.Settings != nil {
		e.settingsMu.Lock()
		e.settings = settingsFromRow(*state.Settings)
		e.settingsMu.Unlock()
	}
	settings := e.Settings()
	e.deps.Ledger.SetMaxPositions(settings.MaxPositions)

	if state.Balance != nil {
		e.deps.Balances.Restore(state.Balance.BuyingPower, state.Balance.RealizedPnL)
	} else {
		e.deps.Balances.Restore(initialBuyingPower, 0)
	}

	if len(state.Positions) > 0 {
		positions := make([]ledger.Position, 0, len(state.Positions))
		for _, row := range state.Positions {
			positions = append(positions, ledger.Position{
				ID:              row.ID,
				Symbol:          row.Symbol,
				Qty:             row.Qty,
				EntryPrice:      row.EntryPrice,
				CurrentPrice:    row.CurrentPrice,
				StopLossPrice:   row.StopLossPrice,
				TakeProfitPrice: row.TakeProfitPrice,
				AIManaged:       row.AIManaged,
				Timeframes:      settings.Timeframes,
				OpenedAt:        row.OpenedAt,
			})
		}
		e.deps.Ledger.Load(positions)
		log.Printf("engine: restored %d open positions", len(positions))
	}
}

// ClosePosition closes one position manually at the freshest price.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) (executor.Trade, error) {
	return e.deps.Executor.Sell(ctx, positionID, "Manual Close", executor.InitiatorManual)
}

func (e *Engine) subscribeFeeds() {
	settings := e.Settings()
	for _, symbol := range settings.Symbols {
		unsub := e.deps.Feed.Subscribe(symbol, e.handleTick)
		e.unsubscribe = append(e.unsubscribe, unsub)
	}
}

func (e *Engine) unsubscribeFeeds() {
	for _, unsub := range e.unsubscribe {
		unsub()
	}
	e.unsubscribe = nil
}

// handleTick guards feed pushes with the run state. A dispatch racing a
// Stop either completes before Stop returns or is dropped; the ledger is
// never touched by a tick after Stop.
func (e *Engine) handleTick(symbol string, price float64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if !e.running {
		return
	}
	e.onTick(symbol, price)
}

// onTick records the price everywhere it is read from: the quoter's
// last-known cache, the indicator history, and the ledger's valuation.
func (e *Engine) onTick(symbol string, price float64) {
	e.deps.Quoter.Record(symbol, price)
	settings := e.Settings()
	e.deps.History.Append(symbol, settings.Timeframes, price)
	e.deps.Ledger.UpdatePrice(symbol, price)
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: symbol, Price: price})
	}
}

func (e *Engine) persistSettings(ctx context.Context, s risk.Settings) {
	if e.deps.Store == nil || e.deps.Queue == nil {
		return
	}
	row := settingsRow(s)
	e.deps.Queue.Run(ctx, "save settings", func(ctx context.Context) error {
		return e.deps.Store.SaveSettings(ctx, row)
	})
}

func (e *Engine) publishStatus(running bool, message string) {
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(events.EventStatusUpdate, events.StatusUpdate{Running: running, Message: message})
	}
}

func (e *Engine) reportError(op string, err error) {
	if err == nil {
		return
	}
	log.Printf("engine: %s: %v", op, err)
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(events.EventEngineError, op+": "+err.Error())
	}
}

// admissionDenied reports whether err is an expected admission outcome
// rather than a failure worth surfacing.
func admissionDenied(err error) bool {
	return errors.Is(err, ledger.ErrCapacityExceeded) ||
		errors.Is(err, ledger.ErrDuplicateSymbol) ||
		errors.Is(err, ledger.ErrMarketClosed) ||
		errors.Is(err, balance.ErrInsufficientFunds)
}

func settingsFromRow(row db.Settings) risk.Settings {
	s := risk.Settings{
		RiskLevel:           row.RiskLevel,
		MaxPositions:        row.MaxPositions,
		StopLossEnabled:     row.StopLossEnabled,
		StopLossPercent:     row.StopLossPercent,
		TakeProfitEnabled:   row.TakeProfitEnabled,
		TakeProfitPercent:   row.TakeProfitPercent,
		Timeframes:          splitList(row.Timeframes),
		ScalpingMode:        row.ScalpingMode,
		UseHistoricalData:   row.UseHistoricalData,
		ContinuousOperation: row.ContinuousOperation,
		Symbols:             splitList(row.Symbols),
	}
	s.Normalize()
	return s
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func settingsRow(s risk.Settings) db.Settings {
	return db.Settings{
		RiskLevel:           s.RiskLevel,
		MaxPositions:        s.MaxPositions,
		StopLossEnabled:     s.StopLossEnabled,
		StopLossPercent:     s.StopLossPercent,
		TakeProfitEnabled:   s.TakeProfitEnabled,
		TakeProfitPercent:   s.TakeProfitPercent,
		Timeframes:          strings.Join(s.Timeframes, ","),
		ScalpingMode:        s.ScalpingMode,
		UseHistoricalData:   s.UseHistoricalData,
		ContinuousOperation: s.ContinuousOperation,
		Symbols:             strings.Join(s.Symbols, ","),
		UpdatedAt:           time.Now(),
	}
}
