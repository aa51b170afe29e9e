package engine

import (
	"context"
	"time"

	"tradepilot/internal/analyzer"
	"tradepilot/internal/events"
	"tradepilot/internal/executor"
	"tradepilot/internal/store"
	"tradepilot/pkg/db"
)

// refreshLoop revalues open positions against the freshest prices and syncs
// them to storage.
func (e *Engine) refreshLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.intervals.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.refreshPass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// refreshPass revalues each open position and syncs it to storage.
func (e *Engine) refreshPass(ctx context.Context) {
	for _, pos := range e.deps.Ledger.Positions() {
		price, err := e.deps.Quoter.Price(ctx, pos.Symbol)
		if err != nil {
			// No price this pass; the position keeps its last valuation.
			continue
		}
		if updated, ok := e.deps.Ledger.UpdatePrice(pos.Symbol, price); ok {
			e.deps.Executor.SyncPosition(ctx, updated)
			if e.deps.Bus != nil {
				e.deps.Bus.Publish(events.EventPositionUpdate, updated)
			}
		}
	}
	e.saveSnapshot()
}

// analysisLoop evaluates every watched symbol. It runs once immediately on
// start, then on each interval.
func (e *Engine) analysisLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.intervals.Analysis)
	defer ticker.Stop()

	e.analysisPass(ctx)
	for {
		select {
		case <-ticker.C:
			e.analysisPass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) analysisPass(ctx context.Context) {
	settings := e.Settings()
	profile := e.deps.Profiles.ProfileFor(settings.RiskLevel)

	for _, symbol := range settings.Symbols {
		if ctx.Err() != nil {
			return
		}

		price, err := e.deps.Quoter.Price(ctx, symbol)
		if err != nil {
			e.reportError("analysis price "+symbol, err)
			continue
		}

		analysis, ok := e.deps.Analyzer.Analyze(symbol, price, settings)
		if !ok {
			continue // market closed
		}
		if e.deps.Bus != nil {
			e.deps.Bus.Publish(events.EventAnalysisUpdate, analysis)
		}

		if analysis.Recommendation != analyzer.RecommendBuy {
			continue
		}
		if analysis.Confidence < profile.ConfidenceThreshold {
			continue
		}

		_, err = e.deps.Executor.Buy(ctx, symbol, settings, "Signal", executor.InitiatorAI)
		if err != nil && !admissionDenied(err) {
			e.reportError("buy "+symbol, err)
		}
	}
}

// monitorLoop checks every open position against the exit rules.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.intervals.Monitor)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.monitorPass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) monitorPass(ctx context.Context) {
	settings := e.Settings()

	for _, pos := range e.deps.Ledger.Positions() {
		if ctx.Err() != nil {
			return
		}

		decision := e.deps.Exits.Evaluate(pos, settings)
		if !decision.Close {
			continue
		}

		_, err := e.deps.Executor.Sell(ctx, pos.ID, decision.Reason, executor.InitiatorAI)
		if err != nil {
			e.reportError("close "+pos.Symbol, err)
		}
	}
	e.saveSnapshot()
}

// saveSnapshot writes the local recovery snapshot of the live account.
func (e *Engine) saveSnapshot() {
	if e.deps.Snapshots == nil {
		return
	}

	settings := settingsRow(e.Settings())
	bal := e.deps.Balances.Snapshot()
	now := time.Now()

	positions := e.deps.Ledger.Positions()
	rows := make([]db.Position, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, db.Position{
			ID:              p.ID,
			Symbol:          p.Symbol,
			Qty:             p.Qty,
			EntryPrice:      p.EntryPrice,
			CurrentPrice:    p.CurrentPrice,
			StopLossPrice:   p.StopLossPrice,
			TakeProfitPrice: p.TakeProfitPrice,
			AIManaged:       p.AIManaged,
			OpenedAt:        p.OpenedAt,
			UpdatedAt:       now,
		})
	}

	err := e.deps.Snapshots.Save(store.Snapshot{
		Settings:  &settings,
		Positions: rows,
		Balance:   &db.Balance{BuyingPower: bal.BuyingPower, RealizedPnL: bal.RealizedPnL, UpdatedAt: now},
	})
	if err != nil {
		e.reportError("save snapshot", err)
	}
}
