// Package executor carries out trade decisions: it prices the order, moves
// money through the balance manager, mutates the ledger, and hands the
// resulting rows to persistence. In-memory state commits first; storage
// failures are retried in the background and never roll back a trade.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tradepilot/internal/balance"
	"tradepilot/internal/events"
	"tradepilot/internal/ledger"
	"tradepilot/internal/market"
	"tradepilot/internal/persistence"
	"tradepilot/internal/risk"
	"tradepilot/internal/store"
	"tradepilot/pkg/db"
)

// Trade actions and initiators.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	InitiatorAI     = "AI"
	InitiatorManual = "MANUAL"
)

// Trade is one executed order, as published on the bus and returned to
// callers. The persisted row is db.Trade.
type Trade struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`
	Total     float64   `json:"total"`
	Initiator string    `json:"initiator"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Executor executes buys and sells against the simulated account.
type Executor struct {
	ledger   *ledger.Ledger
	balances *balance.Manager
	quoter   *market.Quoter
	profiles *risk.Table
	store    store.Store
	queue    *persistence.RetryQueue
	bus      *events.Bus
	now      func() time.Time
}

// New wires an executor. store and queue may be nil in tests; trades then
// live only in memory.
func New(
	lg *ledger.Ledger,
	balances *balance.Manager,
	quoter *market.Quoter,
	profiles *risk.Table,
	st store.Store,
	queue *persistence.RetryQueue,
	bus *events.Bus,
) *Executor {
	return &Executor{
		ledger:   lg,
		balances: balances,
		quoter:   quoter,
		profiles: profiles,
		store:    st,
		queue:    queue,
		bus:      bus,
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *Executor) SetClock(now func() time.Time) { e.now = now }

// Buy opens a position in symbol under the given settings. Admission is
// checked before any money moves, and a failed ledger open refunds the
// debit, so a rejected buy leaves the account untouched.
func (e *Executor) Buy(ctx context.Context, symbol string, settings risk.Settings, reason, initiator string) (Trade, error) {
	if err := e.ledger.CanOpen(symbol); err != nil {
		return Trade{}, err
	}

	price, err := e.quoter.Price(ctx, symbol)
	if err != nil {
		return Trade{}, fmt.Errorf("price %s: %w", symbol, err)
	}

	qty := risk.PositionQuantity(e.balances.BuyingPower(), settings.RiskLevel, price)
	cost := float64(qty) * price
	if err := e.balances.Debit(cost); err != nil {
		return Trade{}, err
	}

	profile := e.profiles.ProfileFor(settings.RiskLevel)
	pos, err := e.ledger.Open(ledger.OpenParams{
		Symbol:            symbol,
		Qty:               qty,
		Price:             price,
		StopLossPercent:   stopPercent(settings, profile),
		TakeProfitPercent: takePercent(settings, profile),
		AIManaged:         initiator == InitiatorAI,
		Timeframes:        settings.Timeframes,
	})
	if err != nil {
		e.balances.Credit(cost, 0)
		return Trade{}, err
	}

	trade := Trade{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Action:    ActionBuy,
		Qty:       qty,
		Price:     price,
		Total:     cost,
		Initiator: initiator,
		Reason:    reason,
		CreatedAt: e.now(),
	}

	log.Printf("executor: 🟢 BUY %d %s @ %.2f (%s, %s)", qty, symbol, price, initiator, reason)
	e.persistOpen(ctx, trade, pos)
	e.publish(trade, pos)
	return trade, nil
}

// Sell closes the position and settles proceeds and realized PnL back into
// the account.
func (e *Executor) Sell(ctx context.Context, positionID, reason, initiator string) (Trade, error) {
	pos, ok := e.ledger.Get(positionID)
	if !ok {
		return Trade{}, ledger.ErrNotFound
	}

	// Refresh valuation so the exit settles at the freshest price we have.
	if price, err := e.quoter.Price(ctx, pos.Symbol); err == nil {
		e.ledger.UpdatePrice(pos.Symbol, price)
	}

	closed, err := e.ledger.Close(positionID)
	if err != nil {
		return Trade{}, err
	}

	proceeds := float64(closed.Qty) * closed.ExitPrice
	e.balances.Credit(proceeds, closed.RealizedPnL)

	trade := Trade{
		ID:        uuid.NewString(),
		Symbol:    closed.Symbol,
		Action:    ActionSell,
		Qty:       closed.Qty,
		Price:     closed.ExitPrice,
		Total:     proceeds,
		Initiator: initiator,
		Reason:    reason,
		CreatedAt: e.now(),
	}

	log.Printf("executor: 🔴 SELL %d %s @ %.2f pnl %.2f (%s, %s)",
		closed.Qty, closed.Symbol, closed.ExitPrice, closed.RealizedPnL, initiator, reason)
	e.persistClose(ctx, trade, closed)
	e.publishClose(trade, closed)
	return trade, nil
}

func (e *Executor) persistOpen(ctx context.Context, trade Trade, pos ledger.Position) {
	if e.store == nil || e.queue == nil {
		return
	}
	posRow := positionRow(pos, e.now())
	tradeRow := tradeRow(trade)
	balRow := e.balanceRow()
	e.queue.Run(ctx, "save position "+pos.Symbol, func(ctx context.Context) error {
		return e.store.SavePosition(ctx, posRow)
	})
	e.queue.Run(ctx, "save trade "+trade.ID, func(ctx context.Context) error {
		return e.store.SaveTrade(ctx, tradeRow)
	})
	e.queue.Run(ctx, "save balance", func(ctx context.Context) error {
		return e.store.SaveBalance(ctx, balRow)
	})
}

func (e *Executor) persistClose(ctx context.Context, trade Trade, closed ledger.ClosedPosition) {
	if e.store == nil || e.queue == nil {
		return
	}
	tradeRow := tradeRow(trade)
	balRow := e.balanceRow()
	positionID := closed.ID
	e.queue.Run(ctx, "delete position "+closed.Symbol, func(ctx context.Context) error {
		return e.store.DeletePosition(ctx, positionID)
	})
	e.queue.Run(ctx, "save trade "+trade.ID, func(ctx context.Context) error {
		return e.store.SaveTrade(ctx, tradeRow)
	})
	e.queue.Run(ctx, "save balance", func(ctx context.Context) error {
		return e.store.SaveBalance(ctx, balRow)
	})
}

// SyncPosition persists updated valuation for one open position.
func (e *Executor) SyncPosition(ctx context.Context, pos ledger.Position) {
	if e.store == nil || e.queue == nil {
		return
	}
	row := positionRow(pos, e.now())
	e.queue.Run(ctx, "sync position "+pos.Symbol, func(ctx context.Context) error {
		return e.store.SavePosition(ctx, row)
	})
}

func (e *Executor) publish(trade Trade, pos ledger.Position) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventTradeExecuted, trade)
	e.bus.Publish(events.EventPositionUpdate, pos)
}

func (e *Executor) publishClose(trade Trade, closed ledger.ClosedPosition) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventTradeExecuted, trade)
	e.bus.Publish(events.EventPositionUpdate, closed)
}

func (e *Executor) balanceRow() db.Balance {
	snap := e.balances.Snapshot()
	return db.Balance{
		BuyingPower: snap.BuyingPower,
		RealizedPnL: snap.RealizedPnL,
		UpdatedAt:   e.now(),
	}
}

func stopPercent(s risk.Settings, p risk.Profile) float64 {
	if !s.StopLossEnabled {
		return 0
	}
	return s.EffectiveStopLossPercent(p)
}

func takePercent(s risk.Settings, p risk.Profile) float64 {
	if !s.TakeProfitEnabled {
		return 0
	}
	return s.EffectiveTakeProfitPercent(p)
}

func positionRow(p ledger.Position, now time.Time) db.Position {
	return db.Position{
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
	}
}

func tradeRow(t Trade) db.Trade {
	return db.Trade{
		ID:        t.ID,
		Symbol:    t.Symbol,
		Action:    t.Action,
		Qty:       t.Qty,
		Price:     t.Price,
		Total:     t.Total,
		Initiator: t.Initiator,
		Reason:    t.Reason,
		CreatedAt: t.CreatedAt,
	}
}
