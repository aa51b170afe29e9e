// Package ledger owns the authoritative in-memory set of open positions.
// All mutations go through Ledger methods; callers never hold copies that
// can diverge from the ledger's view.
package ledger

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradepilot/internal/market"
)

var (
	// ErrCapacityExceeded means the maxPositions bound is reached. Admission
	// denials are expected flow control, not failures.
	ErrCapacityExceeded = errors.New("maximum open positions reached")
	// ErrDuplicateSymbol means a position is already open for the symbol.
	ErrDuplicateSymbol = errors.New("position already open for symbol")
	// ErrMarketClosed means the symbol's market is not currently trading.
	ErrMarketClosed = errors.New("market closed for symbol")
	// ErrNotFound means the position was already closed or never existed.
	ErrNotFound = errors.New("position not found")
)

// Position is an open, quantity-bearing exposure to one symbol.
type Position struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Qty             int64     `json:"qty"`
	EntryPrice      float64   `json:"entry_price"`
	CurrentPrice    float64   `json:"current_price"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	AIManaged       bool      `json:"ai_managed"`
	Timeframes      []string  `json:"timeframes"`
	OpenedAt        time.Time `json:"opened_at"`
}

// ProfitLoss is the unrealized PnL at the current price.
func (p Position) ProfitLoss() float64 {
	return float64(p.Qty) * (p.CurrentPrice - p.EntryPrice)
}

// ProfitLossPercent is the unrealized PnL as a percent of entry.
func (p Position) ProfitLossPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice/p.EntryPrice - 1) * 100
}

// ClosedPosition is the final snapshot handed to the trade executor when a
// position leaves the ledger.
type ClosedPosition struct {
	Position
	ExitPrice   float64
	RealizedPnL float64
}

// OpenParams carries everything needed to admit a new position. Stop and
// take prices are fixed here, from the settings/profile snapshot in effect
// at open time; later settings changes never touch open positions.
type OpenParams struct {
	Symbol            string
	Qty               int64
	Price             float64
	StopLossPercent   float64 // 0 disables the stop
	TakeProfitPercent float64 // 0 disables the target
	AIManaged         bool
	Timeframes        []string
}

// Ledger enforces the admission bounds and recomputes valuation on ticks.
type Ledger struct {
	mu           sync.RWMutex
	maxPositions int
	positions    map[string]*Position // keyed by symbol
	byID         map[string]string    // position id -> symbol
	calendar     market.Calendar
	now          func() time.Time
}

// New creates a ledger with the given position bound and trading calendar.
func New(maxPositions int, calendar market.Calendar) *Ledger {
	if calendar == nil {
		calendar = market.AlwaysOpen{}
	}
	return &Ledger{
		maxPositions: maxPositions,
		positions:    make(map[string]*Position),
		byID:         make(map[string]string),
		calendar:     calendar,
		now:          time.Now,
	}
}

// SetClock overrides the time source; tests pin OpenedAt and calendar checks.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// SetMaxPositions applies a new bound. Positions beyond a lowered bound stay
// open; the bound only gates future admissions.
func (l *Ledger) SetMaxPositions(n int) {
	l.mu.Lock()
	l.maxPositions = n
	l.mu.Unlock()
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// CanOpen reports whether a new position for symbol would be admitted.
// A nil error means yes.
func (l *Ledger) CanOpen(symbol string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.canOpenLocked(symbol)
}

func (l *Ledger) canOpenLocked(symbol string) error {
	if !l.calendar.IsOpen(symbol, l.now()) {
		return ErrMarketClosed
	}
	if _, exists := l.positions[symbol]; exists {
		return ErrDuplicateSymbol
	}
	if l.maxPositions > 0 && len(l.positions) >= l.maxPositions {
		return ErrCapacityExceeded
	}
	return nil
}

// Open admits a new position, deriving stop and target prices from the given
// percents. It re-checks admission under the lock; callers may have raced.
func (l *Ledger) Open(params OpenParams) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.canOpenLocked(params.Symbol); err != nil {
		return Position{}, err
	}

	p := &Position{
		ID:           uuid.NewString(),
		Symbol:       params.Symbol,
		Qty:          params.Qty,
		EntryPrice:   params.Price,
		CurrentPrice: params.Price,
		AIManaged:    params.AIManaged,
		Timeframes:   append([]string(nil), params.Timeframes...),
		OpenedAt:     l.now(),
	}
	if params.StopLossPercent > 0 {
		p.StopLossPrice = params.Price * (1 - params.StopLossPercent/100)
	}
	if params.TakeProfitPercent > 0 {
		p.TakeProfitPrice = params.Price * (1 + params.TakeProfitPercent/100)
	}

	l.positions[params.Symbol] = p
	l.byID[p.ID] = params.Symbol
	return *p, nil
}

// UpdatePrice recomputes valuation for the symbol's open position. It is a
// no-op when no position exists; price ticks can race position lifecycle.
func (l *Ledger) UpdatePrice(symbol string, price float64) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok || price <= 0 {
		return Position{}, false
	}
	p.CurrentPrice = price
	return *p, true
}

// Close removes a position by id and returns its final snapshot.
func (l *Ledger) Close(positionID string) (ClosedPosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	symbol, ok := l.byID[positionID]
	if !ok {
		return ClosedPosition{}, ErrNotFound
	}
	p := l.positions[symbol]
	delete(l.positions, symbol)
	delete(l.byID, positionID)

	return ClosedPosition{
		Position:    *p,
		ExitPrice:   p.CurrentPrice,
		RealizedPnL: p.ProfitLoss(),
	}, nil
}

// Get returns a position snapshot by id.
func (l *Ledger) Get(positionID string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	symbol, ok := l.byID[positionID]
	if !ok {
		return Position{}, false
	}
	return *l.positions[symbol], true
}

// BySymbol returns the open position for a symbol, if any.
func (l *Ledger) BySymbol(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns snapshots of all open positions, oldest first. Each
// monitor tick evaluates this single consistent snapshot.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Load seeds the ledger from persisted positions during startup recovery.
// Existing in-memory state is replaced.
func (l *Ledger) Load(positions []Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[string]*Position, len(positions))
	l.byID = make(map[string]string, len(positions))
	for i := range positions {
		p := positions[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		l.positions[p.Symbol] = &p
		l.byID[p.ID] = p.Symbol
	}
}
