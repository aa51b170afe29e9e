package ledger

import (
	"errors"
	"testing"
	"time"

	"tradepilot/internal/market"
)

func newTestLedger(max int) *Ledger {
	return New(max, market.AlwaysOpen{})
}

func TestOpenDerivesStops(t *testing.T) {
	l := newTestLedger(5)

	p, err := l.Open(OpenParams{
		Symbol:            "AAPL",
		Qty:               10,
		Price:             100,
		StopLossPercent:   4,
		TakeProfitPercent: 6,
		AIManaged:         true,
		Timeframes:        []string{"5m", "1h"},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if p.StopLossPrice != 96 {
		t.Errorf("stop loss price = %v, want 96", p.StopLossPrice)
	}
	if p.TakeProfitPrice != 106 {
		t.Errorf("take profit price = %v, want 106", p.TakeProfitPrice)
	}
	if p.CurrentPrice != 100 || p.EntryPrice != 100 {
		t.Errorf("entry/current = %v/%v, want 100/100", p.EntryPrice, p.CurrentPrice)
	}
	if p.ID == "" {
		t.Error("position should get an id")
	}
}

func TestOpenZeroPercentDisables(t *testing.T) {
	l := newTestLedger(5)
	p, err := l.Open(OpenParams{Symbol: "AAPL", Qty: 1, Price: 100})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if p.StopLossPrice != 0 || p.TakeProfitPrice != 0 {
		t.Errorf("disabled stops should stay zero, got %v/%v", p.StopLossPrice, p.TakeProfitPrice)
	}
}

func TestAdmissionControl(t *testing.T) {
	l := newTestLedger(2)

	mustOpen(t, l, "AAPL")
	if err := l.CanOpen("AAPL"); !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("duplicate symbol: got %v, want ErrDuplicateSymbol", err)
	}

	mustOpen(t, l, "MSFT")
	if err := l.CanOpen("TSLA"); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("at capacity: got %v, want ErrCapacityExceeded", err)
	}
	if _, err := l.Open(OpenParams{Symbol: "TSLA", Qty: 1, Price: 1}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Open at capacity: got %v, want ErrCapacityExceeded", err)
	}

	// Closing frees a slot.
	pos, _ := l.BySymbol("AAPL")
	if _, err := l.Close(pos.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := l.CanOpen("TSLA"); err != nil {
		t.Errorf("after close: got %v, want nil", err)
	}
}

func TestAdmissionMarketClosed(t *testing.T) {
	l := New(5, market.EquityCalendar{})
	// Saturday noon UTC.
	l.SetClock(func() time.Time {
		return time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	})

	if err := l.CanOpen("AAPL"); !errors.Is(err, ErrMarketClosed) {
		t.Errorf("weekend: got %v, want ErrMarketClosed", err)
	}
}

func TestLoweredBoundKeepsPositions(t *testing.T) {
	l := newTestLedger(3)
	mustOpen(t, l, "AAPL")
	mustOpen(t, l, "MSFT")
	mustOpen(t, l, "TSLA")

	l.SetMaxPositions(1)

	if l.OpenCount() != 3 {
		t.Errorf("open count = %d, lowering the bound must not close positions", l.OpenCount())
	}
	if err := l.CanOpen("NVDA"); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("got %v, want ErrCapacityExceeded", err)
	}
}

func TestUpdatePrice(t *testing.T) {
	l := newTestLedger(5)
	mustOpen(t, l, "AAPL")

	p, ok := l.UpdatePrice("AAPL", 110)
	if !ok {
		t.Fatal("UpdatePrice should hit the open position")
	}
	if p.CurrentPrice != 110 {
		t.Errorf("current price = %v, want 110", p.CurrentPrice)
	}

	// Unknown symbol is a no-op, not an error.
	if _, ok := l.UpdatePrice("MSFT", 50); ok {
		t.Error("UpdatePrice on unknown symbol should report false")
	}
	// Garbage prices are ignored.
	if _, ok := l.UpdatePrice("AAPL", -1); ok {
		t.Error("negative price should be ignored")
	}
}

func TestProfitLoss(t *testing.T) {
	l := newTestLedger(5)
	p, err := l.Open(OpenParams{Symbol: "AAPL", Qty: 10, Price: 100})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	p, _ = l.UpdatePrice("AAPL", 105)
	if got := p.ProfitLoss(); got != 50 {
		t.Errorf("profit = %v, want 50", got)
	}
	if got := p.ProfitLossPercent(); got != 5 {
		t.Errorf("profit percent = %v, want 5", got)
	}
}

func TestCloseReturnsFinalSnapshot(t *testing.T) {
	l := newTestLedger(5)
	p, _ := l.Open(OpenParams{Symbol: "AAPL", Qty: 10, Price: 100})
	l.UpdatePrice("AAPL", 90)

	closed, err := l.Close(p.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.ExitPrice != 90 {
		t.Errorf("exit price = %v, want 90", closed.ExitPrice)
	}
	if closed.RealizedPnL != -100 {
		t.Errorf("realized pnl = %v, want -100", closed.RealizedPnL)
	}

	// Second close of the same id fails.
	if _, err := l.Close(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double close: got %v, want ErrNotFound", err)
	}
	if l.OpenCount() != 0 {
		t.Errorf("open count = %d, want 0", l.OpenCount())
	}
}

func TestPositionsSortedByAge(t *testing.T) {
	l := newTestLedger(5)
	now := time.Now()
	step := 0
	l.SetClock(func() time.Time {
		step++
		return now.Add(time.Duration(step) * time.Second)
	})

	mustOpen(t, l, "AAPL")
	mustOpen(t, l, "MSFT")
	mustOpen(t, l, "TSLA")

	positions := l.Positions()
	if len(positions) != 3 {
		t.Fatalf("len = %d, want 3", len(positions))
	}
	if positions[0].Symbol != "AAPL" || positions[2].Symbol != "TSLA" {
		t.Errorf("order = %v, want oldest first", []string{positions[0].Symbol, positions[1].Symbol, positions[2].Symbol})
	}
}

func TestLoadReplacesState(t *testing.T) {
	l := newTestLedger(5)
	mustOpen(t, l, "AAPL")

	l.Load([]Position{
		{ID: "p1", Symbol: "MSFT", Qty: 2, EntryPrice: 400, CurrentPrice: 410},
	})

	if l.OpenCount() != 1 {
		t.Fatalf("open count = %d, want 1", l.OpenCount())
	}
	if _, ok := l.BySymbol("AAPL"); ok {
		t.Error("Load should drop pre-existing positions")
	}
	p, ok := l.Get("p1")
	if !ok || p.Symbol != "MSFT" {
		t.Errorf("loaded position not retrievable by id: %+v ok=%v", p, ok)
	}
}

func mustOpen(t *testing.T, l *Ledger, symbol string) Position {
	t.Helper()
	p, err := l.Open(OpenParams{Symbol: symbol, Qty: 1, Price: 100})
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", symbol, err)
	}
	return p
}
