package engine

import (
	"context"
	"testing"
	"time"

	"tradepilot/internal/analyzer"
	"tradepilot/internal/balance"
	"tradepilot/internal/events"
	"tradepilot/internal/executor"
	"tradepilot/internal/exit"
	"tradepilot/internal/indicators"
	"tradepilot/internal/ledger"
	"tradepilot/internal/market"
	"tradepilot/internal/risk"
)

// fixedSignal drives the analyzer deterministically in scheduler tests.
type fixedSignal struct {
	signal analyzer.Signal
}

func (s fixedSignal) Name() string { return "fixed" }
func (s fixedSignal) Evaluate(string, string, *indicators.History) analyzer.Signal {
	return s.signal
}

type harness struct {
	engine   *Engine
	feed     *market.MockFeed
	ledger   *ledger.Ledger
	balances *balance.Manager
	bus      *events.Bus
}

func newHarness(t *testing.T, signal analyzer.Signal, settings risk.Settings) *harness {
	t.Helper()

	feed := market.NewMockFeed()
	quoter := market.NewQuoter(feed, time.Second)
	history := indicators.NewHistory(0)
	an := analyzer.New(history, market.AlwaysOpen{}, fixedSignal{signal})
	lg := ledger.New(settings.MaxPositions, market.AlwaysOpen{})
	balances := balance.NewManager(10000)
	bus := events.NewBus()
	exec := executor.New(lg, balances, quoter, risk.NewTable(), nil, nil, bus)
	exits := exit.NewEvaluator(an)

	eng := New(Deps{
		Feed:     feed,
		Quoter:   quoter,
		History:  history,
		Analyzer: an,
		Ledger:   lg,
		Balances: balances,
		Executor: exec,
		Exits:    exits,
		Profiles: risk.NewTable(),
		Bus:      bus,
	}, Intervals{
		Refresh:  5 * time.Millisecond,
		Analysis: 5 * time.Millisecond,
		Monitor:  5 * time.Millisecond,
	}, settings)

	return &harness{engine: eng, feed: feed, ledger: lg, balances: balances, bus: bus}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t, analyzer.SignalNeutral, risk.DefaultSettings(3, nil))
	ctx := context.Background()

	if h.engine.Running() {
		t.Fatal("engine should start stopped")
	}

	h.engine.Start(ctx)
	h.engine.Start(ctx) // second start is a no-op
	if !h.engine.Running() {
		t.Fatal("engine should be running")
	}

	h.engine.Stop()
	if h.engine.Running() {
		t.Fatal("engine should be stopped")
	}
	h.engine.Stop() // second stop is a no-op
}

func TestLateTickAfterStopIsDropped(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalBullish, settings)
	h.feed.SetPrice("AAPL", 100)

	h.engine.Start(context.Background())
	waitFor(t, "position to open", func() bool { return h.ledger.OpenCount() == 1 })
	h.engine.Stop()

	before, _ := h.ledger.BySymbol("AAPL")
	h.engine.handleTick("AAPL", 250) // push delivered after the stop
	after, _ := h.ledger.BySymbol("AAPL")
	if after.CurrentPrice != before.CurrentPrice {
		t.Errorf("late tick moved valuation from %v to %v", before.CurrentPrice, after.CurrentPrice)
	}
}

func TestAnalysisOpensPosition(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalBullish, settings)
	h.feed.SetPrice("AAPL", 100)

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	waitFor(t, "position to open", func() bool { return h.ledger.OpenCount() == 1 })

	pos, ok := h.ledger.BySymbol("AAPL")
	if !ok {
		t.Fatal("no AAPL position")
	}
	if !pos.AIManaged {
		t.Error("scheduler-opened position should be AI managed")
	}
	if h.balances.BuyingPower() >= 10000 {
		t.Error("buy should have debited buying power")
	}
}

func TestNeutralSignalsNeverTrade(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalNeutral, settings)
	h.feed.SetPrice("AAPL", 100)

	h.engine.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	h.engine.Stop()

	if h.ledger.OpenCount() != 0 {
		t.Errorf("open positions = %d, want 0", h.ledger.OpenCount())
	}
	if h.balances.BuyingPower() != 10000 {
		t.Errorf("buying power = %v, want untouched 10000", h.balances.BuyingPower())
	}
}

// Full profitable cycle: open on a bullish signal, ride the price up through
// take profit, settle the gain.
func TestTakeProfitCycle(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalBullish, settings)
	h.feed.SetPrice("AAPL", 100)

	trades, unsub := h.bus.Subscribe(events.EventTradeExecuted, 32)
	defer unsub()

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	waitFor(t, "position to open", func() bool { return h.ledger.OpenCount() == 1 })

	// Jump past the 6% target. The refresh loop pulls the new price and the
	// monitor loop closes the position.
	h.feed.SetPrice("AAPL", 110)

	waitFor(t, "position to close", func() bool { return h.ledger.OpenCount() == 0 })

	var sell executor.Trade
	deadline := time.After(2 * time.Second)
	for sell.Action != executor.ActionSell {
		select {
		case msg := <-trades:
			if tr, ok := msg.(executor.Trade); ok && tr.Action == executor.ActionSell {
				sell = tr
			}
		case <-deadline:
			t.Fatal("no SELL trade observed")
		}
	}
	if sell.Reason != exit.ReasonTakeProfit {
		t.Errorf("close reason = %q, want %q", sell.Reason, exit.ReasonTakeProfit)
	}

	snap := h.balances.Snapshot()
	if snap.RealizedPnL <= 0 {
		t.Errorf("realized pnl = %v, want > 0", snap.RealizedPnL)
	}
}

// Losing cycle: price falls through the stop.
func TestStopLossCycle(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalBullish, settings)
	h.feed.SetPrice("AAPL", 100)

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	waitFor(t, "position to open", func() bool { return h.ledger.OpenCount() == 1 })

	h.feed.SetPrice("AAPL", 90) // through the 4% stop

	waitFor(t, "position to close", func() bool { return h.ledger.OpenCount() == 0 })

	snap := h.balances.Snapshot()
	if snap.RealizedPnL >= 0 {
		t.Errorf("realized pnl = %v, want < 0", snap.RealizedPnL)
	}
}

func TestUpdateSettingsAtomicSwap(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalNeutral, settings)

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	level := 5
	maxPositions := 2
	merged := h.engine.UpdateSettings(context.Background(), risk.SettingsPatch{
		RiskLevel:    &level,
		MaxPositions: &maxPositions,
	})

	if merged.RiskLevel != 5 || merged.MaxPositions != 2 {
		t.Errorf("merged = %+v", merged)
	}
	if got := h.engine.Settings(); got.RiskLevel != 5 {
		t.Errorf("active settings risk level = %d, want 5", got.RiskLevel)
	}
	if !h.engine.Running() {
		t.Error("engine should resume after a settings swap while running")
	}

	// Applied while stopped: stays stopped.
	h.engine.Stop()
	h.engine.UpdateSettings(context.Background(), risk.SettingsPatch{RiskLevel: &level})
	if h.engine.Running() {
		t.Error("settings swap must not start a stopped engine")
	}
}

func TestManualClose(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL"})
	h := newHarness(t, analyzer.SignalBullish, settings)
	h.feed.SetPrice("AAPL", 100)

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	waitFor(t, "position to open", func() bool { return h.ledger.OpenCount() == 1 })
	pos, _ := h.ledger.BySymbol("AAPL")

	trade, err := h.engine.ClosePosition(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}
	if trade.Initiator != executor.InitiatorManual {
		t.Errorf("initiator = %q, want MANUAL", trade.Initiator)
	}
	waitFor(t, "ledger to drop the position", func() bool {
		_, ok := h.ledger.Get(pos.ID)
		return !ok
	})
}

func TestCapacityBoundHolds(t *testing.T) {
	settings := risk.DefaultSettings(3, []string{"AAPL", "MSFT", "TSLA"})
	settings.MaxPositions = 2
	h := newHarness(t, analyzer.SignalBullish, settings)
	h.feed.SetPrice("AAPL", 100)
	h.feed.SetPrice("MSFT", 100)
	h.feed.SetPrice("TSLA", 100)

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	waitFor(t, "two positions", func() bool { return h.ledger.OpenCount() == 2 })

	// Give the analysis loop more passes; the bound must hold.
	time.Sleep(100 * time.Millisecond)
	if got := h.ledger.OpenCount(); got != 2 {
		t.Errorf("open positions = %d, want capped at 2", got)
	}
}

func TestStatusEventsOnBus(t *testing.T) {
	h := newHarness(t, analyzer.SignalNeutral, risk.DefaultSettings(3, nil))

	updates, unsub := h.bus.Subscribe(events.EventStatusUpdate, 10)
	defer unsub()

	h.engine.Start(context.Background())
	h.engine.Stop()

	want := []bool{true, false}
	for _, running := range want {
		select {
		case msg := <-updates:
			st, ok := msg.(events.StatusUpdate)
			if !ok {
				t.Fatalf("payload type %T", msg)
			}
			if st.Running != running {
				t.Errorf("status running = %v, want %v", st.Running, running)
			}
		case <-time.After(time.Second):
			t.Fatal("missing status update")
		}
	}
}
