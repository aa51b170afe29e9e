// Package analyzer turns accumulated price history into per-symbol trade
// recommendations. Strategies vote per timeframe; the analyzer tallies the
// votes, scores confidence against the user's risk level, and retains the
// latest result for the exit evaluator and the API.
package analyzer

import (
	"sync"
	"time"

	"tradepilot/internal/indicators"
	"tradepilot/internal/market"
	"tradepilot/internal/risk"
)

// Recommendation values.
const (
	RecommendBuy  = "BUY"
	RecommendSell = "SELL"
	RecommendHold = "HOLD"
)

// Confidence shaping constants. The risk skew lowers confidence by five
// points per level below Speculative; the historical nudge is bounded so
// drift can never flip a recommendation on its own.
const (
	baseConfidence   = 0.5
	riskSkewPerLevel = 0.05
	maxDriftNudge    = 0.05
	driftShortWindow = 10
	driftLongWindow  = 30
)

// SignalEntry is one strategy's reading of one timeframe, recorded in
// evaluation order. Message is the rendered line shown to clients.
type SignalEntry struct {
	Timeframe string `json:"timeframe"`
	Indicator string `json:"indicator"`
	Signal    Signal `json:"signal"`
	Message   string `json:"message"`
}

// Analysis is one completed evaluation of a symbol.
type Analysis struct {
	Symbol         string        `json:"symbol"`
	Price          float64       `json:"price"`
	Recommendation string        `json:"recommendation"`
	Confidence     float64       `json:"confidence"`
	Signals        []SignalEntry `json:"signals"`
	BuyVotes       int           `json:"buy_votes"`
	SellVotes      int           `json:"sell_votes"`
	TotalVotes     int           `json:"total_votes"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// SignalFor returns the strongest recorded signal for a timeframe, favoring
// directional entries over neutral ones.
func (a Analysis) SignalFor(timeframe string) (Signal, bool) {
	found := SignalNeutral
	seen := false
	for _, e := range a.Signals {
		if e.Timeframe != timeframe {
			continue
		}
		seen = true
		if found == SignalNeutral {
			found = e.Signal
		}
	}
	return found, seen
}

// TimeframeBearish reports whether a timeframe's recorded votes net bearish.
func (a Analysis) TimeframeBearish(timeframe string) bool {
	net, seen := 0, false
	for _, e := range a.Signals {
		if e.Timeframe == timeframe {
			net += e.Signal.Vote()
			seen = true
		}
	}
	return seen && net < 0
}

// Analyzer runs the configured strategies over every watched timeframe.
type Analyzer struct {
	mu         sync.RWMutex
	history    *indicators.History
	calendar   market.Calendar
	strategies []Strategy
	last       map[string]Analysis
	now        func() time.Time
}

// New creates an analyzer. With no strategies given it installs the MA cross
// and RSI defaults.
func New(history *indicators.History, calendar market.Calendar, strategies ...Strategy) *Analyzer {
	if calendar == nil {
		calendar = market.AlwaysOpen{}
	}
	if len(strategies) == 0 {
		strategies = []Strategy{NewMACross(0, 0), NewRSI(0, 0, 0)}
	}
	return &Analyzer{
		history:    history,
		calendar:   calendar,
		strategies: strategies,
		last:       make(map[string]Analysis),
		now:        time.Now,
	}
}

// SetClock overrides the time source for tests.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Analyze evaluates one symbol at the given price under the given settings.
// It returns false without producing an analysis when the symbol's market is
// closed; stale signals from a closed market must not drive trades.
func (a *Analyzer) Analyze(symbol string, price float64, settings risk.Settings) (Analysis, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.calendar.IsOpen(symbol, a.now()) {
		return Analysis{}, false
	}

	signals := make([]SignalEntry, 0, len(settings.Timeframes)*len(a.strategies))
	buy, sell, total := 0, 0, 0
	for _, tf := range settings.Timeframes {
		for _, s := range a.strategies {
			sig := s.Evaluate(symbol, tf, a.history)
			total++
			switch {
			case sig.Bullish():
				buy++
			case sig.Bearish():
				sell++
			}
			signals = append(signals, SignalEntry{
				Timeframe: tf,
				Indicator: s.Name(),
				Signal:    sig,
				Message:   tf + " " + s.Name() + ": " + string(sig),
			})
		}
	}

	analysis := Analysis{
		Symbol:      symbol,
		Price:       price,
		Signals:     signals,
		BuyVotes:    buy,
		SellVotes:   sell,
		TotalVotes:  total,
		GeneratedAt: a.now(),
	}
	analysis.Recommendation = recommend(buy, sell, total)
	analysis.Confidence = a.confidence(symbol, analysis.Recommendation, buy, sell, total, settings)

	a.last[symbol] = analysis
	return analysis, true
}

// recommend requires a strict majority of all cast votes, not just a
// plurality of the non-neutral ones.
func recommend(buy, sell, total int) string {
	if total == 0 {
		return RecommendHold
	}
	switch {
	case buy > sell && float64(buy)/float64(total) > 0.5:
		return RecommendBuy
	case sell > buy && float64(sell)/float64(total) > 0.5:
		return RecommendSell
	default:
		return RecommendHold
	}
}

// confidence scores a recommendation. The win ratio divides by every cast
// vote, so neutral abstentions dilute confidence the same way they dilute
// the recommendation majority.
func (a *Analyzer) confidence(symbol, recommendation string, buy, sell, total int, settings risk.Settings) float64 {
	winRatio := 0.0
	if total > 0 {
		winning := buy
		if sell > buy {
			winning = sell
		}
		winRatio = float64(winning) / float64(total)
	}

	level := risk.ClampLevel(settings.RiskLevel)
	c := baseConfidence + winRatio*0.5 - float64(5-level)*riskSkewPerLevel

	if settings.UseHistoricalData && recommendation != RecommendHold && len(settings.Timeframes) > 0 {
		drift := a.history.Drift(symbol, settings.Timeframes[0], driftShortWindow, driftLongWindow)
		// Aligned drift nudges confidence up, opposing drift down.
		if recommendation == RecommendSell {
			drift = -drift
		}
		c += drift * maxDriftNudge
	}

	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Last returns the most recent analysis for a symbol, if one exists.
func (a *Analyzer) Last(symbol string) (Analysis, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	an, ok := a.last[symbol]
	return an, ok
}

// LastAll returns the most recent analysis per symbol.
func (a *Analyzer) LastAll() []Analysis {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Analysis, 0, len(a.last))
	for _, an := range a.last {
		out = append(out, an)
	}
	return out
}
