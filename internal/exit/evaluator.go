// Package exit decides whether an open position should be closed on this
// monitoring pass. Rules are checked in a fixed order so overlapping
// conditions always resolve the same way: a price through both the stop and
// the target reports the stop.
package exit

import (
	"tradepilot/internal/analyzer"
	"tradepilot/internal/ledger"
	"tradepilot/internal/risk"
)

// Close reasons, recorded verbatim on the resulting trade.
const (
	ReasonStopLoss       = "Stop Loss"
	ReasonTakeProfit     = "Take Profit"
	ReasonScalping       = "Scalping"
	ReasonSignalReversal = "Signal Reversal"
)

// Decision is the outcome of evaluating one position.
type Decision struct {
	Close  bool
	Reason string
}

var hold = Decision{}

// SignalSource supplies the latest per-timeframe signals for a symbol.
// The analyzer implements it.
type SignalSource interface {
	Last(symbol string) (analyzer.Analysis, bool)
}

// Evaluator applies the exit rules in priority order.
type Evaluator struct {
	signals SignalSource
}

// NewEvaluator creates an evaluator. signals may be nil, which disables the
// signal-reversal rule.
func NewEvaluator(signals SignalSource) *Evaluator {
	return &Evaluator{signals: signals}
}

// Evaluate returns the first matching exit rule for the position, or a hold
// decision. Positions not managed by the engine are never touched.
func (e *Evaluator) Evaluate(p ledger.Position, settings risk.Settings) Decision {
	if !p.AIManaged {
		return hold
	}

	if settings.StopLossEnabled && p.StopLossPrice > 0 && p.CurrentPrice <= p.StopLossPrice {
		return Decision{Close: true, Reason: ReasonStopLoss}
	}

	if settings.TakeProfitEnabled && p.TakeProfitPrice > 0 && p.CurrentPrice >= p.TakeProfitPrice {
		return Decision{Close: true, Reason: ReasonTakeProfit}
	}

	if settings.ScalpingMode {
		threshold := risk.ScalpThreshold(settings.RiskLevel)
		if p.ProfitLossPercent() >= threshold {
			return Decision{Close: true, Reason: ReasonScalping}
		}
	}

	if e.reversed(p) {
		return Decision{Close: true, Reason: ReasonSignalReversal}
	}

	return hold
}

// reversed reports whether a majority of the position's configured
// timeframes now signal against the long exposure.
func (e *Evaluator) reversed(p ledger.Position) bool {
	if e.signals == nil || len(p.Timeframes) == 0 {
		return false
	}
	analysis, ok := e.signals.Last(p.Symbol)
	if !ok {
		return false
	}

	against := 0
	for _, tf := range p.Timeframes {
		if analysis.TimeframeBearish(tf) {
			against++
		}
	}
	return against*2 > len(p.Timeframes)
}
