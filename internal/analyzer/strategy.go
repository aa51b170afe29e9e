package analyzer

import "tradepilot/internal/indicators"

// Signal is a single strategy's read of one symbol on one timeframe.
type Signal string

const (
	SignalBullish    Signal = "bullish"
	SignalBearish    Signal = "bearish"
	SignalOversold   Signal = "oversold"
	SignalOverbought Signal = "overbought"
	SignalNeutral    Signal = "neutral"
)

// Vote maps a signal to its direction: +1 buy, -1 sell, 0 abstain.
func (s Signal) Vote() int {
	switch s {
	case SignalBullish, SignalOversold:
		return 1
	case SignalBearish, SignalOverbought:
		return -1
	default:
		return 0
	}
}

// Bullish reports whether the signal argues for holding or adding long
// exposure.
func (s Signal) Bullish() bool { return s.Vote() > 0 }

// Bearish reports whether the signal argues against long exposure.
func (s Signal) Bearish() bool { return s.Vote() < 0 }

// Strategy evaluates one symbol on one timeframe from its price history.
type Strategy interface {
	Name() string
	Evaluate(symbol, timeframe string, history *indicators.History) Signal
}

// MACross signals on the relationship between a short and a long simple
// moving average.
type MACross struct {
	Short int
	Long  int
}

// NewMACross returns a moving-average crossover strategy with the usual
// 10/30 windows when the arguments are not positive.
func NewMACross(short, long int) *MACross {
	if short <= 0 {
		short = 10
	}
	if long <= 0 {
		long = 30
	}
	return &MACross{Short: short, Long: long}
}

func (m *MACross) Name() string { return "ma_cross" }

func (m *MACross) Evaluate(symbol, timeframe string, history *indicators.History) Signal {
	series := history.Series(symbol, timeframe)
	if len(series) < m.Long {
		return SignalNeutral
	}
	short := indicators.SMA(series, m.Short)
	long := indicators.SMA(series, m.Long)
	if short == 0 || long == 0 {
		return SignalNeutral
	}
	switch {
	case short > long:
		return SignalBullish
	case short < long:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// RSIStrategy signals when the relative strength index leaves its neutral
// band.
type RSIStrategy struct {
	Period     int
	Oversold   float64
	Overbought float64
}

// NewRSI returns an RSI strategy with the classic 14/30/70 parameters when
// the arguments are not set.
func NewRSI(period int, oversold, overbought float64) *RSIStrategy {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= 0 {
		overbought = 70
	}
	return &RSIStrategy{Period: period, Oversold: oversold, Overbought: overbought}
}

func (r *RSIStrategy) Name() string { return "rsi" }

func (r *RSIStrategy) Evaluate(symbol, timeframe string, history *indicators.History) Signal {
	series := history.Series(symbol, timeframe)
	if len(series) < r.Period+1 {
		return SignalNeutral
	}
	value := indicators.RSI(series, r.Period)
	switch {
	case value <= r.Oversold:
		return SignalOversold
	case value >= r.Overbought:
		return SignalOverbought
	default:
		return SignalNeutral
	}
}
