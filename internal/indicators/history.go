package indicators

import "sync"

// History maintains bounded per-symbol, per-timeframe price windows that
// strategies evaluate against. Windows are appended on every refresh tick.
type History struct {
	mu     sync.RWMutex
	window int
	prices map[string]map[string][]float64 // symbol -> timeframe -> prices
}

// NewHistory builds a history keeper holding up to window prices per series.
func NewHistory(window int) *History {
	if window <= 0 {
		window = 200
	}
	return &History{
		window: window,
		prices: make(map[string]map[string][]float64),
	}
}

// Append records a price observation for every given timeframe of a symbol.
func (h *History) Append(symbol string, timeframes []string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	series, ok := h.prices[symbol]
	if !ok {
		series = make(map[string][]float64, len(timeframes))
		h.prices[symbol] = series
	}
	for _, tf := range timeframes {
		arr := append(series[tf], price)
		if len(arr) > h.window {
			arr = arr[len(arr)-h.window:]
		}
		series[tf] = arr
	}
}

// Series returns a copy of the price window for a symbol and timeframe.
func (h *History) Series(symbol, timeframe string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	src := h.prices[symbol][timeframe]
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// Drift reports the normalized gap between the short and long moving average
// of the symbol's first series, clamped to [-1, 1]. The analyzer uses it as
// the bounded historical-data confidence modifier.
func (h *History) Drift(symbol, timeframe string, short, long int) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	arr := h.prices[symbol][timeframe]
	shortMA := SMA(arr, short)
	longMA := SMA(arr, long)
	if shortMA == 0 || longMA == 0 {
		return 0
	}

	drift := (shortMA - longMA) / longMA * 10
	if drift > 1 {
		drift = 1
	}
	if drift < -1 {
		drift = -1
	}
	return drift
}
