package market

import (
	"context"
	"errors"
	"sync"
)

// ErrNoPrice indicates the feed failed and no last-known or fallback price
// exists for the symbol. Callers skip the symbol for the current cycle.
var ErrNoPrice = errors.New("no price available")

// TickFunc receives push price updates for a subscribed symbol.
type TickFunc func(symbol string, price float64)

// Feed supplies current prices, via push subscription or pull polling.
type Feed interface {
	// Subscribe registers a tick callback for the symbol and returns an
	// unsubscribe function. Callbacks must not block.
	Subscribe(symbol string, fn TickFunc) (unsubscribe func())
	// CurrentPrice fetches the latest price for the symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// hub fans ticks out to subscribers with per-symbol reference counting, so
// overlapping watchlists do not create duplicate upstream subscriptions.
type hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[string]map[int]TickFunc
	onFirst func(symbol string) // upstream subscribe, may be nil
	onLast  func(symbol string) // upstream unsubscribe, may be nil
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]TickFunc)}
}

func (h *hub) subscribe(symbol string, fn TickFunc) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	set, ok := h.subs[symbol]
	if !ok {
		set = make(map[int]TickFunc)
		h.subs[symbol] = set
	}
	first := len(set) == 0
	set[id] = fn
	onFirst := h.onFirst
	h.mu.Unlock()

	if first && onFirst != nil {
		onFirst(symbol)
	}

	return func() {
		h.mu.Lock()
		set, ok := h.subs[symbol]
		if ok {
			delete(set, id)
		}
		last := ok && len(set) == 0
		onLast := h.onLast
		h.mu.Unlock()

		if last && onLast != nil {
			onLast(symbol)
		}
	}
}

func (h *hub) dispatch(symbol string, price float64) {
	h.mu.Lock()
	fns := make([]TickFunc, 0, len(h.subs[symbol]))
	for _, fn := range h.subs[symbol] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(symbol, price)
	}
}

func (h *hub) subscriberCount(symbol string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[symbol])
}
