package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamFeed consumes a quote-server websocket pushing JSON ticks of the form
// {"symbol":"AAPL","price":175.31}. The engine subscribes per symbol; the
// feed holds one shared connection and re-dials on failure.
type StreamFeed struct {
	url    string
	dialer *websocket.Dialer
	hub    *hub

	mu     sync.Mutex
	conn   *websocket.Conn
	prices map[string]float64

	// writeMu serializes frame writes; the websocket permits only one
	// concurrent writer.
	writeMu sync.Mutex
}

type streamTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type streamOp struct {
	Op     string `json:"op"` // subscribe or unsubscribe
	Symbol string `json:"symbol"`
}

// NewStreamFeed builds a websocket feed against a quote server URL.
func NewStreamFeed(url string) *StreamFeed {
	f := &StreamFeed{
		url:    url,
		dialer: websocket.DefaultDialer,
		hub:    newHub(),
		prices: make(map[string]float64),
	}
	f.hub.onFirst = func(symbol string) { f.sendOp("subscribe", symbol) }
	f.hub.onLast = func(symbol string) { f.sendOp("unsubscribe", symbol) }
	return f
}

// Subscribe registers a push callback for the symbol. The first subscriber
// for a symbol triggers an upstream subscribe; the last one unsubscribes.
func (f *StreamFeed) Subscribe(symbol string, fn TickFunc) func() {
	return f.hub.subscribe(symbol, fn)
}

// CurrentPrice returns the last streamed price for the symbol.
func (f *StreamFeed) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no stream price for %s", symbol)
	}
	return p, nil
}

// Start dials the quote server and keeps reading until the context ends,
// re-dialing with a capped backoff after connection loss.
func (f *StreamFeed) Start(ctx context.Context) {
	go func() {
		backoff := time.Second
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := f.run(ctx); err != nil {
				log.Printf("stream feed: connection lost: %v", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (f *StreamFeed) run(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial quote server: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		_ = conn.Close()
	}()

	// Re-issue subscriptions for symbols that already have listeners.
	f.hub.mu.Lock()
	symbols := make([]string, 0, len(f.hub.subs))
	for symbol, set := range f.hub.subs {
		if len(set) > 0 {
			symbols = append(symbols, symbol)
		}
	}
	f.hub.mu.Unlock()
	for _, symbol := range symbols {
		f.sendOp("subscribe", symbol)
	}

	go func() {
		<-ctx.Done()
		f.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.writeMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		var tick streamTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			log.Printf("stream feed: parse error: %v", err)
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}

		f.mu.Lock()
		f.prices[tick.Symbol] = tick.Price
		f.mu.Unlock()

		f.hub.dispatch(tick.Symbol, tick.Price)
	}
}

func (f *StreamFeed) sendOp(op, symbol string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return // re-issued on next dial
	}
	f.writeMu.Lock()
	err := conn.WriteJSON(streamOp{Op: op, Symbol: symbol})
	f.writeMu.Unlock()
	if err != nil {
		log.Printf("stream feed: %s %s failed: %v", op, symbol, err)
	}
}
