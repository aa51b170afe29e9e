package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// quoteServer accepts one websocket client and forwards every frame it can
// parse. Frames torn by interleaved writers fail to parse and end the read
// loop, so the op count below also guards write serialization.
func quoteServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	ops := make(chan string, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var op streamOp
			if err := conn.ReadJSON(&op); err != nil {
				return
			}
			ops <- op.Op + " " + op.Symbol
		}
	}))
	return srv, ops
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamFeedConcurrentSubscribes(t *testing.T) {
	srv, ops := quoteServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewStreamFeed(wsURL(srv))
	unsubSeed := feed.Subscribe("SEED", func(string, float64) {})
	defer unsubSeed()
	feed.Start(ctx)

	// The seed subscription is re-issued once the dial completes.
	select {
	case got := <-ops:
		if got != "subscribe SEED" {
			t.Fatalf("first op = %q, want subscribe SEED", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the dial to complete")
	}

	symbols := []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "NVDA", "META", "SPY"}
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			unsub := feed.Subscribe(symbol, func(string, float64) {})
			unsub()
		}(symbol)
	}
	wg.Wait()

	// One subscribe and one unsubscribe per symbol, all intact.
	want := len(symbols) * 2
	for i := 0; i < want; i++ {
		select {
		case <-ops:
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d ops, want %d", i, want)
		}
	}
}

func TestStreamFeedDeliversTicks(t *testing.T) {
	ticks := make(chan float64, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var op streamOp
		if err := conn.ReadJSON(&op); err != nil {
			return
		}
		_ = conn.WriteJSON(streamTick{Symbol: op.Symbol, Price: 123.45})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewStreamFeed(wsURL(srv))
	unsub := feed.Subscribe("AAPL", func(_ string, price float64) { ticks <- price })
	defer unsub()
	feed.Start(ctx)

	select {
	case price := <-ticks:
		if price != 123.45 {
			t.Errorf("tick price = %v, want 123.45", price)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a tick")
	}

	if price, err := feed.CurrentPrice(context.Background(), "AAPL"); err != nil || price != 123.45 {
		t.Errorf("CurrentPrice = %v, %v, want 123.45, nil", price, err)
	}
}
