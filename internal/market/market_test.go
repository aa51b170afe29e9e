package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQuoterPrefersLiveFeed(t *testing.T) {
	feed := NewMockFeed()
	feed.SetPrice("AAPL", 123.45)
	q := NewQuoter(feed, time.Second)

	price, err := q.Price(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if price != 123.45 {
		t.Errorf("price = %v, want 123.45", price)
	}
}

func TestQuoterDegradesToLastKnown(t *testing.T) {
	feed := NewMockFeed()
	feed.SetPrice("AAPL", 150)
	q := NewQuoter(feed, time.Second)

	// Seed last-known through a successful pull, then fail the feed.
	if _, err := q.Price(context.Background(), "AAPL"); err != nil {
		t.Fatalf("seed pull failed: %v", err)
	}
	feed.SetFailed(true)

	price, err := q.Price(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Price during outage failed: %v", err)
	}
	if price != 150 {
		t.Errorf("price = %v, want last-known 150", price)
	}
}

func TestQuoterDegradesToFallbackTable(t *testing.T) {
	feed := NewMockFeed()
	feed.SetFailed(true)
	q := NewQuoter(feed, time.Second)

	// Never saw a live AAPL price; the static table answers.
	price, err := q.Price(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	want, _ := FallbackPrice("AAPL")
	if price != want {
		t.Errorf("price = %v, want fallback %v", price, want)
	}

	// Unknown symbol with no price anywhere: ErrNoPrice.
	if _, err := q.Price(context.Background(), "ZZZZ"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("got %v, want ErrNoPrice", err)
	}
}

func TestQuoterRecord(t *testing.T) {
	q := NewQuoter(nil, time.Second)

	q.Record("AAPL", 99)
	if p, ok := q.LastKnown("AAPL"); !ok || p != 99 {
		t.Errorf("LastKnown = %v/%v, want 99/true", p, ok)
	}

	// Garbage observations are dropped.
	q.Record("AAPL", -1)
	if p, _ := q.LastKnown("AAPL"); p != 99 {
		t.Errorf("negative Record overwrote price: %v", p)
	}
}

func TestMockFeedPushesTicks(t *testing.T) {
	feed := NewMockFeed()
	feed.Interval = 5 * time.Millisecond
	feed.SetPrice("AAPL", 100)

	var mu sync.Mutex
	var got []float64
	unsub := feed.Subscribe("AAPL", func(symbol string, price float64) {
		mu.Lock()
		got = append(got, price)
		mu.Unlock()
	})
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d ticks arrived", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHubRefcounting(t *testing.T) {
	h := newHub()

	var firsts, lasts []string
	h.onFirst = func(s string) { firsts = append(firsts, s) }
	h.onLast = func(s string) { lasts = append(lasts, s) }

	u1 := h.subscribe("AAPL", func(string, float64) {})
	u2 := h.subscribe("AAPL", func(string, float64) {})

	if len(firsts) != 1 {
		t.Errorf("onFirst fired %d times, want 1", len(firsts))
	}

	u1()
	if len(lasts) != 0 {
		t.Error("onLast fired while a subscriber remains")
	}
	u2()
	if len(lasts) != 1 || lasts[0] != "AAPL" {
		t.Errorf("onLast = %v, want [AAPL]", lasts)
	}
}

func TestEquityCalendar(t *testing.T) {
	cal := EquityCalendar{}

	tests := []struct {
		name   string
		symbol string
		at     time.Time
		want   bool
	}{
		{"weekday_open", "AAPL", time.Date(2026, time.August, 31, 15, 0, 0, 0, time.UTC), true},
		{"weekday_before_open", "AAPL", time.Date(2026, time.August, 31, 14, 0, 0, 0, time.UTC), false},
		{"weekday_at_open", "AAPL", time.Date(2026, time.August, 31, 14, 30, 0, 0, time.UTC), true},
		{"weekday_at_close", "AAPL", time.Date(2026, time.August, 31, 21, 0, 0, 0, time.UTC), false},
		{"saturday", "AAPL", time.Date(2026, time.August, 29, 15, 0, 0, 0, time.UTC), false},
		{"sunday", "AAPL", time.Date(2026, time.August, 30, 15, 0, 0, 0, time.UTC), false},
		{"crypto_weekend", "BTC", time.Date(2026, time.August, 29, 3, 0, 0, 0, time.UTC), true},
		{"crypto_pair_weekend", "ETH-USD", time.Date(2026, time.August, 30, 3, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsOpen(tt.symbol, tt.at); got != tt.want {
				t.Errorf("IsOpen(%s, %s) = %v, want %v", tt.symbol, tt.at, got, tt.want)
			}
		})
	}
}
