package market

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// MockFeed generates synthetic random-walk ticks for local development and
// tests. Prices start from the static fallback table when available.
type MockFeed struct {
	Step     float64
	Interval time.Duration

	hub *hub

	mu     sync.Mutex
	prices map[string]float64
	failed bool // when set, CurrentPrice errors to simulate an outage
}

// NewMockFeed creates a mock feed with a default step and interval.
func NewMockFeed() *MockFeed {
	return &MockFeed{
		Step:     0.5,
		Interval: time.Second,
		hub:      newHub(),
		prices:   make(map[string]float64),
	}
}

// Subscribe registers a push callback; ticks start flowing once Start runs.
func (m *MockFeed) Subscribe(symbol string, fn TickFunc) func() {
	m.mu.Lock()
	m.priceLocked(symbol) // prime the walk for this symbol
	m.mu.Unlock()
	return m.hub.subscribe(symbol, fn)
}

// CurrentPrice returns the current synthetic price for the symbol.
func (m *MockFeed) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return 0, errors.New("mock feed unavailable")
	}
	return m.priceLocked(symbol), nil
}

// SetFailed toggles simulated feed outage for tests.
func (m *MockFeed) SetFailed(failed bool) {
	m.mu.Lock()
	m.failed = failed
	m.mu.Unlock()
}

// SetPrice pins a symbol's price; subsequent walks start from it.
func (m *MockFeed) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

func (m *MockFeed) priceLocked(symbol string) float64 {
	p, ok := m.prices[symbol]
	if !ok {
		if fp, found := FallbackPrice(symbol); found {
			p = fp
		} else {
			p = 100.0
		}
		m.prices[symbol] = p
	}
	return p
}

// Start begins the random walk, pushing a tick per subscribed symbol each
// interval until the context is cancelled.
func (m *MockFeed) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.walk()
			}
		}
	}()
}

func (m *MockFeed) walk() {
	m.mu.Lock()
	updates := make(map[string]float64)
	for symbol := range m.prices {
		if m.hub.subscriberCount(symbol) == 0 {
			continue
		}
		price := m.priceLocked(symbol) + (rand.Float64()*2-1)*m.Step
		if price < 0.01 {
			price = 0.01
		}
		m.prices[symbol] = price
		updates[symbol] = price
	}
	m.mu.Unlock()

	for symbol, price := range updates {
		m.hub.dispatch(symbol, price)
	}
}
