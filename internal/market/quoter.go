package market

import (
	"context"
	"log"
	"time"

	"tradepilot/pkg/cache"
)

// fallbackPrices is the static price table consulted when the feed is down
// and no live price has been seen yet for a symbol.
var fallbackPrices = map[string]float64{
	"AAPL":  175.00,
	"MSFT":  410.00,
	"GOOGL": 140.00,
	"AMZN":  180.00,
	"TSLA":  250.00,
	"NVDA":  120.00,
	"META":  480.00,
	"SPY":   520.00,
	"QQQ":   440.00,
	"BTC":   65000.00,
	"ETH":   3400.00,
}

// FallbackPrice returns the static table entry for a symbol, if any.
func FallbackPrice(symbol string) (float64, bool) {
	p, ok := fallbackPrices[symbol]
	return p, ok
}

// Quoter wraps a Feed with timeout protection and last-known-price fallback.
// A feed failure degrades to the last live price, then to the static table,
// and only then to ErrNoPrice; scheduler ticks never see a feed error.
type Quoter struct {
	feed      Feed
	timeout   time.Duration
	lastKnown *cache.ShardedPriceCache
}

// NewQuoter wraps a feed. The timeout guards every pull request.
func NewQuoter(feed Feed, timeout time.Duration) *Quoter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Quoter{
		feed:      feed,
		timeout:   timeout,
		lastKnown: cache.NewShardedPriceCache(),
	}
}

// Record stores a live price observation (push ticks go through here too).
func (q *Quoter) Record(symbol string, price float64) {
	if price <= 0 {
		return
	}
	q.lastKnown.Set(symbol, price)
}

// Price returns the freshest price available for a symbol. On feed failure it
// degrades through last-known and fallback tiers instead of erroring out.
func (q *Quoter) Price(ctx context.Context, symbol string) (float64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	if q.feed != nil {
		price, err := q.feed.CurrentPrice(fetchCtx, symbol)
		if err == nil && price > 0 {
			q.Record(symbol, price)
			return price, nil
		}
		if err != nil {
			log.Printf("quoter: feed error for %s, using fallback: %v", symbol, err)
		}
	}

	if last, ok := q.lastKnown.Get(symbol); ok && last > 0 {
		return last, nil
	}

	if p, ok := FallbackPrice(symbol); ok {
		return p, nil
	}
	return 0, ErrNoPrice
}

// LastKnown returns the cached live price for a symbol, if one was seen.
func (q *Quoter) LastKnown(symbol string) (float64, bool) {
	return q.lastKnown.Get(symbol)
}
