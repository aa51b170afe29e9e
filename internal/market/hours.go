package market

import (
	"strings"
	"time"
)

// Calendar answers whether trading is currently possible for a symbol.
// Symbols whose market is closed produce no analysis and accept no opens.
type Calendar interface {
	IsOpen(symbol string, at time.Time) bool
}

// EquityCalendar models regular US equity hours (14:30-21:00 UTC, weekdays).
// Crypto pairs trade around the clock and are always open.
type EquityCalendar struct{}

func (EquityCalendar) IsOpen(symbol string, at time.Time) bool {
	if isCrypto(symbol) {
		return true
	}

	utc := at.UTC()
	switch utc.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := utc.Hour()*60 + utc.Minute()
	return minutes >= 14*60+30 && minutes < 21*60
}

func isCrypto(symbol string) bool {
	s := strings.ToUpper(symbol)
	return s == "BTC" || s == "ETH" ||
		strings.HasSuffix(s, "USDT") || strings.HasSuffix(s, "USD") ||
		strings.HasSuffix(s, "-USD")
}

// AlwaysOpen is a calendar for tests and 24/7 venues.
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(string, time.Time) bool { return true }
