package db

import "time"

// Settings is the per-account trading configuration row. The engine always
// replaces it as a whole unit.
type Settings struct {
	UserID              string
	RiskLevel           int
	MaxPositions        int
	StopLossEnabled     bool
	StopLossPercent     float64 // 0 means "use risk profile default"
	TakeProfitEnabled   bool
	TakeProfitPercent   float64 // 0 means "use risk profile default"
	Timeframes          string  // comma-separated, e.g. "5m,1h,1d"
	ScalpingMode        bool
	UseHistoricalData   bool
	ContinuousOperation bool
	Symbols             string // comma-separated watchlist
	UpdatedAt           time.Time
}

// Position is an open position row.
type Position struct {
	ID              string
	UserID          string
	Symbol          string
	Qty             int64
	EntryPrice      float64
	CurrentPrice    float64
	StopLossPrice   float64
	TakeProfitPrice float64
	AIManaged       bool
	OpenedAt        time.Time
	UpdatedAt       time.Time
}

// Trade is an immutable executed-trade row; never updated after insert.
type Trade struct {
	ID        string
	UserID    string
	Symbol    string
	Action    string // BUY or SELL
	Qty       int64
	Price     float64
	Total     float64
	Initiator string // AI or MANUAL
	Reason    string
	CreatedAt time.Time
}

// Balance tracks buying power and cumulative realized PnL per account.
type Balance struct {
	UserID      string
	BuyingPower float64
	RealizedPnL float64
	UpdatedAt   time.Time
}
