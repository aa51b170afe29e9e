// Package store persists account state. The SQLite database is the durable
// record; a JSON snapshot beside it gives crash recovery a fast local copy
// of the live account when the database is empty or freshly created.
package store

import (
	"context"

	"tradepilot/pkg/db"
)

// Store is the persistence surface the engine and executor write through.
// Implementations must be safe for concurrent use.
type Store interface {
	SaveSettings(ctx context.Context, s db.Settings) error
	LoadSettings(ctx context.Context) (*db.Settings, error)

	SavePosition(ctx context.Context, p db.Position) error
	DeletePosition(ctx context.Context, id string) error
	LoadPositions(ctx context.Context) ([]db.Position, error)

	SaveTrade(ctx context.Context, t db.Trade) error
	LoadTrades(ctx context.Context, limit int) ([]db.Trade, error)
	TradeCount(ctx context.Context) (int, error)

	SaveBalance(ctx context.Context, b db.Balance) error
	LoadBalance(ctx context.Context) (*db.Balance, error)

	Close() error
}
