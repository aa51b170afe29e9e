package store

import (
	"context"
	"fmt"

	"tradepilot/pkg/db"
)

// SQLiteStore binds the shared database to a single user so callers upstream
// never pass userID around. Every query stays scoped to that user.
type SQLiteStore struct {
	database *db.Database
	queries  *db.UserQueries
	userID   string
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path, userID string) (*SQLiteStore, error) {
	if userID == "" {
		return nil, db.ErrUserIDRequired
	}
	database, err := db.New(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &SQLiteStore{
		database: database,
		queries:  database.Queries(),
		userID:   userID,
	}, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, set db.Settings) error {
	set.UserID = s.userID
	return s.queries.SaveSettings(ctx, set)
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (*db.Settings, error) {
	return s.queries.GetSettings(ctx, s.userID)
}

func (s *SQLiteStore) SavePosition(ctx context.Context, p db.Position) error {
	p.UserID = s.userID
	return s.queries.UpsertPosition(ctx, p)
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, id string) error {
	return s.queries.DeletePosition(ctx, s.userID, id)
}

func (s *SQLiteStore) LoadPositions(ctx context.Context) ([]db.Position, error) {
	return s.queries.GetPositionsByUser(ctx, s.userID)
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, t db.Trade) error {
	t.UserID = s.userID
	return s.queries.CreateTrade(ctx, t)
}

func (s *SQLiteStore) LoadTrades(ctx context.Context, limit int) ([]db.Trade, error) {
	return s.queries.GetTradesByUser(ctx, s.userID, limit)
}

func (s *SQLiteStore) TradeCount(ctx context.Context) (int, error) {
	return s.queries.CountTradesByUser(ctx, s.userID)
}

func (s *SQLiteStore) SaveBalance(ctx context.Context, b db.Balance) error {
	b.UserID = s.userID
	return s.queries.SaveBalance(ctx, b)
}

func (s *SQLiteStore) LoadBalance(ctx context.Context) (*db.Balance, error) {
	return s.queries.GetBalance(ctx, s.userID)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.database.Close()
}
