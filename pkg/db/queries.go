// Package db provides user-isolated queries over the sqlite account store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// Queries returns the user-scoped query surface for this database.
func (d *Database) Queries() *UserQueries {
	return &UserQueries{db: d.DB}
}

// ----------------------------------------
// Settings
// ----------------------------------------

// GetSettings returns the settings row for a user, or ErrNotFound.
func (q *UserQueries) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT user_id, risk_level, max_positions, stop_loss_enabled, stop_loss_percent,
		       take_profit_enabled, take_profit_percent, timeframes, scalping_mode,
		       use_historical_data, continuous_operation, symbols, updated_at
		FROM settings
		WHERE user_id = ?
	`, userID)

	var (
		s                                      Settings
		slEnabled, tpEnabled, scalping         int
		useHist, continuous                    int
	)
	err := row.Scan(&s.UserID, &s.RiskLevel, &s.MaxPositions, &slEnabled, &s.StopLossPercent,
		&tpEnabled, &s.TakeProfitPercent, &s.Timeframes, &scalping,
		&useHist, &continuous, &s.Symbols, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}

	s.StopLossEnabled = slEnabled == 1
	s.TakeProfitEnabled = tpEnabled == 1
	s.ScalpingMode = scalping == 1
	s.UseHistoricalData = useHist == 1
	s.ContinuousOperation = continuous == 1
	return &s, nil
}

// SaveSettings upserts the whole settings row for a user.
func (q *UserQueries) SaveSettings(ctx context.Context, s Settings) error {
	if s.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, risk_level, max_positions, stop_loss_enabled,
		                      stop_loss_percent, take_profit_enabled, take_profit_percent,
		                      timeframes, scalping_mode, use_historical_data,
		                      continuous_operation, symbols, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			risk_level = excluded.risk_level,
			max_positions = excluded.max_positions,
			stop_loss_enabled = excluded.stop_loss_enabled,
			stop_loss_percent = excluded.stop_loss_percent,
			take_profit_enabled = excluded.take_profit_enabled,
			take_profit_percent = excluded.take_profit_percent,
			timeframes = excluded.timeframes,
			scalping_mode = excluded.scalping_mode,
			use_historical_data = excluded.use_historical_data,
			continuous_operation = excluded.continuous_operation,
			symbols = excluded.symbols,
			updated_at = CURRENT_TIMESTAMP
	`, s.UserID, s.RiskLevel, s.MaxPositions, boolToInt(s.StopLossEnabled),
		s.StopLossPercent, boolToInt(s.TakeProfitEnabled), s.TakeProfitPercent,
		s.Timeframes, boolToInt(s.ScalpingMode), boolToInt(s.UseHistoricalData),
		boolToInt(s.ContinuousOperation), s.Symbols)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ----------------------------------------
// Positions
// ----------------------------------------

// GetPositionsByUser returns all open positions for a user.
func (q *UserQueries) GetPositionsByUser(ctx context.Context, userID string) ([]Position, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, qty, entry_price, current_price,
		       stop_loss_price, take_profit_price, ai_managed, opened_at, updated_at
		FROM positions
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		var aiManaged int
		if err := rows.Scan(&p.ID, &p.UserID, &p.Symbol, &p.Qty, &p.EntryPrice,
			&p.CurrentPrice, &p.StopLossPrice, &p.TakeProfitPrice, &aiManaged,
			&p.OpenedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.AIManaged = aiManaged == 1
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertPosition creates or updates an open position row.
func (q *UserQueries) UpsertPosition(ctx context.Context, p Position) error {
	if p.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO positions (id, user_id, symbol, qty, entry_price, current_price,
		                       stop_loss_price, take_profit_price, ai_managed,
		                       opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			qty = excluded.qty,
			current_price = excluded.current_price,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.UserID, p.Symbol, p.Qty, p.EntryPrice, p.CurrentPrice,
		p.StopLossPrice, p.TakeProfitPrice, boolToInt(p.AIManaged), p.OpenedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// DeletePosition removes a closed position row. Deleting a row that is already
// gone is not an error; close can race a prior close.
func (q *UserQueries) DeletePosition(ctx context.Context, userID, positionID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		DELETE FROM positions WHERE id = ? AND user_id = ?
	`, positionID, userID)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// ----------------------------------------
// Trades
// ----------------------------------------

// CreateTrade appends an immutable trade row.
func (q *UserQueries) CreateTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trades (id, user_id, symbol, action, qty, price, total,
		                    initiator, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Symbol, t.Action, t.Qty, t.Price, t.Total,
		t.Initiator, t.Reason, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create trade: %w", err)
	}
	return nil
}

// GetTradesByUser returns the most recent trades for a user.
func (q *UserQueries) GetTradesByUser(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, action, qty, price, total, initiator,
		       COALESCE(reason, ''), created_at
		FROM trades
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Action, &t.Qty, &t.Price,
			&t.Total, &t.Initiator, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountTradesByUser reports how many trades exist for a user. Used by the
// startup recovery path to decide whether the snapshot cache should be imported.
func (q *UserQueries) CountTradesByUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}

	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

// ----------------------------------------
// Balances
// ----------------------------------------

// GetBalance returns the balance row for a user, or ErrNotFound.
func (q *UserQueries) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	var b Balance
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, buying_power, realized_pnl, updated_at
		FROM balances WHERE user_id = ?
	`, userID).Scan(&b.UserID, &b.BuyingPower, &b.RealizedPnL, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return &b, nil
}

// SaveBalance upserts the balance row for a user.
func (q *UserQueries) SaveBalance(ctx context.Context, b Balance) error {
	if b.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, buying_power, realized_pnl, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			buying_power = excluded.buying_power,
			realized_pnl = excluded.realized_pnl,
			updated_at = CURRENT_TIMESTAMP
	`, b.UserID, b.BuyingPower, b.RealizedPnL)
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
