package store

import (
	"context"
	"errors"
	"log"

	"tradepilot/pkg/db"
)

// RecoveredState is everything startup recovery hands back to the engine.
type RecoveredState struct {
	Settings  *db.Settings
	Positions []db.Position
	Balance   *db.Balance
	// FromSnapshot is true when the database was empty and the local
	// snapshot supplied the state.
	FromSnapshot bool
}

// Recover loads account state at startup. The database wins whenever it has
// a trade history; the snapshot is only trusted for a store that has never
// recorded a trade, which is what a wiped or brand-new database looks like.
// Recovery runs exactly once, before the engine starts.
func Recover(ctx context.Context, s Store, snapshots *SnapshotManager) (RecoveredState, error) {
	count, err := s.TradeCount(ctx)
	if err != nil {
		return RecoveredState{}, err
	}

	if count == 0 && snapshots != nil {
		snap, err := snapshots.Load()
		if err != nil {
			log.Printf("recovery: snapshot unreadable, continuing with database state: %v", err)
		} else if snap != nil && (len(snap.Positions) > 0 || snap.Balance != nil || snap.Settings != nil) {
			log.Printf("recovery: empty database, importing snapshot from %s (%d positions)",
				snap.SavedAt.Format("2006-01-02 15:04:05"), len(snap.Positions))
			if err := importSnapshot(ctx, s, snap); err != nil {
				return RecoveredState{}, err
			}
			return RecoveredState{
				Settings:     snap.Settings,
				Positions:    snap.Positions,
				Balance:      snap.Balance,
				FromSnapshot: true,
			}, nil
		}
	}

	state := RecoveredState{}
	if state.Settings, err = loadOptional(s.LoadSettings, ctx); err != nil {
		return RecoveredState{}, err
	}
	if state.Positions, err = s.LoadPositions(ctx); err != nil {
		return RecoveredState{}, err
	}
	if state.Balance, err = loadOptional(s.LoadBalance, ctx); err != nil {
		return RecoveredState{}, err
	}
	return state, nil
}

// importSnapshot writes snapshot contents back into the store so the
// database and snapshot agree again.
func importSnapshot(ctx context.Context, s Store, snap *Snapshot) error {
	if snap.Settings != nil {
		if err := s.SaveSettings(ctx, *snap.Settings); err != nil {
			return err
		}
	}
	for _, p := range snap.Positions {
		if err := s.SavePosition(ctx, p); err != nil {
			return err
		}
	}
	if snap.Balance != nil {
		if err := s.SaveBalance(ctx, *snap.Balance); err != nil {
			return err
		}
	}
	return nil
}

func loadOptional[T any](load func(context.Context) (*T, error), ctx context.Context) (*T, error) {
	v, err := load(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
