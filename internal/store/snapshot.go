package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradepilot/pkg/db"
)

// Snapshot is a point-in-time JSON capture of the account, written beside
// the database after state changes. Recovery reads it when the database
// turns out to be empty.
type Snapshot struct {
	SavedAt   time.Time     `json:"saved_at"`
	Settings  *db.Settings  `json:"settings,omitempty"`
	Positions []db.Position `json:"positions"`
	Balance   *db.Balance   `json:"balance,omitempty"`
}

// SnapshotManager reads and writes the snapshot file.
type SnapshotManager struct {
	path string
}

// NewSnapshotManager creates a manager for the snapshot at path.
func NewSnapshotManager(path string) *SnapshotManager {
	return &SnapshotManager{path: path}
}

// Save writes the snapshot atomically: temp file first, then rename, so a
// crash mid-write never leaves a torn snapshot behind.
func (sm *SnapshotManager) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(sm.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	snap.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := sm.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, sm.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. It returns nil without error when no snapshot
// file exists yet.
func (sm *SnapshotManager) Load() (*Snapshot, error) {
	data, err := os.ReadFile(sm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}
