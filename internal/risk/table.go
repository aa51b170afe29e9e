package risk

import (
	"fmt"
	"math"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Table resolves risk levels to profiles. Profiles are read-only reference
// data; overrides are loaded once at startup, before the engine starts.
type Table struct {
	mu       sync.RWMutex
	profiles map[int]Profile
}

// NewTable builds a table from the built-in defaults.
func NewTable() *Table {
	profiles := make(map[int]Profile, len(defaultProfiles))
	for level, p := range defaultProfiles {
		profiles[level] = p
	}
	return &Table{profiles: profiles}
}

// ProfileFor returns the profile for a level, clamping out-of-range input.
func (t *Table) ProfileFor(level int) Profile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profiles[ClampLevel(level)]
}

// profilesFile is the top-level YAML structure for overrides.
type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles merges profile overrides from a YAML file into the table.
// Unknown levels are rejected; levels not present in the file keep defaults.
func (t *Table) LoadProfiles(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read risk profiles: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse risk profiles: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range file.Profiles {
		if p.Level < 1 || p.Level > 5 {
			return fmt.Errorf("risk profile level %d out of range", p.Level)
		}
		def := t.profiles[p.Level]
		if p.Name == "" {
			p.Name = def.Name
		}
		if p.MaxPositions <= 0 {
			p.MaxPositions = def.MaxPositions
		}
		if p.StopLossPercent <= 0 {
			p.StopLossPercent = def.StopLossPercent
		}
		if p.TakeProfitPercent <= 0 {
			p.TakeProfitPercent = def.TakeProfitPercent
		}
		if p.MaxLeverage <= 0 {
			p.MaxLeverage = def.MaxLeverage
		}
		if len(p.AllowedStrategies) == 0 {
			p.AllowedStrategies = def.AllowedStrategies
		}
		if p.ConfidenceThreshold <= 0 {
			p.ConfidenceThreshold = def.ConfidenceThreshold
		}
		t.profiles[p.Level] = p
	}
	return nil
}

// basePositionFraction is the share of buying power committed at risk level 3.
const basePositionFraction = 0.10

// PositionQuantity sizes a new position: higher risk levels commit
// proportionally more buying power, floor-divided by price, minimum one share.
func PositionQuantity(buyingPower float64, level int, price float64) int64 {
	if price <= 0 || buyingPower <= 0 {
		return 0
	}
	level = ClampLevel(level)
	budget := buyingPower * basePositionFraction * (float64(level) / 3.0)
	qty := int64(math.Floor(budget / price))
	if qty < 1 {
		qty = 1
	}
	return qty
}
