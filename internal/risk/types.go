package risk

import "strings"

// Profile is the immutable parameter set indexed by risk level (1-5).
type Profile struct {
	Level               int      `yaml:"level"`
	Name                string   `yaml:"name"`
	MaxPositions        int      `yaml:"max_positions"`
	StopLossPercent     float64  `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64  `yaml:"take_profit_percent"`
	MaxLeverage         float64  `yaml:"max_leverage"`
	AllowedStrategies   []string `yaml:"allowed_strategies"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
}

// defaultProfiles is the built-in risk table. A YAML file can override it at
// startup (see LoadProfiles); it is never mutated afterwards.
var defaultProfiles = map[int]Profile{
	1: {Level: 1, Name: "Conservative", MaxPositions: 2, StopLossPercent: 2.0, TakeProfitPercent: 2.5,
		MaxLeverage: 1, AllowedStrategies: []string{"ma_cross"}, ConfidenceThreshold: 0.75},
	2: {Level: 2, Name: "Cautious", MaxPositions: 3, StopLossPercent: 3.0, TakeProfitPercent: 4.0,
		MaxLeverage: 1, AllowedStrategies: []string{"ma_cross", "rsi"}, ConfidenceThreshold: 0.70},
	3: {Level: 3, Name: "Moderate", MaxPositions: 5, StopLossPercent: 4.0, TakeProfitPercent: 6.0,
		MaxLeverage: 2, AllowedStrategies: []string{"ma_cross", "rsi"}, ConfidenceThreshold: 0.65},
	4: {Level: 4, Name: "Aggressive", MaxPositions: 7, StopLossPercent: 6.0, TakeProfitPercent: 9.0,
		MaxLeverage: 3, AllowedStrategies: []string{"ma_cross", "rsi"}, ConfidenceThreshold: 0.60},
	5: {Level: 5, Name: "Speculative", MaxPositions: 10, StopLossPercent: 8.0, TakeProfitPercent: 12.0,
		MaxLeverage: 5, AllowedStrategies: []string{"ma_cross", "rsi"}, ConfidenceThreshold: 0.55},
}

// scalpThresholds maps risk level to the profit percent at which scalping mode
// closes a winning position before take-profit is reached.
var scalpThresholds = map[int]float64{
	1: 0.5,
	2: 0.7,
	3: 1.0,
	4: 1.5,
	5: 2.0,
}

// ClampLevel forces a risk level into the valid 1-5 range.
func ClampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}

// ScalpThreshold returns the scalping profit threshold (percent) for a level.
func ScalpThreshold(level int) float64 {
	return scalpThresholds[ClampLevel(level)]
}

// Settings is the per-account trading configuration. It is only ever replaced
// as a whole unit while the scheduler is stopped, never mutated field-by-field
// under a running tick.
type Settings struct {
	RiskLevel           int
	MaxPositions        int
	StopLossEnabled     bool
	StopLossPercent     float64 // 0 means "use the risk profile default"
	TakeProfitEnabled   bool
	TakeProfitPercent   float64 // 0 means "use the risk profile default"
	Timeframes          []string
	ScalpingMode        bool
	UseHistoricalData   bool
	ContinuousOperation bool
	Symbols             []string
}

// DefaultSettings builds a sane configuration around a risk level.
func DefaultSettings(level int, symbols []string) Settings {
	level = ClampLevel(level)
	return Settings{
		RiskLevel:         level,
		MaxPositions:      defaultProfiles[level].MaxPositions,
		StopLossEnabled:   true,
		TakeProfitEnabled: true,
		Timeframes:        []string{"5m", "1h", "1d"},
		Symbols:           append([]string(nil), symbols...),
	}
}

// Normalize repairs out-of-range values after a merge or a load from disk.
func (s *Settings) Normalize() {
	s.RiskLevel = ClampLevel(s.RiskLevel)
	if s.MaxPositions <= 0 {
		s.MaxPositions = defaultProfiles[s.RiskLevel].MaxPositions
	}
	if len(s.Timeframes) == 0 {
		s.Timeframes = []string{"5m", "1h", "1d"}
	}
}

// EffectiveStopLossPercent resolves the user override against the profile.
func (s Settings) EffectiveStopLossPercent(p Profile) float64 {
	if s.StopLossPercent > 0 {
		return s.StopLossPercent
	}
	return p.StopLossPercent
}

// EffectiveTakeProfitPercent resolves the user override against the profile.
func (s Settings) EffectiveTakeProfitPercent(p Profile) float64 {
	if s.TakeProfitPercent > 0 {
		return s.TakeProfitPercent
	}
	return p.TakeProfitPercent
}

// WatchesSymbol reports whether the symbol is on the settings watchlist.
func (s Settings) WatchesSymbol(symbol string) bool {
	for _, sym := range s.Symbols {
		if strings.EqualFold(sym, symbol) {
			return true
		}
	}
	return false
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	RiskLevel           *int      `json:"risk_level"`
	MaxPositions        *int      `json:"max_positions"`
	StopLossEnabled     *bool     `json:"stop_loss_enabled"`
	StopLossPercent     *float64  `json:"stop_loss_percent"`
	TakeProfitEnabled   *bool     `json:"take_profit_enabled"`
	TakeProfitPercent   *float64  `json:"take_profit_percent"`
	Timeframes          *[]string `json:"timeframes"`
	ScalpingMode        *bool     `json:"scalping_mode"`
	UseHistoricalData   *bool     `json:"use_historical_data"`
	ContinuousOperation *bool     `json:"continuous_operation"`
	Symbols             *[]string `json:"symbols"`
}

// Apply merges the patch into a copy of cur and returns it normalized.
func (p SettingsPatch) Apply(cur Settings) Settings {
	next := cur
	next.Timeframes = append([]string(nil), cur.Timeframes...)
	next.Symbols = append([]string(nil), cur.Symbols...)

	if p.RiskLevel != nil {
		next.RiskLevel = *p.RiskLevel
	}
	if p.MaxPositions != nil {
		next.MaxPositions = *p.MaxPositions
	}
	if p.StopLossEnabled != nil {
		next.StopLossEnabled = *p.StopLossEnabled
	}
	if p.StopLossPercent != nil {
		next.StopLossPercent = *p.StopLossPercent
	}
	if p.TakeProfitEnabled != nil {
		next.TakeProfitEnabled = *p.TakeProfitEnabled
	}
	if p.TakeProfitPercent != nil {
		next.TakeProfitPercent = *p.TakeProfitPercent
	}
	if p.Timeframes != nil {
		next.Timeframes = append([]string(nil), (*p.Timeframes)...)
	}
	if p.ScalpingMode != nil {
		next.ScalpingMode = *p.ScalpingMode
	}
	if p.UseHistoricalData != nil {
		next.UseHistoricalData = *p.UseHistoricalData
	}
	if p.ContinuousOperation != nil {
		next.ContinuousOperation = *p.ContinuousOperation
	}
	if p.Symbols != nil {
		next.Symbols = append([]string(nil), (*p.Symbols)...)
	}

	next.Normalize()
	return next
}
