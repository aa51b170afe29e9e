package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	Port string

	// Account
	UserID              string
	InitialBuyingPower  float64
	DefaultRiskLevel    int
	DefaultMaxPositions int
	WatchedSymbols      []string

	// Market data
	UseMockFeed bool
	QuoteWSURL  string // websocket quote server; empty means mock feed only
	FeedTimeout time.Duration

	// Scheduler intervals
	RefreshInterval  time.Duration
	AnalysisInterval time.Duration
	MonitorInterval  time.Duration

	// Persistence
	DBPath       string
	SnapshotPath string // secondary local cache for crash recovery

	// Risk profile overrides
	RiskProfilesPath string // optional YAML file, empty uses built-in table
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		UserID:              getEnv("ACCOUNT_USER_ID", "default"),
		InitialBuyingPower:  getEnvFloat("INITIAL_BUYING_POWER", 10000.0),
		DefaultRiskLevel:    getEnvInt("DEFAULT_RISK_LEVEL", 3),
		DefaultMaxPositions: getEnvInt("DEFAULT_MAX_POSITIONS", 5),
		WatchedSymbols:      splitAndTrim(getEnv("WATCHED_SYMBOLS", "AAPL,MSFT,GOOGL,TSLA")),
		UseMockFeed:         getEnv("USE_MOCK_FEED", "true") == "true",
		QuoteWSURL:          os.Getenv("QUOTE_WS_URL"),
		FeedTimeout:         getEnvDuration("FEED_TIMEOUT", 5*time.Second),
		RefreshInterval:     getEnvDuration("REFRESH_INTERVAL", 5*time.Second),
		AnalysisInterval:    getEnvDuration("ANALYSIS_INTERVAL", 30*time.Second),
		MonitorInterval:     getEnvDuration("MONITOR_INTERVAL", 10*time.Second),
		DBPath:              getEnv("DB_PATH", "./data/tradepilot.db"),
		SnapshotPath:        getEnv("SNAPSHOT_PATH", "./data/account_snapshot.json"),
		RiskProfilesPath:    os.Getenv("RISK_PROFILES_PATH"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
