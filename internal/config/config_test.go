package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err) // explicit path must exist

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "PAPER", cfg.App.Environment)
	assert.True(t, cfg.Trading.PaperMode)
	assert.Equal(t, "paper", cfg.Trading.ActiveBroker)
	assert.Equal(t, 70, cfg.Trading.GlobalMinScore)
	assert.Equal(t, 30*time.Second, cfg.Trading.ScanInterval)
	assert.Equal(t, 300*time.Second, cfg.Execution.MinHold)
	assert.Equal(t, 4*time.Hour, cfg.Execution.BlacklistTTL)
	assert.Equal(t, 0.8, cfg.Risk.HeatLimit)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
trading:
  global_min_score: 85
  max_budget: 2500
risk:
  level: MODERATE
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 85, cfg.Trading.GlobalMinScore)
	assert.Equal(t, 2500.0, cfg.Trading.MaxBudget)
	assert.Equal(t, "MODERATE", cfg.Risk.Level)
	// untouched sections keep defaults
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func validConfig() *Config {
	cfg, _ := Load("")
	return cfg
}

func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "STAGING"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.environment")
}

func TestValidateRejectsPaperModeInLive(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "LIVE"
	cfg.Trading.PaperMode = true
	cfg.Trading.ActiveBroker = "binance"
	cfg.Brokers = map[string]BrokerConfig{"binance": {APIKey: "real-key"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading.paper_mode")
}

func TestValidateLiveRequiresRealBroker(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "LIVE"
	cfg.Trading.PaperMode = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active_broker")
}

func TestValidateLiveRejectsPlaceholderKey(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "LIVE"
	cfg.Trading.PaperMode = false
	cfg.Trading.ActiveBroker = "binance"
	cfg.Brokers = map[string]BrokerConfig{"binance": {APIKey: "YOUR_API_KEY"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestValidateRejectsBadRiskLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.Level = "YOLO"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk.level")
}

func TestValidateRejectsExcessiveSlippage(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.MaxSlippagePct = 0.2
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_slippage_pct")
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.local", Port: 5433, User: "pilot",
		Password: "secret", Database: "marketpilot", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.local port=5433 user=pilot password=secret dbname=marketpilot sslmode=require",
		db.GetDSN())
}

func TestGetRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache.local", Port: 6380}
	assert.Equal(t, "cache.local:6380", r.GetRedisAddr())
}
