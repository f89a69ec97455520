package playbook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Watchlist is the observer's symbol universe, loaded from YAML.
type Watchlist struct {
	Symbols []string `yaml:"symbols"`

	// Prediction-market tickers mirrored by the orderbook stream
	PredictionMarkets []string `yaml:"prediction_markets"`

	// Regime inputs, overridable for markets without the defaults
	RegimeProxy string `yaml:"regime_proxy"`
	CreditProxy string `yaml:"credit_proxy"`
	RatesProxy  string `yaml:"rates_proxy"`
}

// LoadWatchlist reads a watchlist file. Missing proxies fall back to
// SPY/JNK/TLT.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	var w Watchlist
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}
	if len(w.Symbols) == 0 {
		return nil, fmt.Errorf("watchlist %s has no symbols", path)
	}

	if w.RegimeProxy == "" {
		w.RegimeProxy = "SPY"
	}
	if w.CreditProxy == "" {
		w.CreditProxy = "JNK"
	}
	if w.RatesProxy == "" {
		w.RatesProxy = "TLT"
	}
	return &w, nil
}
