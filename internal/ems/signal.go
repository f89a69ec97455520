// Package ems is the signal router: it consumes trade signals from the
// pub/sub channel, validates them against the contract, and dispatches
// to the registered broker adapter for the target venue. Signals that
// fail validation are dropped, never coerced.
package ems

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxAllocationPct caps a single signal at 10% of buying power.
const MaxAllocationPct = 0.10

// AssetClass partitions signals by instrument type.
type AssetClass string

const (
	AssetEquity           AssetClass = "equity"
	AssetOption           AssetClass = "option"
	AssetCrypto           AssetClass = "crypto"
	AssetPredictionMarket AssetClass = "prediction_market"
	AssetSportsBet        AssetClass = "sports_bet"
)

// TargetSystem names the downstream execution engine.
type TargetSystem string

const (
	TargetEquityEngine     TargetSystem = "equity_engine"
	TargetPredictionEngine TargetSystem = "prediction_engine"
)

// TradeSignal is the wire contract on the trade_signals channel.
type TradeSignal struct {
	TargetSystem          TargetSystem `json:"target_system"`
	TargetBrokerage       string       `json:"target_brokerage"`
	AssetClass            AssetClass   `json:"asset_class"`
	TickerOrEvent         string       `json:"ticker_or_event"`
	Action                string       `json:"action"`
	ConfidenceScore       float64      `json:"confidence_score"`
	ProposedAllocationPct float64      `json:"proposed_allocation_pct"`
	AgentReasoning        string       `json:"agent_reasoning"`

	// Optional originating strategy, checked against the kill-switch
	// quarantine set before dispatch.
	SourceStrategy string `json:"source_strategy,omitempty"`

	// Required iff asset_class = option
	StrikePrice float64 `json:"strike_price,omitempty"`
	// Required iff asset_class is option or prediction_market
	ExpirationDate string `json:"expiration_date,omitempty"`
}

var validActions = map[string]bool{
	"buy": true, "sell": true, "hold": true, "short": true, "cover": true,
}

var validAssetClasses = map[AssetClass]bool{
	AssetEquity: true, AssetOption: true, AssetCrypto: true,
	AssetPredictionMarket: true, AssetSportsBet: true,
}

// Validate checks the signal against the contract. Violations reject
// the signal outright.
func (s *TradeSignal) Validate() error {
	if s.TargetSystem != TargetEquityEngine && s.TargetSystem != TargetPredictionEngine {
		return fmt.Errorf("invalid target_system %q", s.TargetSystem)
	}
	if s.TargetBrokerage == "" {
		return fmt.Errorf("target_brokerage is required")
	}
	if !validAssetClasses[s.AssetClass] {
		return fmt.Errorf("invalid asset_class %q", s.AssetClass)
	}
	if strings.TrimSpace(s.TickerOrEvent) == "" {
		return fmt.Errorf("ticker_or_event is required")
	}
	if !validActions[strings.ToLower(s.Action)] {
		return fmt.Errorf("invalid action %q", s.Action)
	}
	if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
		return fmt.Errorf("confidence_score %.3f outside [0,1]", s.ConfidenceScore)
	}
	if s.ProposedAllocationPct < 0 || s.ProposedAllocationPct > MaxAllocationPct {
		return fmt.Errorf("proposed_allocation_pct %.3f outside [0,%.2f]", s.ProposedAllocationPct, MaxAllocationPct)
	}
	if s.AssetClass == AssetOption {
		if s.StrikePrice <= 0 {
			return fmt.Errorf("option signal requires strike_price")
		}
		if s.ExpirationDate == "" {
			return fmt.Errorf("option signal requires expiration_date")
		}
	}
	if s.AssetClass == AssetPredictionMarket && s.ExpirationDate == "" {
		return fmt.Errorf("prediction_market signal requires expiration_date")
	}
	return nil
}

// DecodeSignal deserializes and validates a wire payload.
func DecodeSignal(data []byte) (*TradeSignal, error) {
	var s TradeSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("undecodable trade signal: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
