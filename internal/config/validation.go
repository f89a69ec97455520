package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateBrokers()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	switch c.App.Environment {
	case "PAPER", "LIVE":
	default:
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Environment must be PAPER or LIVE, got %q", c.App.Environment),
		})
	}

	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	if c.Trading.GlobalMinScore < 0 || c.Trading.GlobalMinScore > 100 {
		errors = append(errors, ValidationError{
			Field:   "trading.global_min_score",
			Message: fmt.Sprintf("Global minimum score must be in [0, 100], got %d", c.Trading.GlobalMinScore),
		})
	}

	if c.Trading.ScanInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.scan_interval",
			Message: "Scan interval must be positive",
		})
	}

	if c.App.Environment == "LIVE" && c.Trading.PaperMode {
		errors = append(errors, ValidationError{
			Field:   "trading.paper_mode",
			Message: "Paper mode cannot be enabled in LIVE environment",
		})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	switch c.Risk.Level {
	case "CONSERVATIVE", "MODERATE", "AGGRESSIVE":
	default:
		errors = append(errors, ValidationError{
			Field:   "risk.level",
			Message: fmt.Sprintf("Risk level must be CONSERVATIVE, MODERATE or AGGRESSIVE, got %q", c.Risk.Level),
		})
	}

	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_position_size",
			Message: fmt.Sprintf("Max position size must be in (0, 1], got %f", c.Risk.MaxPositionSize),
		})
	}

	switch c.Risk.BetSizingMethod {
	case "KELLY", "FLAT", "PERCENTAGE":
	default:
		errors = append(errors, ValidationError{
			Field:   "risk.bet_sizing_method",
			Message: fmt.Sprintf("Bet sizing method must be KELLY, FLAT or PERCENTAGE, got %q", c.Risk.BetSizingMethod),
		})
	}

	if c.Risk.HeatLimit <= 0 || c.Risk.HeatLimit > 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.heat_limit",
			Message: fmt.Sprintf("Heat limit must be in (0, 1], got %f", c.Risk.HeatLimit),
		})
	}

	return errors
}

func (c *Config) validateExecution() ValidationErrors {
	var errors ValidationErrors

	if c.Execution.MaxSlippagePct < 0 || c.Execution.MaxSlippagePct > 0.05 {
		errors = append(errors, ValidationError{
			Field:   "execution.max_slippage_pct",
			Message: fmt.Sprintf("Max slippage must be in [0, 0.05], got %f", c.Execution.MaxSlippagePct),
		})
	}

	if c.Execution.MinHold < 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.min_hold",
			Message: "Minimum hold time cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateBrokers() ValidationErrors {
	var errors ValidationErrors

	// Live trading requires real credentials for the active broker
	if c.App.Environment != "LIVE" {
		return errors
	}

	active := c.Trading.ActiveBroker
	if active == "" || active == "paper" {
		errors = append(errors, ValidationError{
			Field:   "trading.active_broker",
			Message: "LIVE environment requires a real active broker",
		})
		return errors
	}

	broker, ok := c.Brokers[active]
	if !ok {
		errors = append(errors, ValidationError{
			Field:   "brokers." + active,
			Message: "Active broker has no configuration block",
		})
		return errors
	}

	placeholders := []string{"", "YOUR_API_KEY", "changeme", "test_api_key"}
	for _, p := range placeholders {
		if broker.APIKey == p {
			errors = append(errors, ValidationError{
				Field:   "brokers." + active + ".api_key",
				Message: "API key is missing or a placeholder value",
			})
			break
		}
	}

	return errors
}
