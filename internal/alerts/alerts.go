// Package alerts delivers operator notifications over one or more
// channels. The kill switch, daily-loss guard, and execution paths all
// raise through the Manager.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans an alert out to every configured channel.
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters}
}

// Send sends an alert to all configured alerters. Channel failures are
// logged and the last error returned; one dead channel never blocks
// the others.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// Alert satisfies the kill switch's notification surface. Kill-switch
// messages are always critical.
func (m *Manager) Alert(ctx context.Context, message string) {
	m.SendCritical(ctx, "Kill Switch", message, nil)
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)

	return nil
}

// AlertExecutionFailed raises an alert for a failed order submission.
func AlertExecutionFailed(ctx context.Context, m *Manager, ticker, venue string, err error) {
	m.SendCritical(ctx, "Execution Failed", fmt.Sprintf(
		"Order for %s on %s failed: %v", ticker, venue, err,
	), map[string]interface{}{
		"ticker": ticker,
		"venue":  venue,
		"error":  err.Error(),
	})
}

// AlertDailyLossCap raises an alert when the daily loss cap trips.
func AlertDailyLossCap(ctx context.Context, m *Manager, realizedLoss, cap float64) {
	m.SendCritical(ctx, "Daily Loss Cap", fmt.Sprintf(
		"Realized loss %.2f breached the daily cap %.2f; emergency stop broadcast", realizedLoss, cap,
	), map[string]interface{}{
		"realized_loss": realizedLoss,
		"cap":           cap,
	})
}

// AlertDrawdown raises an alert on a drawdown threshold breach.
func AlertDrawdown(ctx context.Context, m *Manager, name string, drawdown float64) {
	m.SendWarning(ctx, "Drawdown Breach", fmt.Sprintf(
		"%s is down %.1f%% from its peak", name, drawdown*100,
	), map[string]interface{}{
		"name":     name,
		"drawdown": drawdown,
	})
}
