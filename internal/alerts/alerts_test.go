package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	alerts []Alert
	err    error
}

func (c *captureAlerter) Send(ctx context.Context, alert Alert) error {
	c.alerts = append(c.alerts, alert)
	return c.err
}

func TestManagerFansOut(t *testing.T) {
	a := &captureAlerter{}
	b := &captureAlerter{}
	m := NewManager(a, b)

	require.NoError(t, m.SendInfo(context.Background(), "Startup", "autopilot online", nil))
	assert.Len(t, a.alerts, 1)
	assert.Len(t, b.alerts, 1)
	assert.Equal(t, SeverityInfo, a.alerts[0].Severity)
	assert.False(t, a.alerts[0].Timestamp.IsZero())
}

func TestManagerOneDeadChannelDoesNotBlockOthers(t *testing.T) {
	dead := &captureAlerter{err: errors.New("network down")}
	live := &captureAlerter{}
	m := NewManager(dead, live)

	err := m.SendCritical(context.Background(), "Kill Switch", "triggered", nil)
	assert.Error(t, err)
	assert.Len(t, live.alerts, 1)
}

func TestManagerSatisfiesKillSwitchAlerter(t *testing.T) {
	c := &captureAlerter{}
	m := NewManager(c)

	m.Alert(context.Background(), "🚨 Kill switch triggered: pnl velocity")
	require.Len(t, c.alerts, 1)
	assert.Equal(t, SeverityCritical, c.alerts[0].Severity)
	assert.Contains(t, c.alerts[0].Message, "pnl velocity")
}

func TestSeverityHelpers(t *testing.T) {
	c := &captureAlerter{}
	m := NewManager(c)
	ctx := context.Background()

	m.SendInfo(ctx, "a", "b", nil)
	m.SendWarning(ctx, "a", "b", nil)
	m.SendCritical(ctx, "a", "b", nil)

	require.Len(t, c.alerts, 3)
	assert.Equal(t, SeverityInfo, c.alerts[0].Severity)
	assert.Equal(t, SeverityWarning, c.alerts[1].Severity)
	assert.Equal(t, SeverityCritical, c.alerts[2].Severity)
}

func TestDomainHelpers(t *testing.T) {
	c := &captureAlerter{}
	m := NewManager(c)
	ctx := context.Background()

	AlertExecutionFailed(ctx, m, "NVDA", "alpaca", errors.New("rejected"))
	AlertDailyLossCap(ctx, m, -250, 200)
	AlertDrawdown(ctx, m, "portfolio", 0.16)

	require.Len(t, c.alerts, 3)
	assert.Contains(t, c.alerts[0].Message, "NVDA")
	assert.Contains(t, c.alerts[1].Message, "emergency stop")
	assert.Contains(t, c.alerts[2].Message, "16.0%")
	assert.Equal(t, SeverityWarning, c.alerts[2].Severity)
}

func TestLogAlerterNeverFails(t *testing.T) {
	l := NewLogAlerter()
	err := l.Send(context.Background(), Alert{
		Title:    "Drawdown Breach",
		Message:  "portfolio down 16%",
		Severity: SeverityWarning,
		Metadata: map[string]interface{}{"drawdown": 0.16},
	})
	assert.NoError(t, err)
}

func TestFormatAlert(t *testing.T) {
	text := formatAlert(Alert{
		Title:    "Execution Failed",
		Message:  "order rejected",
		Severity: SeverityCritical,
		Metadata: map[string]interface{}{"ticker": "NVDA"},
	})
	assert.Contains(t, text, "🚨")
	assert.Contains(t, text, "*Execution Failed*")
	assert.Contains(t, text, "`ticker`: NVDA")
}
