package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/marketpilot/internal/regime"
	"github.com/ajitpratap0/marketpilot/internal/swarm"
)

func TestGreenBuyPasses(t *testing.T) {
	v := Check(regime.Green, swarm.ActionBuy, 0.60, "")
	assert.False(t, v.Blocked)
	assert.Equal(t, 0.60, v.EffectiveConfidence)
}

func TestExactThresholdPasses(t *testing.T) {
	v := Check(regime.Green, swarm.ActionBuy, 0.55, "")
	assert.False(t, v.Blocked)
}

func TestYellowBuyNeedsMore(t *testing.T) {
	v := Check(regime.Yellow, swarm.ActionBuy, 0.72, "MomentumBurst")
	assert.True(t, v.Blocked)
	assert.Contains(t, v.Reason, "YELLOW")
	assert.Contains(t, v.Reason, "0.75")
	assert.Contains(t, v.Reason, "0.72")
}

func TestYellowSellIsEasier(t *testing.T) {
	v := Check(regime.Yellow, swarm.ActionSell, 0.52, "")
	assert.False(t, v.Blocked)
}

func TestRedBuyDemands85(t *testing.T) {
	assert.True(t, Check(regime.Red, swarm.ActionBuy, 0.84, "").Blocked)
	assert.False(t, Check(regime.Red, swarm.ActionBuy, 0.85, "").Blocked)
}

func TestCatalystBonusInYellow(t *testing.T) {
	// 0.68 + 0.10 = 0.78 clears the 0.75 buy bar
	v := Check(regime.Yellow, swarm.ActionBuy, 0.68, "EpisodicPivot")
	assert.False(t, v.Blocked)
	assert.InDelta(t, 0.78, v.EffectiveConfidence, 1e-9)
}

func TestCatalystBonusInRed(t *testing.T) {
	v := Check(regime.Red, swarm.ActionBuy, 0.76, "InsideBar212")
	assert.False(t, v.Blocked)
	assert.InDelta(t, 0.86, v.EffectiveConfidence, 1e-9)
}

func TestNoCatalystBonusInGreen(t *testing.T) {
	v := Check(regime.Green, swarm.ActionBuy, 0.50, "EpisodicPivot")
	assert.True(t, v.Blocked)
	assert.Equal(t, 0.50, v.EffectiveConfidence)
}

func TestNoBonusForContinuationPatterns(t *testing.T) {
	v := Check(regime.Yellow, swarm.ActionBuy, 0.70, "VCP")
	assert.True(t, v.Blocked)
	assert.Equal(t, 0.70, v.EffectiveConfidence)
}

func TestBonusCapsAtOne(t *testing.T) {
	v := Check(regime.Red, swarm.ActionBuy, 0.95, "EpisodicPivot")
	assert.False(t, v.Blocked)
	assert.Equal(t, 1.0, v.EffectiveConfidence)
}

func TestUnknownRegimeFallsBackToGreen(t *testing.T) {
	v := Check(regime.Regime("PURPLE"), swarm.ActionBuy, 0.60, "")
	assert.False(t, v.Blocked)

	v = Check(regime.Regime(""), swarm.ActionBuy, 0.60, "")
	assert.False(t, v.Blocked)
}

func TestShortThresholds(t *testing.T) {
	assert.False(t, Check(regime.Red, ActionShort, 0.46, "").Blocked)
	assert.True(t, Check(regime.Green, ActionShort, 0.50, "").Blocked)
}

func TestUnknownActionBlocked(t *testing.T) {
	v := Check(regime.Green, swarm.Action("HEDGE"), 0.99, "")
	assert.True(t, v.Blocked)
	assert.Contains(t, v.Reason, "HEDGE")
}
