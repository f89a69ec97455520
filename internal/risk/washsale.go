package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/ledger"
)

// WashSaleWindow is the lookback during which a stop-loss sale blocks
// new buys of the same ticker.
const WashSaleWindow = 30 * 24 * time.Hour

// LossSaleFinder locates recent stop-loss sales for a ticker.
type LossSaleFinder interface {
	LastLossSale(ctx context.Context, ticker string, lookback time.Duration) (*ledger.Entry, error)
}

// WashSaleGuard blocks buys that would re-enter a position sold at a
// loss within the window.
type WashSaleGuard struct {
	finder  LossSaleFinder
	enabled bool
}

// NewWashSaleGuard creates the guard. When disabled, every check passes.
func NewWashSaleGuard(finder LossSaleFinder, enabled bool) *WashSaleGuard {
	return &WashSaleGuard{finder: finder, enabled: enabled}
}

// CheckBuy returns a block reason when the ticker had a stop-loss sale
// within the window. Ledger errors fail open with a warning; a broken
// tax guard must not halt trading by itself.
func (g *WashSaleGuard) CheckBuy(ctx context.Context, ticker string) (blocked bool, reason string) {
	if g == nil || !g.enabled {
		return false, ""
	}

	entry, err := g.finder.LastLossSale(ctx, ticker, WashSaleWindow)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("Wash-sale lookup failed, allowing buy")
		return false, ""
	}
	if entry == nil {
		return false, ""
	}

	clearAt := entry.Timestamp.Add(WashSaleWindow)
	reason = fmt.Sprintf("wash-sale guard: %s sold at a loss on %s, buys blocked until %s",
		ticker, entry.Timestamp.Format("2006-01-02"), clearAt.Format("2006-01-02"))
	log.Info().Str("ticker", ticker).Time("clear_at", clearAt).Msg("Buy blocked by wash-sale guard")
	return true, reason
}
