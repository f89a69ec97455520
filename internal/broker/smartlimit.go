package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxSlippagePct bounds how far a smart limit strays from the
// last price.
const DefaultMaxSlippagePct = 0.005

// rateLimitRetryDelay is the single-retry backoff on venue 429s.
const rateLimitRetryDelay = 5 * time.Second

// SmartLimitPrice computes the marketable limit price: above last for
// buys, below for sells.
func SmartLimitPrice(currentPrice float64, side OrderSide, maxSlippagePct float64) float64 {
	if maxSlippagePct <= 0 {
		maxSlippagePct = DefaultMaxSlippagePct
	}
	if side == SideBuy {
		return currentPrice * (1 + maxSlippagePct)
	}
	return currentPrice * (1 - maxSlippagePct)
}

// BracketPrices converts percentage exit rules into absolute prices at
// entry.
func BracketPrices(entryPrice, takeProfitPct, stopLossPct float64) BracketParams {
	return BracketParams{
		TakeProfit: entryPrice * (1 + takeProfitPct),
		StopLoss:   entryPrice * (1 - stopLossPct),
	}
}

// SubmitSmartLimit fetches the latest price, attaches a bounded limit,
// and submits. Rate-limit rejections retry exactly once after a
// 5-second delay; other errors surface immediately.
func SubmitSmartLimit(ctx context.Context, adapter Adapter, req OrderRequest, maxSlippagePct float64) (*OrderResult, error) {
	price, err := adapter.GetLatestPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	req.Type = TypeLimit
	req.LimitPrice = SmartLimitPrice(price, req.Side, maxSlippagePct)

	log.Debug().
		Str("broker", adapter.Name()).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("last_price", price).
		Float64("limit_price", req.LimitPrice).
		Msg("Submitting smart limit order")

	result, err := submit(ctx, adapter, req)
	if err == nil || !errors.Is(err, ErrRateLimited) {
		return result, err
	}

	log.Warn().
		Str("broker", adapter.Name()).
		Str("symbol", req.Symbol).
		Msg("Rate limited, retrying once after delay")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(rateLimitRetryDelay):
	}

	return submit(ctx, adapter, req)
}

func submit(ctx context.Context, adapter Adapter, req OrderRequest) (*OrderResult, error) {
	if req.Quantity > 0 {
		return adapter.SubmitOrderByQuantity(ctx, req)
	}
	return adapter.SubmitOrder(ctx, req)
}
