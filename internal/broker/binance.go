package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog/log"
)

// binanceRateLimitCode is the venue error code for request weight
// exhaustion.
const binanceRateLimitCode = -1003

// Binance is the crypto venue adapter.
type Binance struct {
	client *binance.Client
	quote  string // settlement currency for buying power, e.g. USDT
}

// NewBinance creates the adapter. Testnet mode flips the package-level
// endpoint.
func NewBinance(apiKey, secretKey string, testnet bool) *Binance {
	if testnet {
		binance.UseTestnet = true
		log.Info().Msg("Binance adapter initialized (TESTNET mode)")
	} else {
		log.Warn().Msg("Binance adapter initialized (LIVE TRADING mode)")
	}
	return &Binance{
		client: binance.NewClient(apiKey, secretKey),
		quote:  "USDT",
	}
}

func (b *Binance) Name() string { return "binance" }

func wrapBinanceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*common.APIError); ok {
		if apiErr.Code == binanceRateLimitCode {
			return ErrRateLimited
		}
		if apiErr.Code == -2014 || apiErr.Code == -2015 {
			return ErrNotAuthenticated
		}
	}
	return fmt.Errorf("binance: %s: %w", op, err)
}

func (b *Binance) Authenticate(ctx context.Context) error {
	_, err := b.client.NewGetAccountService().Do(ctx)
	return wrapBinanceErr("authenticate", err)
}

// GetBuyingPower returns the free quote-currency balance.
func (b *Binance) GetBuyingPower(ctx context.Context) (float64, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, wrapBinanceErr("account", err)
	}
	for _, bal := range account.Balances {
		if bal.Asset == b.quote {
			return strconv.ParseFloat(bal.Free, 64)
		}
	}
	return 0, nil
}

// GetPositions maps non-zero spot balances to positions against the
// quote currency. Average buy price is not exposed by the venue's
// account endpoint and is left zero; the ledger is authoritative.
func (b *Binance) GetPositions(ctx context.Context) ([]Position, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, wrapBinanceErr("account", err)
	}

	var positions []Position
	for _, bal := range account.Balances {
		if bal.Asset == b.quote {
			continue
		}
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		qty := free + locked
		if qty <= 0 {
			continue
		}
		positions = append(positions, Position{
			Symbol:   bal.Asset + b.quote,
			Quantity: qty,
		})
	}
	return positions, nil
}

func (b *Binance) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(normalizeSymbol(symbol)).Do(ctx)
	if err != nil {
		return 0, wrapBinanceErr("price", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance: no price for %s", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

func (b *Binance) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	price, err := b.GetLatestPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("binance: invalid price for %s", req.Symbol)
	}
	req.Quantity = req.Amount / price
	return b.SubmitOrderByQuantity(ctx, req)
}

func (b *Binance) SubmitOrderByQuantity(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	side := binance.SideTypeBuy
	if req.Side == SideSell {
		side = binance.SideTypeSell
	}

	svc := b.client.NewCreateOrderService().
		Symbol(normalizeSymbol(req.Symbol)).
		Side(side).
		Quantity(fmt.Sprintf("%.8f", req.Quantity))

	if req.Type == TypeLimit && req.LimitPrice > 0 {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(fmt.Sprintf("%.8f", req.LimitPrice))
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapBinanceErr("create order", err)
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("exchange_order_id", order.OrderID).
		Str("status", string(order.Status)).
		Msg("Binance order submitted")

	result := &OrderResult{
		ID:          strconv.FormatInt(order.OrderID, 10),
		Status:      mapBinanceStatus(order.Status),
		FilledQty:   req.Quantity,
		SubmittedAt: time.Now().UTC(),
	}
	if len(order.Fills) > 0 {
		result.FilledPrice, _ = strconv.ParseFloat(order.Fills[0].Price, 64)
	}
	return result, nil
}

func (b *Binance) CancelAllOrders(ctx context.Context) error {
	open, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return wrapBinanceErr("list open orders", err)
	}

	for _, o := range open {
		_, err := b.client.NewCancelOrderService().
			Symbol(o.Symbol).
			OrderID(o.OrderID).
			Do(ctx)
		if err != nil {
			return wrapBinanceErr("cancel order", err)
		}
	}

	log.Info().Int("canceled", len(open)).Msg("Binance open orders canceled")
	return nil
}

func mapBinanceStatus(s binance.OrderStatusType) OrderStatus {
	switch s {
	case binance.OrderStatusTypeFilled:
		return StatusFilled
	case binance.OrderStatusTypeRejected:
		return StatusRejected
	case binance.OrderStatusTypeCanceled:
		return StatusCanceled
	default:
		return StatusNew
	}
}

// normalizeSymbol strips the slash from pair notation: BTC/USDT ->
// BTCUSDT.
func normalizeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
