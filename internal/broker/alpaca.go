package broker

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Alpaca is the US equities adapter. It also serves extended-hours
// routing since the venue accepts pre-market and after-hours limit
// orders.
type Alpaca struct {
	client     *resty.Client
	dataClient *resty.Client
}

// NewAlpaca creates the adapter. baseURL selects paper or live.
func NewAlpaca(baseURL, dataURL, apiKey, secretKey string) *Alpaca {
	newClient := func(url string) *resty.Client {
		return resty.New().
			SetBaseURL(url).
			SetTimeout(10*time.Second).
			SetHeader("APCA-API-KEY-ID", apiKey).
			SetHeader("APCA-API-SECRET-KEY", secretKey)
	}
	return &Alpaca{
		client:     newClient(baseURL),
		dataClient: newClient(dataURL),
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

func alpacaStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return ErrNotAuthenticated
	case resp.IsError():
		return fmt.Errorf("alpaca: http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *Alpaca) Authenticate(ctx context.Context) error {
	_, err := a.GetBuyingPower(ctx)
	return err
}

func (a *Alpaca) GetBuyingPower(ctx context.Context) (float64, error) {
	var out struct {
		BuyingPower string `json:"buying_power"`
	}
	resp, err := a.client.R().SetContext(ctx).SetResult(&out).Get("/v2/account")
	if err != nil {
		return 0, fmt.Errorf("alpaca: account request: %w", err)
	}
	if err := alpacaStatus(resp); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.BuyingPower, 64)
}

func (a *Alpaca) GetPositions(ctx context.Context) ([]Position, error) {
	var out []struct {
		Symbol        string `json:"symbol"`
		Qty           string `json:"qty"`
		MarketValue   string `json:"market_value"`
		AvgEntryPrice string `json:"avg_entry_price"`
	}
	resp, err := a.client.R().SetContext(ctx).SetResult(&out).Get("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("alpaca: positions request: %w", err)
	}
	if err := alpacaStatus(resp); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(out))
	for _, p := range out {
		qty, _ := strconv.ParseFloat(p.Qty, 64)
		value, _ := strconv.ParseFloat(p.MarketValue, 64)
		avg, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
		positions = append(positions, Position{
			Symbol:          p.Symbol,
			Quantity:        qty,
			MarketValue:     value,
			AverageBuyPrice: avg,
		})
	}
	return positions, nil
}

func (a *Alpaca) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	resp, err := a.dataClient.R().SetContext(ctx).SetResult(&out).
		Get("/v2/stocks/" + symbol + "/trades/latest")
	if err != nil {
		return 0, fmt.Errorf("alpaca: latest trade request: %w", err)
	}
	if err := alpacaStatus(resp); err != nil {
		return 0, err
	}
	return out.Trade.Price, nil
}

func (a *Alpaca) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	body := map[string]interface{}{
		"symbol":        req.Symbol,
		"notional":      fmt.Sprintf("%.2f", req.Amount),
		"side":          map[OrderSide]string{SideBuy: "buy", SideSell: "sell"}[req.Side],
		"type":          "market",
		"time_in_force": "day",
	}
	return a.postOrder(ctx, req, body)
}

func (a *Alpaca) SubmitOrderByQuantity(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	body := map[string]interface{}{
		"symbol":        req.Symbol,
		"qty":           strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"side":          map[OrderSide]string{SideBuy: "buy", SideSell: "sell"}[req.Side],
		"type":          "market",
		"time_in_force": "day",
	}
	if req.Type == TypeLimit && req.LimitPrice > 0 {
		body["type"] = "limit"
		body["limit_price"] = fmt.Sprintf("%.2f", req.LimitPrice)
		// Extended-hours fills require a limit order
		body["extended_hours"] = true
	}
	return a.postOrder(ctx, req, body)
}

// SubmitBracketOrder attaches absolute take-profit and stop-loss legs.
func (a *Alpaca) SubmitBracketOrder(ctx context.Context, req OrderRequest, bracket BracketParams) (*OrderResult, error) {
	body := map[string]interface{}{
		"symbol":        req.Symbol,
		"notional":      fmt.Sprintf("%.2f", req.Amount),
		"side":          "buy",
		"type":          "market",
		"time_in_force": "day",
		"order_class":   "bracket",
		"take_profit":   map[string]string{"limit_price": fmt.Sprintf("%.2f", bracket.TakeProfit)},
		"stop_loss":     map[string]string{"stop_price": fmt.Sprintf("%.2f", bracket.StopLoss)},
	}
	return a.postOrder(ctx, req, body)
}

func (a *Alpaca) postOrder(ctx context.Context, req OrderRequest, body map[string]interface{}) (*OrderResult, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	resp, err := a.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("alpaca: order request: %w", err)
	}
	if err := alpacaStatus(resp); err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("order_id", out.ID).
		Str("status", out.Status).
		Msg("Alpaca order submitted")

	return &OrderResult{
		ID:          out.ID,
		Status:      OrderStatus(out.Status),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (a *Alpaca) CancelAllOrders(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Delete("/v2/orders")
	if err != nil {
		return fmt.Errorf("alpaca: cancel all: %w", err)
	}
	return alpacaStatus(resp)
}
