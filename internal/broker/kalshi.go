package broker

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// KalshiAuth signs requests with RSA-PSS over
// timestamp||method||path||body (SHA-256 digest, base64 signature).
type KalshiAuth struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewKalshiAuth parses a PEM private key (PKCS#1 or PKCS#8).
func NewKalshiAuth(keyID, privateKeyPEM string) (*KalshiAuth, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block in private key")
	}

	var key *rsa.PrivateKey
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi: private key is not RSA")
		}
		key = rsaKey
	} else {
		return nil, fmt.Errorf("kalshi: failed to parse private key: %w", err)
	}

	return &KalshiAuth{keyID: keyID, key: key, now: time.Now}, nil
}

// Headers signs one request and returns the auth header set.
func (a *KalshiAuth) Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)

	message := timestamp + method + path + body
	digest := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, a.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi: sign request: %w", err)
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       a.keyID,
		"KALSHI-ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(sig),
		"KALSHI-ACCESS-TIMESTAMP": timestamp,
	}, nil
}

// Verify checks a signature the way the venue would. Test helper.
func (a *KalshiAuth) Verify(timestamp, method, path, body, sigB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return err
	}
	digest := sha256.Sum256([]byte(timestamp + method + path + body))
	return rsa.VerifyPSS(&a.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}

// Kalshi is the prediction-market venue adapter. Prices are integer
// cents on the wire; the adapter exposes dollars.
type Kalshi struct {
	client *resty.Client
	auth   *KalshiAuth
}

// NewKalshi creates the adapter against the given API base URL.
func NewKalshi(baseURL string, auth *KalshiAuth) *Kalshi {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")

	return &Kalshi{client: client, auth: auth}
}

func (k *Kalshi) Name() string { return "kalshi" }

func (k *Kalshi) signed(ctx context.Context, method, path, body string) (*resty.Request, error) {
	headers, err := k.auth.Headers(method, path, body)
	if err != nil {
		return nil, err
	}
	req := k.client.R().SetContext(ctx).SetHeaders(headers)
	if body != "" {
		req.SetBody(body)
	}
	return req, nil
}

func checkStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrNotAuthenticated
	case resp.IsError():
		return fmt.Errorf("kalshi: http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Authenticate verifies the key pair with a balance call.
func (k *Kalshi) Authenticate(ctx context.Context) error {
	_, err := k.GetBuyingPower(ctx)
	return err
}

func (k *Kalshi) GetBuyingPower(ctx context.Context) (float64, error) {
	const path = "/trade-api/v2/portfolio/balance"
	req, err := k.signed(ctx, http.MethodGet, path, "")
	if err != nil {
		return 0, err
	}

	var out struct {
		BalanceCents int64 `json:"balance"`
	}
	resp, err := req.SetResult(&out).Get(path)
	if err != nil {
		return 0, fmt.Errorf("kalshi: balance request: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	balance, _ := decimal.NewFromInt(out.BalanceCents).Div(decimal.NewFromInt(100)).Float64()
	return balance, nil
}

func (k *Kalshi) GetPositions(ctx context.Context) ([]Position, error) {
	const path = "/trade-api/v2/portfolio/positions"
	req, err := k.signed(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}

	var out struct {
		MarketPositions []struct {
			Ticker        string `json:"ticker"`
			Position      int64  `json:"position"`
			MarketValue   int64  `json:"market_value"`
			AvgPriceCents int64  `json:"avg_price"`
		} `json:"market_positions"`
	}
	resp, err := req.SetResult(&out).Get(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: positions request: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(out.MarketPositions))
	for _, mp := range out.MarketPositions {
		if mp.Position == 0 {
			continue
		}
		avg, _ := decimal.NewFromInt(mp.AvgPriceCents).Div(decimal.NewFromInt(100)).Float64()
		value, _ := decimal.NewFromInt(mp.MarketValue).Div(decimal.NewFromInt(100)).Float64()
		positions = append(positions, Position{
			Symbol:          mp.Ticker,
			Quantity:        float64(mp.Position),
			MarketValue:     value,
			AverageBuyPrice: avg,
		})
	}
	return positions, nil
}

// GetLatestPrice returns the yes-side bid in dollars.
func (k *Kalshi) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	path := "/trade-api/v2/markets/" + symbol
	req, err := k.signed(ctx, http.MethodGet, path, "")
	if err != nil {
		return 0, err
	}

	var out struct {
		Market struct {
			YesBidCents int64 `json:"yes_bid"`
		} `json:"market"`
	}
	resp, err := req.SetResult(&out).Get(path)
	if err != nil {
		return 0, fmt.Errorf("kalshi: market request: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	price, _ := decimal.NewFromInt(out.Market.YesBidCents).Div(decimal.NewFromInt(100)).Float64()
	return price, nil
}

// SubmitOrder sizes by notional: contracts = amount / price.
func (k *Kalshi) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	price, err := k.GetLatestPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("kalshi: no bid for %s", req.Symbol)
	}
	req.Quantity = float64(int64(req.Amount / price))
	if req.Quantity < 1 {
		return nil, fmt.Errorf("kalshi: amount %.2f buys no contracts at %.2f", req.Amount, price)
	}
	return k.SubmitOrderByQuantity(ctx, req)
}

func (k *Kalshi) SubmitOrderByQuantity(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	const path = "/trade-api/v2/portfolio/orders"

	order := map[string]interface{}{
		"ticker": req.Symbol,
		"action": map[OrderSide]string{SideBuy: "buy", SideSell: "sell"}[req.Side],
		"side":   "yes",
		"count":  int64(req.Quantity),
		"type":   "market",
	}
	if req.Type == TypeLimit && req.LimitPrice > 0 {
		order["type"] = "limit"
		order["yes_price"] = decimal.NewFromFloat(req.LimitPrice).Mul(decimal.NewFromInt(100)).IntPart()
	}

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("kalshi: marshal order: %w", err)
	}

	httpReq, err := k.signed(ctx, http.MethodPost, path, string(body))
	if err != nil {
		return nil, err
	}

	var out struct {
		Order struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"order"`
	}
	resp, err := httpReq.SetResult(&out).Post(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: order request: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	log.Info().
		Str("ticker", req.Symbol).
		Str("side", string(req.Side)).
		Float64("count", req.Quantity).
		Str("order_id", out.Order.OrderID).
		Msg("Kalshi order submitted")

	return &OrderResult{
		ID:          out.Order.OrderID,
		Status:      OrderStatus(out.Order.Status),
		FilledQty:   req.Quantity,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (k *Kalshi) CancelAllOrders(ctx context.Context) error {
	const listPath = "/trade-api/v2/portfolio/orders?status=resting"
	req, err := k.signed(ctx, http.MethodGet, listPath, "")
	if err != nil {
		return err
	}

	var out struct {
		Orders []struct {
			OrderID string `json:"order_id"`
		} `json:"orders"`
	}
	resp, err := req.SetResult(&out).Get(listPath)
	if err != nil {
		return fmt.Errorf("kalshi: list orders: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return err
	}

	for _, o := range out.Orders {
		path := "/trade-api/v2/portfolio/orders/" + o.OrderID
		delReq, err := k.signed(ctx, http.MethodDelete, path, "")
		if err != nil {
			return err
		}
		delResp, err := delReq.Delete(path)
		if err != nil {
			return fmt.Errorf("kalshi: cancel %s: %w", o.OrderID, err)
		}
		if err := checkStatus(delResp); err != nil {
			return err
		}
	}

	log.Info().Int("canceled", len(out.Orders)).Msg("Kalshi resting orders canceled")
	return nil
}
