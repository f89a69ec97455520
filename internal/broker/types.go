// Package broker defines the uniform venue interface, the concrete
// adapters behind it, and the time/asset-aware router that picks one
// per request.
package broker

import (
	"context"
	"errors"
	"time"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the execution style.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the venue-reported state of a submitted order.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
	StatusCanceled OrderStatus = "CANCELED"
)

// OrderRequest describes one order. Exactly one of Amount (notional)
// or Quantity is set depending on the submit call used.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Amount     float64
	Quantity   float64
	LimitPrice float64
}

// OrderResult is the venue acknowledgment.
type OrderResult struct {
	ID          string
	Status      OrderStatus
	FilledPrice float64
	FilledQty   float64
	SubmittedAt time.Time
}

// BracketParams are absolute exit prices attached at entry.
type BracketParams struct {
	TakeProfit float64
	StopLoss   float64
}

// Position is a venue-held position.
type Position struct {
	Symbol          string
	Quantity        float64
	MarketValue     float64
	AverageBuyPrice float64
}

// Common adapter errors.
var (
	ErrNotAuthenticated = errors.New("broker: not authenticated")
	ErrRateLimited      = errors.New("broker: rate limited")
	ErrInsufficientFund = errors.New("broker: insufficient buying power")
	ErrUnsupported      = errors.New("broker: operation not supported")
)

// Adapter is the uniform venue contract.
type Adapter interface {
	Name() string
	Authenticate(ctx context.Context) error
	GetBuyingPower(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)

	// SubmitOrder sizes by notional amount.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	// SubmitOrderByQuantity sizes by unit quantity.
	SubmitOrderByQuantity(ctx context.Context, req OrderRequest) (*OrderResult, error)

	CancelAllOrders(ctx context.Context) error
}

// BracketSubmitter is implemented by venues with native bracket orders.
type BracketSubmitter interface {
	SubmitBracketOrder(ctx context.Context, req OrderRequest, bracket BracketParams) (*OrderResult, error)
}
