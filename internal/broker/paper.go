package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Paper is an in-memory venue that fills every order at the configured
// price. It backs paper mode and the test suite.
type Paper struct {
	mu          sync.Mutex
	cash        float64
	prices      map[string]float64
	positions   map[string]*Position
	orderCount  int
	authedOnce  bool
	FailureMode error // when set, order submissions fail with this error
}

// NewPaper creates a paper venue with starting cash.
func NewPaper(startingCash float64) *Paper {
	return &Paper{
		cash:      startingCash,
		prices:    make(map[string]float64),
		positions: make(map[string]*Position),
	}
}

// SetPrice sets the simulated last price for a symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authedOnce {
		log.Info().Msg("Paper broker session opened")
		p.authedOnce = true
	}
	return nil
}

func (p *Paper) GetBuyingPower(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash, nil
}

func (p *Paper) GetPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		view := *pos
		if price, ok := p.prices[pos.Symbol]; ok {
			view.MarketValue = price * pos.Quantity
		}
		out = append(out, view)
	}
	return out, nil
}

func (p *Paper) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return price, nil
}

func (p *Paper) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("paper: no price for %s", req.Symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("paper: invalid price for %s", req.Symbol)
	}
	req.Quantity = req.Amount / price
	return p.fill(req, price)
}

func (p *Paper) SubmitOrderByQuantity(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("paper: no price for %s", req.Symbol)
	}
	return p.fill(req, price)
}

// fill executes against the simulated book. Caller holds the lock.
func (p *Paper) fill(req OrderRequest, price float64) (*OrderResult, error) {
	if p.FailureMode != nil {
		return nil, p.FailureMode
	}

	fillPrice := price
	if req.Type == TypeLimit && req.LimitPrice > 0 {
		fillPrice = req.LimitPrice
	}

	notional := fillPrice * req.Quantity

	switch req.Side {
	case SideBuy:
		if notional > p.cash {
			return nil, ErrInsufficientFund
		}
		p.cash -= notional
		pos, ok := p.positions[req.Symbol]
		if !ok {
			pos = &Position{Symbol: req.Symbol}
			p.positions[req.Symbol] = pos
		}
		totalCost := pos.AverageBuyPrice*pos.Quantity + notional
		pos.Quantity += req.Quantity
		pos.AverageBuyPrice = totalCost / pos.Quantity

	case SideSell:
		pos, ok := p.positions[req.Symbol]
		if !ok || pos.Quantity < req.Quantity {
			return nil, fmt.Errorf("paper: insufficient position in %s", req.Symbol)
		}
		p.cash += notional
		pos.Quantity -= req.Quantity
		if pos.Quantity <= 1e-9 {
			delete(p.positions, req.Symbol)
		}

	default:
		return nil, fmt.Errorf("paper: unknown side %q", req.Side)
	}

	p.orderCount++
	result := &OrderResult{
		ID:          uuid.NewString(),
		Status:      StatusFilled,
		FilledPrice: fillPrice,
		FilledQty:   req.Quantity,
		SubmittedAt: time.Now().UTC(),
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Quantity).
		Float64("price", fillPrice).
		Msg("Paper order filled")

	return result, nil
}

func (p *Paper) CancelAllOrders(ctx context.Context) error {
	// Paper fills are immediate; nothing rests on the book
	return nil
}
