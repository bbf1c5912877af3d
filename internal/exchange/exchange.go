// Package exchange defines the abstract per-user ExchangeClient contract
// and a paper/simulated implementation used for testing and for any user
// who has not wired a live venue.
package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Order is the narrow order shape the exchange contract accepts - an
// abstract decision already sized for one user, not a raw AbstractDecision.
type Order struct {
	OrderID  string
	Symbol   string
	Side     string // "buy" / "sell"
	Quantity decimal.Decimal
	Price    decimal.Decimal // reference price; market orders fill near this
}

// Position is the abstract position shape get_position returns.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal
}

// OrderResult is what place_order returns - translated by the executor into
// a coretypes.ExecutionResult.
type OrderResult struct {
	OrderID        string
	Filled         bool
	FilledQuantity decimal.Decimal
	FilledPrice    decimal.Decimal
	Slippage       decimal.Decimal
	Commission     decimal.Decimal
	RejectReason   string
}

// Client is the per-user ExchangeClient contract. Network errors surface
// as typed failures (NetworkError below), not exceptions-as-control-flow.
type Client interface {
	PlaceOrder(ctx context.Context, order Order) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetPosition(ctx context.Context, symbol string) (Position, error)
}

// NetworkError is the typed failure exchange clients surface for
// transport-level faults.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("exchange: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// PaperClient is a simulated exchange client: fills at the reference price
// plus a flat-bps slippage/commission model. It deliberately does not model
// order-book depth or venue-specific microstructure.
type PaperClient struct {
	SlippageBps   decimal.Decimal
	CommissionBps decimal.Decimal
	positions     map[string]Position
	orders        map[string]OrderResult
}

// NewPaperClient constructs a PaperClient with sane default cost bps.
func NewPaperClient() *PaperClient {
	return &PaperClient{
		SlippageBps:   decimal.NewFromFloat(0.0005),
		CommissionBps: decimal.NewFromFloat(0.0004),
		positions:     make(map[string]Position),
		orders:        make(map[string]OrderResult),
	}
}

// PlaceOrder simulates a fill. Idempotent: resubmitting the same OrderID
// returns the cached result without recomputing a fill (the idempotency
// contract itself lives one layer up in the executor's submission cache;
// this duplicates a thin version so a PaperClient is usable standalone in
// tests).
func (p *PaperClient) PlaceOrder(ctx context.Context, order Order) (OrderResult, error) {
	if cached, ok := p.orders[order.OrderID]; ok {
		return cached, nil
	}
	select {
	case <-ctx.Done():
		return OrderResult{}, &NetworkError{Op: "place_order", Err: ctx.Err()}
	default:
	}

	slip := order.Price.Mul(p.SlippageBps)
	fillPrice := order.Price.Add(slip)
	if order.Side == "sell" {
		fillPrice = order.Price.Sub(slip)
	}
	commission := fillPrice.Mul(order.Quantity).Mul(p.CommissionBps)

	result := OrderResult{
		OrderID:        order.OrderID,
		Filled:         true,
		FilledQuantity: order.Quantity,
		FilledPrice:    fillPrice,
		Slippage:       slip,
		Commission:     commission,
	}
	p.orders[order.OrderID] = result

	pos := p.positions[order.Symbol]
	pos.Symbol = order.Symbol
	if order.Side == "sell" {
		pos.Quantity = pos.Quantity.Sub(order.Quantity)
	} else {
		pos.Quantity = pos.Quantity.Add(order.Quantity)
	}
	pos.AvgPrice = fillPrice
	p.positions[order.Symbol] = pos

	return result, nil
}

// CancelOrder reports whether orderID is a previously placed order; the
// paper client keeps no canceled state, so the stored order is unchanged.
func (p *PaperClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	_, ok := p.orders[orderID]
	return ok, nil
}

// GetPosition returns the simulated position for symbol.
func (p *PaperClient) GetPosition(ctx context.Context, symbol string) (Position, error) {
	pos, ok := p.positions[symbol]
	if !ok {
		return Position{Symbol: symbol}, nil
	}
	return pos, nil
}
