// Package witness holds the witness panel and registry: the registered set
// of strategies, each tiered, each emitting at most one claim per bar,
// routed to the aggregator or to the shadow recorder.
package witness

import (
	"context"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
)

// Witness is the capability-limited contract every strategy implements. It
// deliberately exposes nothing beyond claim generation: no order
// placement, no account reads, no position sizing. Composition is by
// list, not class hierarchy.
type Witness interface {
	ID() string
	Tier() coretypes.Tier
	GenerateClaim(ctx context.Context, bars []coretypes.Bar) (*coretypes.Claim, error)
}

// The following marker interfaces name the forbidden capabilities. A
// concrete witness type must not implement any of them; Registry.Register
// rejects one that does with an ArchitectureViolation, enforced once at
// registration rather than on every call.
type (
	// OrderPlacer would let a witness submit orders directly.
	OrderPlacer interface {
		PlaceOrder(ctx context.Context, symbol string, qty float64) error
	}
	// AccountReader would let a witness read account/equity state.
	AccountReader interface {
		ReadAccount(ctx context.Context) (equity float64, err error)
	}
	// PositionSizer would let a witness compute its own position size.
	PositionSizer interface {
		ComputeSize(ctx context.Context, symbol string) (qty float64, err error)
	}
)
