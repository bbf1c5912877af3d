package coretypes

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionFlag is a symbolic code attached to an ExecutionResult.
type ExecutionFlag string

const (
	FlagRiskLockedTriggered ExecutionFlag = "RISK_LOCKED_TRIGGERED"
	FlagCooldownTriggered   ExecutionFlag = "COOLDOWN_TRIGGERED"
	FlagTimeout             ExecutionFlag = "TIMEOUT"
	FlagCanceled            ExecutionFlag = "CANCELED"
	FlagDuplicate           ExecutionFlag = "DUPLICATE"
)

// ExecutionStatus mirrors the outcome of one user's order submission.
type ExecutionStatus string

const (
	ExecStatusFilled   ExecutionStatus = "FILLED"
	ExecStatusRejected ExecutionStatus = "REJECTED"
	ExecStatusTimeout  ExecutionStatus = "TIMEOUT"
	ExecStatusCanceled ExecutionStatus = "CANCELED"
)

// ExecutionResult is immutable once recorded.
type ExecutionResult struct {
	OrderID          string
	UserID           string
	Status           ExecutionStatus
	ExecutedQuantity decimal.Decimal
	ExecutedPrice    decimal.Decimal
	Slippage         decimal.Decimal
	Commission       decimal.Decimal
	Flags            map[ExecutionFlag]struct{}
	Timestamp        time.Time
}

// HasFlag reports whether a flag is set.
func (r ExecutionResult) HasFlag(f ExecutionFlag) bool {
	_, ok := r.Flags[f]
	return ok
}

// AbstractDecision is the state-machine's authorization handed to the
// per-user executor: direction and confidence only, never a sized order -
// sizing is a per-user pure function of this plus UserContext state.
type AbstractDecision struct {
	Symbol        string
	Direction     Direction
	Confidence    decimal.Decimal
	Regime        TradeRegime
	DecidedAt     time.Time
	Deadline      time.Time
	CorrelationID string // stable per decision; combined with user id for idempotent order ids
}

// SubscriptionTier gates which position fractions a user may take.
type SubscriptionTier string

const (
	TierBasic SubscriptionTier = "basic"
	TierPro   SubscriptionTier = "pro"
	TierElite SubscriptionTier = "elite"
)

// MaxPositionFractionForTier returns the ceiling on position-fraction a
// subscription tier permits, independent of the user's own configured
// max_position_pct (the eligibility filter rejects a user whose own fraction
// exceeds this ceiling; order sizing takes the min of the two).
func MaxPositionFractionForTier(t SubscriptionTier) decimal.Decimal {
	switch t {
	case TierElite:
		return decimal.NewFromFloat(0.30)
	case TierPro:
		return decimal.NewFromFloat(0.15)
	case TierBasic:
		return decimal.NewFromFloat(0.05)
	default:
		return decimal.Zero
	}
}
