// Package risk implements the Risk Engine: a pipeline of five domain
// checkers producing a single approve/deny decision at the engine's max
// severity level.
package risk

import (
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
)

// Checker is one domain's risk contract: a pure function of the read-only
// RiskContext snapshot.
type Checker interface {
	Domain() string
	Check(ctx coretypes.RiskContext) coretypes.RiskCheckResult
}

// Thresholds are the operator-owned, non-learnable risk floors. No
// component may widen them at runtime; the engine only ever reads this
// struct.
type Thresholds struct {
	MaxDrawdown              float64
	DailyMaxLoss             float64
	WeeklyMaxLoss            float64
	ConsecutiveLossThreshold int
	MaxSinglePosition        float64
	MaxTotalPosition         float64
	MaxLeverage              float64
}
