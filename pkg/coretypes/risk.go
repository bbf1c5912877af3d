package coretypes

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the unified severity the risk engine reports.
type RiskLevel string

const (
	RiskNormal     RiskLevel = "NORMAL"
	RiskWarning    RiskLevel = "WARNING"
	RiskCooldown   RiskLevel = "COOLDOWN"
	RiskLocked     RiskLevel = "RISK_LOCKED"
)

// riskLevelRank orders severities so the engine can take a max.
var riskLevelRank = map[RiskLevel]int{
	RiskNormal:   0,
	RiskWarning:  1,
	RiskCooldown: 2,
	RiskLocked:   3,
}

// MaxLevel returns whichever of a, b is more severe.
func MaxLevel(a, b RiskLevel) RiskLevel {
	if riskLevelRank[b] > riskLevelRank[a] {
		return b
	}
	return a
}

// TradeRecord is a minimal closed-trade outcome carried in
// RiskContext.RecentTrades. No built-in risk checker reads it; the behavior
// checker works from RiskContext.ConsecutiveLosses.
type TradeRecord struct {
	Symbol     string
	PnL        decimal.Decimal
	ClosedAt   time.Time
	WitnessID  string
}

// RiskContext is the read-only snapshot passed to every domain checker in
// one invocation.
type RiskContext struct {
	Equity             decimal.Decimal
	CurrentDrawdown    decimal.Decimal // fraction of peak equity
	DailyPnL           decimal.Decimal
	WeeklyPnL          decimal.Decimal
	ConsecutiveLosses  int
	CurrentPositionPct decimal.Decimal // fraction of equity in the current position
	TotalPositionPct   decimal.Decimal // fraction of equity across all positions
	Leverage           decimal.Decimal
	RecentTrades       []TradeRecord
	WitnessHealth      map[string]WitnessHealth
	Now                time.Time
}

// RiskCheckResult is one domain checker's verdict.
type RiskCheckResult struct {
	Domain   string
	Approved bool
	Level    RiskLevel
	Reason   string
}

// RiskDecision is the risk engine's unified verdict: max severity across all
// domain checkers, approved only if every checker approved.
type RiskDecision struct {
	Approved bool
	Level    RiskLevel
	Reason   string
	Domains  []RiskCheckResult
}
