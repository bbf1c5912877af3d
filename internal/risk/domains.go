package risk

import (
	"fmt"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
)

// AccountSurvivalChecker guards the account's existential limits: drawdown
// and daily/weekly loss. Breaching any of these is a survival event, not a
// mere warning - it forces RISK_LOCKED.
type AccountSurvivalChecker struct{ T Thresholds }

func (c *AccountSurvivalChecker) Domain() string { return "account_survival" }

func (c *AccountSurvivalChecker) Check(rc coretypes.RiskContext) coretypes.RiskCheckResult {
	maxDD := decimal.NewFromFloat(c.T.MaxDrawdown)
	if rc.CurrentDrawdown.GreaterThanOrEqual(maxDD) {
		return deny("account_survival", coretypes.RiskLocked, fmt.Sprintf("drawdown %s >= max %s", rc.CurrentDrawdown, maxDD))
	}
	if rc.Equity.IsZero() {
		return deny("account_survival", coretypes.RiskLocked, "account equity")
	}
	dailyLossPct := lossPct(rc.DailyPnL, rc.Equity)
	if dailyLossPct.GreaterThanOrEqual(decimal.NewFromFloat(c.T.DailyMaxLoss)) {
		return deny("account_survival", coretypes.RiskLocked, fmt.Sprintf("daily loss %s >= max %.4f", dailyLossPct, c.T.DailyMaxLoss))
	}
	weeklyLossPct := lossPct(rc.WeeklyPnL, rc.Equity)
	if weeklyLossPct.GreaterThanOrEqual(decimal.NewFromFloat(c.T.WeeklyMaxLoss)) {
		return deny("account_survival", coretypes.RiskLocked, fmt.Sprintf("weekly loss %s >= max %.4f", weeklyLossPct, c.T.WeeklyMaxLoss))
	}
	if dailyLossPct.GreaterThanOrEqual(decimal.NewFromFloat(c.T.DailyMaxLoss).Mul(decimal.NewFromFloat(0.7))) {
		return warn("account_survival", "approaching daily loss limit")
	}
	return approve("account_survival")
}

func lossPct(pnl, equity decimal.Decimal) decimal.Decimal {
	if pnl.GreaterThanOrEqual(decimal.Zero) || equity.IsZero() {
		return decimal.Zero
	}
	return pnl.Abs().Div(equity)
}

// ExecutionIntegrityChecker guards position-sizing and leverage limits.
type ExecutionIntegrityChecker struct{ T Thresholds }

func (c *ExecutionIntegrityChecker) Domain() string { return "execution_integrity" }

func (c *ExecutionIntegrityChecker) Check(rc coretypes.RiskContext) coretypes.RiskCheckResult {
	maxSingle := decimal.NewFromFloat(c.T.MaxSinglePosition)
	maxTotal := decimal.NewFromFloat(c.T.MaxTotalPosition)
	maxLev := decimal.NewFromFloat(c.T.MaxLeverage)

	if rc.CurrentPositionPct.GreaterThan(maxSingle) {
		return deny("execution_integrity", coretypes.RiskCooldown, fmt.Sprintf("position %s exceeds max single %s", rc.CurrentPositionPct, maxSingle))
	}
	if rc.TotalPositionPct.GreaterThan(maxTotal) {
		return deny("execution_integrity", coretypes.RiskCooldown, fmt.Sprintf("total position %s exceeds max %s", rc.TotalPositionPct, maxTotal))
	}
	if rc.Leverage.GreaterThan(maxLev) {
		return deny("execution_integrity", coretypes.RiskCooldown, fmt.Sprintf("leverage %s exceeds max %s", rc.Leverage, maxLev))
	}
	return approve("execution_integrity")
}

// RegimeChecker guards against trading in a regime where witnesses are
// mostly degraded: it warns when more than half of the WitnessHealth
// snapshot is graded D, and approves otherwise.
type RegimeChecker struct{}

func (c *RegimeChecker) Domain() string { return "regime" }

func (c *RegimeChecker) Check(rc coretypes.RiskContext) coretypes.RiskCheckResult {
	if len(rc.WitnessHealth) == 0 {
		return approve("regime")
	}
	degraded := 0
	for _, h := range rc.WitnessHealth {
		if h.Grade == coretypes.GradeD {
			degraded++
		}
	}
	if float64(degraded)/float64(len(rc.WitnessHealth)) > 0.5 {
		return warn("regime", "majority of witnesses graded D")
	}
	return approve("regime")
}

// BehaviorChecker guards against chasing losses: N consecutive closed
// losses forces a cooldown.
type BehaviorChecker struct{ T Thresholds }

func (c *BehaviorChecker) Domain() string { return "behavior" }

func (c *BehaviorChecker) Check(rc coretypes.RiskContext) coretypes.RiskCheckResult {
	if rc.ConsecutiveLosses >= c.T.ConsecutiveLossThreshold {
		return deny("behavior", coretypes.RiskCooldown, fmt.Sprintf("%d consecutive losses >= threshold %d", rc.ConsecutiveLosses, c.T.ConsecutiveLossThreshold))
	}
	if rc.ConsecutiveLosses == c.T.ConsecutiveLossThreshold-1 {
		return warn("behavior", "one loss away from cooldown threshold")
	}
	return approve("behavior")
}

// SystemChecker guards operational health: it warns when the risk context
// carries no timestamp. MaxContextAge is not consulted by Check.
type SystemChecker struct{ MaxContextAge func(rc coretypes.RiskContext) bool }

func (c *SystemChecker) Domain() string { return "system" }

func (c *SystemChecker) Check(rc coretypes.RiskContext) coretypes.RiskCheckResult {
	if rc.Now.IsZero() {
		return warn("system", "risk context missing timestamp")
	}
	return approve("system")
}

func approve(domain string) coretypes.RiskCheckResult {
	return coretypes.RiskCheckResult{Domain: domain, Approved: true, Level: coretypes.RiskNormal}
}

func warn(domain, reason string) coretypes.RiskCheckResult {
	return coretypes.RiskCheckResult{Domain: domain, Approved: true, Level: coretypes.RiskWarning, Reason: reason}
}

func deny(domain string, level coretypes.RiskLevel, reason string) coretypes.RiskCheckResult {
	return coretypes.RiskCheckResult{Domain: domain, Approved: false, Level: level, Reason: reason}
}
