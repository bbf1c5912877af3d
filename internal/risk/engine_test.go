package risk

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MaxDrawdown: 0.20, DailyMaxLoss: 0.03, WeeklyMaxLoss: 0.10,
		ConsecutiveLossThreshold: 3, MaxSinglePosition: 0.05, MaxTotalPosition: 0.30, MaxLeverage: 5,
	}
}

func defaultCooldowns() CooldownDurations {
	return CooldownDurations{Normal: 10 * time.Minute, StopLoss: 20 * time.Minute, ConsecutiveLoss: 60 * time.Minute}
}

func TestEngine_ApprovesCleanContext(t *testing.T) {
	e := New(zap.NewNop(), defaultThresholds(), defaultCooldowns())
	rc := coretypes.RiskContext{
		Equity: decimal.NewFromInt(100000), Now: time.Now(),
	}
	decision := e.Evaluate(context.Background(), rc)
	if !decision.Approved {
		t.Fatalf("expected a clean context to be approved, got %+v", decision)
	}
	if decision.Level != coretypes.RiskNormal {
		t.Fatalf("expected NORMAL level, got %s", decision.Level)
	}
}

func TestEngine_DrawdownBreachLocksRisk(t *testing.T) {
	e := New(zap.NewNop(), defaultThresholds(), defaultCooldowns())
	rc := coretypes.RiskContext{
		Equity: decimal.NewFromInt(100000), CurrentDrawdown: decimal.NewFromFloat(0.25), Now: time.Now(),
	}
	decision := e.Evaluate(context.Background(), rc)
	if decision.Approved {
		t.Fatal("expected drawdown breach to deny the decision")
	}
	if decision.Level != coretypes.RiskLocked {
		t.Fatalf("expected RISK_LOCKED level, got %s", decision.Level)
	}
}

func TestEngine_RunsEveryCheckerEvenAfterOneDenies(t *testing.T) {
	e := New(zap.NewNop(), defaultThresholds(), defaultCooldowns())
	rc := coretypes.RiskContext{
		Equity:            decimal.NewFromInt(100000),
		CurrentDrawdown:   decimal.NewFromFloat(0.25), // denies account_survival
		ConsecutiveLosses: 5,                          // also denies behavior
		Now:               time.Now(),
	}
	decision := e.Evaluate(context.Background(), rc)
	deniedDomains := 0
	for _, d := range decision.Domains {
		if !d.Approved {
			deniedDomains++
		}
	}
	if deniedDomains < 2 {
		t.Fatalf("expected both account_survival and behavior to be recorded as denied, got %d denials across %+v", deniedDomains, decision.Domains)
	}
}

func TestEngine_CooldownForPicksConsecutiveLossDuration(t *testing.T) {
	e := New(zap.NewNop(), defaultThresholds(), defaultCooldowns())
	decision := coretypes.RiskDecision{
		Domains: []coretypes.RiskCheckResult{{Domain: "behavior", Approved: false}},
	}
	if got := e.CooldownFor(decision); got != defaultCooldowns().ConsecutiveLoss {
		t.Fatalf("expected consecutive-loss cooldown, got %v", got)
	}
}

func TestEngine_SurvivesPanickingChecker(t *testing.T) {
	e := New(zap.NewNop(), defaultThresholds(), defaultCooldowns())
	e.checkers = append(e.checkers, &panickingChecker{})
	rc := coretypes.RiskContext{Equity: decimal.NewFromInt(100000), Now: time.Now()}
	decision := e.Evaluate(context.Background(), rc)
	if decision.Approved {
		t.Fatal("expected a panicking checker to force a denial rather than crash Evaluate")
	}
}

type panickingChecker struct{}

func (panickingChecker) Domain() string { return "chaos" }
func (panickingChecker) Check(rc coretypes.RiskContext) coretypes.RiskCheckResult {
	panic("boom")
}
