package executor

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/credentials"
	"github.com/atlas-trading/tradingcore/internal/exchange"
	"github.com/atlas-trading/tradingcore/internal/risk"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestUser(t *testing.T, id string, equity decimal.Decimal) *UserContext {
	t.Helper()
	env, err := credentials.NewEnvelope(make([]byte, 32))
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	enc, err := env.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	uc, err := NewUserContext(id, env, enc, exchange.NewPaperClient(), decimal.NewFromInt(1), decimal.NewFromFloat(0.05), coretypes.TierBasic)
	if err != nil {
		t.Fatalf("user context: %v", err)
	}
	uc.Risk.Equity = equity
	return uc
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	riskEngine := risk.New(zap.NewNop(), risk.Thresholds{
		MaxDrawdown: 0.2, DailyMaxLoss: 0.03, WeeklyMaxLoss: 0.10,
		ConsecutiveLossThreshold: 3, MaxSinglePosition: 0.05, MaxTotalPosition: 0.30, MaxLeverage: 5,
	}, risk.CooldownDurations{Normal: time.Minute, StopLoss: time.Minute, ConsecutiveLoss: time.Minute})
	trail := audit.NewTrail(zap.NewNop(), 100, "")
	return NewManager(zap.NewNop(), riskEngine, trail, 2*time.Second)
}

func TestExecute_ResubmissionIsIdempotent(t *testing.T) {
	mgr := newTestManager(t)
	uc := newTestUser(t, "user-a", decimal.NewFromInt(100000))
	mgr.AddUser(uc)

	decision := coretypes.AbstractDecision{
		Symbol: "BTC-USD", Direction: coretypes.DirectionLong, Confidence: decimal.NewFromFloat(0.8),
		DecidedAt: time.Now(), CorrelationID: "corr-dup",
	}
	first := mgr.Execute(context.Background(), decision, decimal.NewFromInt(50000))
	second := mgr.Execute(context.Background(), decision, decimal.NewFromInt(50000))

	if first["user-a"].OrderID != second["user-a"].OrderID {
		t.Fatalf("expected the same order id across resubmissions, got %s vs %s", first["user-a"].OrderID, second["user-a"].OrderID)
	}
	if !second["user-a"].HasFlag(coretypes.FlagDuplicate) {
		t.Fatal("expected the resubmission to be flagged as a duplicate")
	}
}

func TestExecute_SuspendedUserIsIneligible(t *testing.T) {
	mgr := newTestManager(t)
	uc := newTestUser(t, "user-a", decimal.NewFromInt(100000))
	uc.Status = UserStatusSuspended
	mgr.AddUser(uc)

	decision := coretypes.AbstractDecision{
		Symbol: "BTC-USD", Direction: coretypes.DirectionLong, Confidence: decimal.NewFromFloat(0.8),
		DecidedAt: time.Now(), CorrelationID: "corr-1",
	}
	results := mgr.Execute(context.Background(), decision, decimal.NewFromInt(50000))
	if results["user-a"].Status != coretypes.ExecStatusRejected {
		t.Fatalf("expected a suspended user to be rejected, got %+v", results["user-a"])
	}
}

func TestExecute_RiskLockedUserIsIneligible(t *testing.T) {
	mgr := newTestManager(t)
	uc := newTestUser(t, "user-a", decimal.NewFromInt(100000))
	uc.Risk.IsLocked = true
	mgr.AddUser(uc)

	decision := coretypes.AbstractDecision{
		Symbol: "BTC-USD", Direction: coretypes.DirectionLong, Confidence: decimal.NewFromFloat(0.8),
		DecidedAt: time.Now(), CorrelationID: "corr-2",
	}
	results := mgr.Execute(context.Background(), decision, decimal.NewFromInt(50000))
	if results["user-a"].Status != coretypes.ExecStatusRejected {
		t.Fatalf("expected a risk-locked user to be rejected, got %+v", results["user-a"])
	}
}

func TestExecute_TierCapsPositionFraction(t *testing.T) {
	mgr := newTestManager(t)
	uc := newTestUser(t, "user-a", decimal.NewFromInt(100000))
	uc.MaxPositionPct = decimal.NewFromFloat(0.50) // exceeds basic tier's 0.05 ceiling
	mgr.AddUser(uc)

	decision := coretypes.AbstractDecision{
		Symbol: "BTC-USD", Direction: coretypes.DirectionLong, Confidence: decimal.NewFromFloat(0.8),
		DecidedAt: time.Now(), CorrelationID: "corr-3",
	}
	results := mgr.Execute(context.Background(), decision, decimal.NewFromInt(50000))
	if results["user-a"].Status != coretypes.ExecStatusRejected {
		t.Fatalf("expected a basic-tier user requesting 50%% position to be rejected, got %+v", results["user-a"])
	}
}
