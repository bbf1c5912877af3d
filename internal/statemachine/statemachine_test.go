package statemachine

import (
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"go.uber.org/zap"
)

func TestMachine_StartsAtSystemInit(t *testing.T) {
	m := New(zap.NewNop(), nil)
	if m.Current() != coretypes.StateInit {
		t.Fatalf("expected SYSTEM_INIT, got %s", m.Current())
	}
}

func TestMachine_AllowedTransitionSucceeds(t *testing.T) {
	m := New(zap.NewNop(), nil)
	if err := m.Transition(coretypes.StateObserving, "startup", "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Current() != coretypes.StateObserving {
		t.Fatalf("expected OBSERVING, got %s", m.Current())
	}
}

func TestMachine_RiskLockedReachableFromAnyState(t *testing.T) {
	m := New(zap.NewNop(), nil)
	if err := m.Transition(coretypes.StateRiskLocked, "forced lock", "risk-engine"); err != nil {
		t.Fatalf("expected RISK_LOCKED to be reachable from SYSTEM_INIT, got %v", err)
	}
	if m.Current() != coretypes.StateRiskLocked {
		t.Fatalf("expected RISK_LOCKED, got %s", m.Current())
	}
}

func TestMachine_RecoveryOnlyReturnsToObserving(t *testing.T) {
	m := New(zap.NewNop(), nil)
	_ = m.Transition(coretypes.StateRiskLocked, "lock", "risk-engine")
	if err := m.Transition(coretypes.StateActiveTrading, "skip ahead", "test"); err == nil {
		t.Fatal("expected RISK_LOCKED -> ACTIVE_TRADING to be rejected")
	}
	if err := m.Transition(coretypes.StateRecovery, "recovering", "operator"); err != nil {
		t.Fatalf("expected RISK_LOCKED -> RECOVERY to be allowed, got %v", err)
	}
	if err := m.Transition(coretypes.StateObserving, "resume", "operator"); err != nil {
		t.Fatalf("expected RECOVERY -> OBSERVING to be allowed, got %v", err)
	}
}

func TestMachine_EveryAttemptEmitsAuditRecord(t *testing.T) {
	trail := audit.NewTrail(zap.NewNop(), 10, "")
	m := New(zap.NewNop(), trail)
	_ = m.Transition(coretypes.StateActiveTrading, "invalid jump", "test") // rejected
	_ = m.Transition(coretypes.StateObserving, "valid", "test")           // accepted

	recent := trail.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected both the rejected and accepted attempts to be audited, got %d", len(recent))
	}
}

func TestRegimeTracker_DerivesRegimeFromDominantClaimTag(t *testing.T) {
	tracker := NewRegimeTracker()
	claim := &coretypes.Claim{Constraints: map[string]string{"regime": "liquidity_sweep"}}
	state := tracker.Observe(claim, time.Now())
	if state.Primary != coretypes.RegimeLiquiditySweep {
		t.Fatalf("expected LIQUIDITY_SWEEP regime, got %s", state.Primary)
	}
}

func TestRegimeTracker_NilDominantClaimYieldsNoRegime(t *testing.T) {
	tracker := NewRegimeTracker()
	state := tracker.Observe(nil, time.Now())
	if state.Primary != coretypes.RegimeNone {
		t.Fatalf("expected NO_REGIME, got %s", state.Primary)
	}
}
