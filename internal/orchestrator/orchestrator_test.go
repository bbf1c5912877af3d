package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/internal/aggregator"
	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/executor"
	"github.com/atlas-trading/tradingcore/internal/lifecycle"
	"github.com/atlas-trading/tradingcore/internal/metrics"
	"github.com/atlas-trading/tradingcore/internal/risk"
	"github.com/atlas-trading/tradingcore/internal/statemachine"
	"github.com/atlas-trading/tradingcore/internal/weight"
	"github.com/atlas-trading/tradingcore/internal/witness"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(eventType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func alwaysMatchEvent() witness.EventDefinition {
	return witness.EventDefinition{
		Predicate: func(bars []coretypes.Bar) (bool, coretypes.Direction, decimal.Decimal) {
			return true, coretypes.DirectionLong, decimal.NewFromFloat(0.9)
		},
	}
}

func newTestLoop(t *testing.T) (*Loop, *recordingBroadcaster) {
	t.Helper()
	logger := zap.NewNop()
	trail := audit.NewTrail(logger, 100, "")
	shadow := lifecycle.NewShadowLedger()
	registry := witness.NewRegistry(logger, time.Second, shadow)
	lifecycleMgr := lifecycle.NewManager(logger, registry, shadow, trail)

	w := witness.NewEventWitness("momentum_t1", coretypes.TierCore, alwaysMatchEvent(), 5*time.Minute)
	if err := lifecycleMgr.RegisterHypothesis(w, coretypes.TierCore); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.SetStatus("momentum_t1", coretypes.StatusActive, "test"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	health := weight.NewHealthManager()
	weights := weight.NewManager(logger, weight.DefaultClamps(), health, nil)
	agg := aggregator.New(logger, weights, aggregator.Config{
		Tier2BaseFactor: decimal.NewFromFloat(0.1), ConfidenceThreshold: decimal.NewFromFloat(0.6),
	})
	riskEngine := risk.New(logger, risk.Thresholds{
		MaxDrawdown: 0.2, DailyMaxLoss: 0.03, WeeklyMaxLoss: 0.10,
		ConsecutiveLossThreshold: 3, MaxSinglePosition: 0.05, MaxTotalPosition: 0.30, MaxLeverage: 5,
	}, risk.CooldownDurations{Normal: time.Minute, StopLoss: time.Minute, ConsecutiveLoss: time.Minute})
	machine := statemachine.New(logger, trail)
	regime := statemachine.NewRegimeTracker()
	execMgr := executor.NewManager(logger, riskEngine, trail, 2*time.Second)

	riskContext := func() coretypes.RiskContext {
		return coretypes.RiskContext{Equity: decimal.NewFromInt(100000), Leverage: decimal.NewFromInt(1)}
	}

	broadcaster := &recordingBroadcaster{}
	loop := New(logger, DefaultConfig(), registry, weights, health, agg, riskEngine, machine, regime,
		execMgr, lifecycleMgr, riskContext, metrics.NewCollectors(), broadcaster)
	return loop, broadcaster
}

func sampleBars() []coretypes.Bar {
	now := time.Now()
	return []coretypes.Bar{
		{Symbol: "BTC-USD", Timestamp: now, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100)},
	}
}

func TestLoop_StartMovesToObserving(t *testing.T) {
	loop, _ := newTestLoop(t)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer loop.Stop()
	if loop.machine.Current() != coretypes.StateObserving {
		t.Fatalf("expected OBSERVING after Start, got %s", loop.machine.Current())
	}
}

func TestLoop_ProcessBar_DrivesStateMachineThroughFullCycle(t *testing.T) {
	loop, broadcaster := newTestLoop(t)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer loop.Stop()

	loop.ProcessBar(context.Background(), "BTC-USD", sampleBars())
	if loop.machine.Current() != coretypes.StateEligible {
		t.Fatalf("expected ELIGIBLE after a tradeable, approved bar, got %s", loop.machine.Current())
	}

	loop.ProcessBar(context.Background(), "BTC-USD", sampleBars())
	if loop.machine.Current() != coretypes.StateCooldown {
		t.Fatalf("expected COOLDOWN after executing from ELIGIBLE, got %s", loop.machine.Current())
	}

	if broadcaster.count("aggregated_result") != 2 {
		t.Fatalf("expected an aggregated_result broadcast per bar, got %d", broadcaster.count("aggregated_result"))
	}
	if broadcaster.count("state_transition") == 0 {
		t.Fatal("expected at least one state_transition broadcast")
	}
}

func TestLoop_RecordTradeOutcome_FeedsHealthIntoRegistry(t *testing.T) {
	loop, _ := newTestLoop(t)
	loop.RecordTradeOutcome("momentum_t1", false)
	meta, ok := loop.registry.Get("momentum_t1")
	if !ok {
		t.Fatal("expected witness to exist")
	}
	if meta.Health.SampleCount == 0 {
		t.Fatal("expected RecordTradeOutcome to update the witness's health snapshot")
	}
}
