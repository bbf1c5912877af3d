package witness

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func bars(closes ...float64) []coretypes.Bar {
	now := time.Now()
	out := make([]coretypes.Bar, len(closes))
	for i, c := range closes {
		out[i] = coretypes.Bar{
			Symbol: "BTC-USD", Timestamp: now.Add(time.Duration(i) * time.Minute),
			Open: decimal.NewFromFloat(c), High: decimal.NewFromFloat(c + 1), Low: decimal.NewFromFloat(c - 1),
			Close: decimal.NewFromFloat(c), Volume: decimal.NewFromInt(100),
		}
	}
	return out
}

func TestMomentumEvent_FiresOnStrongMove(t *testing.T) {
	def := MomentumEvent(5, decimal.NewFromFloat(0.02))
	closes := make([]float64, 0, 10)
	for i := 0; i < 6; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 110) // >2% jump over lookback
	matched, dir, conf := def.Predicate(bars(closes...))
	if !matched {
		t.Fatal("expected momentum event to fire")
	}
	if dir != coretypes.DirectionLong {
		t.Fatalf("expected long direction, got %s", dir)
	}
	if conf.IsZero() {
		t.Fatal("expected nonzero confidence")
	}
}

func TestMomentumEvent_NoFireBelowThreshold(t *testing.T) {
	def := MomentumEvent(5, decimal.NewFromFloat(0.02))
	closes := []float64{100, 100, 100, 100, 100, 100.1}
	matched, _, _ := def.Predicate(bars(closes...))
	if matched {
		t.Fatal("expected no event below threshold")
	}
}

func TestEventWitness_T1EmitsNotEligibleWhenUnmatched(t *testing.T) {
	w := NewEventWitness("momentum_t1", coretypes.TierCore, MomentumEvent(5, decimal.NewFromFloat(0.5)), 5*time.Minute)
	claim, err := w.GenerateClaim(context.Background(), bars(100, 100, 100, 100, 100, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim.ClaimType != coretypes.ClaimMarketNotEligible {
		t.Fatalf("expected MARKET_NOT_ELIGIBLE for an unmatched T1 witness, got %s", claim.ClaimType)
	}
}

func TestEventWitness_T2EmitsNothingWhenUnmatched(t *testing.T) {
	w := NewEventWitness("mean_reversion_t2", coretypes.TierAuxiliary, MeanReversionEvent(5, decimal.NewFromFloat(0.5)), 5*time.Minute)
	claim, err := w.GenerateClaim(context.Background(), bars(100, 100, 100, 100, 100, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim != nil {
		t.Fatalf("expected T2 witness to emit nothing when unmatched, got %+v", claim)
	}
}

func TestVetoWitness_EmitsExecutionVeto(t *testing.T) {
	w := NewVetoWitness("vol_veto", VolatilitySpikeVeto(3, decimal.NewFromFloat(1.5)), 5*time.Minute)
	closes := []float64{100, 100, 100, 100, 200}
	claim, err := w.GenerateClaim(context.Background(), bars(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim == nil {
		t.Fatal("expected a veto claim on volatility spike")
	}
	if claim.ClaimType != coretypes.ClaimExecutionVeto {
		t.Fatalf("expected EXECUTION_VETO, got %s", claim.ClaimType)
	}
	if claim.Direction != coretypes.DirectionNone {
		t.Fatalf("veto witness must never carry a direction, got %s", claim.Direction)
	}
}

type forbiddenWitness struct{ EventWitness }

func (forbiddenWitness) PlaceOrder(ctx context.Context, symbol string, qty float64) error { return nil }

func TestRegistry_RejectsForbiddenCapability(t *testing.T) {
	r := NewRegistry(zap.NewNop(), time.Second, nil)
	bad := forbiddenWitness{}
	err := r.Register(&bad, coretypes.TierCore)
	if err == nil {
		t.Fatal("expected registration of a capability-violating witness to be rejected")
	}
}

func TestRegistry_NewAndTestingWitnessesProduceNoClaims(t *testing.T) {
	r := NewRegistry(zap.NewNop(), time.Second, nil)
	w := NewEventWitness("momentum_t1", coretypes.TierCore, MomentumEvent(2, decimal.NewFromFloat(0.01)), 5*time.Minute)
	if err := r.Register(w, coretypes.TierCore); err != nil {
		t.Fatalf("register: %v", err)
	}
	claims := r.GenerateClaims(context.Background(), bars(100, 100, 100, 200))
	if len(claims) != 0 {
		t.Fatalf("expected no claims from a witness still in TESTING/NEW, got %d", len(claims))
	}
	if err := r.SetStatus("momentum_t1", coretypes.StatusTesting, "test"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	claims = r.GenerateClaims(context.Background(), bars(100, 100, 100, 200))
	if len(claims) != 0 {
		t.Fatalf("expected no claims from a witness in TESTING, got %d", len(claims))
	}
}

func TestRegistry_ActiveWitnessProducesClaim(t *testing.T) {
	r := NewRegistry(zap.NewNop(), time.Second, nil)
	w := NewEventWitness("momentum_t1", coretypes.TierCore, MomentumEvent(2, decimal.NewFromFloat(0.01)), 5*time.Minute)
	if err := r.Register(w, coretypes.TierCore); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.SetStatus("momentum_t1", coretypes.StatusActive, "test"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	claims := r.GenerateClaims(context.Background(), bars(100, 100, 100, 200))
	if len(claims) != 1 {
		t.Fatalf("expected one claim from the active witness, got %d", len(claims))
	}
}

func TestRegistry_VetoWitnessIsActiveOnRegistrationAndEmitsThroughPanel(t *testing.T) {
	r := NewRegistry(zap.NewNop(), time.Second, nil)
	w := NewVetoWitness("vol_veto", VolatilitySpikeVeto(3, decimal.NewFromFloat(1.5)), 5*time.Minute)
	if err := r.Register(w, coretypes.TierVeto); err != nil {
		t.Fatalf("register: %v", err)
	}
	meta, ok := r.Get("vol_veto")
	if !ok {
		t.Fatal("expected the veto witness to be registered")
	}
	if meta.Status != coretypes.StatusActive {
		t.Fatalf("expected a T3 witness to be ACTIVE immediately on registration, got %s", meta.Status)
	}

	claims := r.GenerateClaims(context.Background(), bars(100, 100, 100, 100, 200))
	if len(claims) != 1 {
		t.Fatalf("expected the registered veto witness to emit through the panel, got %d claims", len(claims))
	}
	if claims[0].ClaimType != coretypes.ClaimExecutionVeto {
		t.Fatalf("expected EXECUTION_VETO from the panel, got %s", claims[0].ClaimType)
	}
}

type shadowRecorderSpy struct{ calls int }

func (s *shadowRecorderSpy) RecordShadowClaim(witnessID string, claim coretypes.Claim, bars []coretypes.Bar) {
	s.calls++
}

func TestRegistry_ShadowClaimsRouteToRecorderNotOutput(t *testing.T) {
	spy := &shadowRecorderSpy{}
	r := NewRegistry(zap.NewNop(), time.Second, spy)
	w := NewEventWitness("mean_reversion_t2", coretypes.TierAuxiliary, MeanReversionEvent(2, decimal.NewFromFloat(0.01)), 5*time.Minute)
	if err := r.Register(w, coretypes.TierAuxiliary); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.SetStatus("mean_reversion_t2", coretypes.StatusShadow, "test"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	claims := r.GenerateClaims(context.Background(), bars(100, 50, 200))
	if len(claims) != 0 {
		t.Fatalf("expected shadow claims to never reach aggregator output, got %d", len(claims))
	}
	if spy.calls == 0 {
		t.Fatal("expected the shadow recorder to have been invoked")
	}
}
