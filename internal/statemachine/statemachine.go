// Package statemachine implements the single trading gatekeeper: the only
// component allowed to authorize execution.
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/coreerrors"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// allowed is the permitted-transition table. "any" rows (-> RISK_LOCKED)
// are handled separately in Transition.
var allowed = map[coretypes.SystemState]map[coretypes.SystemState]bool{
	coretypes.StateInit:          {coretypes.StateObserving: true},
	coretypes.StateObserving:     {coretypes.StateEligible: true},
	coretypes.StateEligible:      {coretypes.StateActiveTrading: true},
	coretypes.StateActiveTrading: {coretypes.StateCooldown: true},
	coretypes.StateCooldown:      {coretypes.StateObserving: true},
	coretypes.StateRiskLocked:    {coretypes.StateRecovery: true},
	coretypes.StateRecovery:      {coretypes.StateObserving: true},
}

// Machine owns the process-wide SystemState. All transition attempts are
// serialized behind one mutex so concurrent callers observe a consistent
// current state.
type Machine struct {
	logger *zap.Logger
	trail  *audit.Trail

	mu    sync.Mutex
	state coretypes.SystemState
}

// New constructs a Machine starting in SYSTEM_INIT.
func New(logger *zap.Logger, trail *audit.Trail) *Machine {
	return &Machine{logger: logger.Named("statemachine"), trail: trail, state: coretypes.StateInit}
}

// Current returns the current state. Safe for concurrent use.
func (m *Machine) Current() coretypes.SystemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition attempts (from implicit current state) -> to. RISK_LOCKED is
// reachable from any state (a risk-forced lock); every other transition
// must appear in the allowed table. Every attempt - accepted or rejected -
// emits an audit record.
func (m *Machine) Transition(to coretypes.SystemState, reason, actor string) error {
	correlation := uuid.NewString()
	m.mu.Lock()
	from := m.state
	ok := to == coretypes.StateRiskLocked || allowed[from][to]
	if ok {
		m.state = to
	}
	m.mu.Unlock()

	rec := audit.Record{
		Component:     "statemachine",
		From:          string(from),
		To:            string(to),
		Reason:        reason,
		Actor:         actor,
		CorrelationID: correlation,
	}
	if m.trail != nil {
		m.trail.Append(rec)
	}
	if !ok {
		m.logger.Warn("rejected state transition", zap.String("from", string(from)), zap.String("to", string(to)), zap.String("reason", reason))
		return fmt.Errorf("statemachine: %w", &coreerrors.InvalidStateTransition{From: from, To: to})
	}
	m.logger.Info("state transition", zap.String("from", string(from)), zap.String("to", string(to)), zap.String("reason", reason), zap.String("actor", actor))
	return nil
}

// regimeTags maps a witness-supplied "regime" constraint value to the
// fixed TradeRegime enum. A dominant claim without a recognized tag
// derives NO_REGIME.
var regimeTags = map[string]coretypes.TradeRegime{
	"volatility_expansion":   coretypes.RegimeVolatilityExpansion,
	"range_structure_break":  coretypes.RegimeRangeStructureBreak,
	"liquidity_sweep":        coretypes.RegimeLiquiditySweep,
}

// regimeTracker derives the advisory TradeRegime envelope: the raw regime
// plus how long the process has held it and a stability confidence. The
// regime itself is read directly from the dominant claim's tag - no HMM, no
// learned transition matrix; the tracker keeps only the start time and
// confidence of the current regime between calls.
type regimeTracker struct {
	mu      sync.Mutex
	current coretypes.RegimeState
}

func newRegimeTracker() *regimeTracker {
	return &regimeTracker{current: coretypes.RegimeState{Primary: coretypes.RegimeNone, StartedAt: time.Now()}}
}

// Observe derives the regime implied by a dominant claim's "regime"
// constraint and updates the stability envelope.
func (t *regimeTracker) Observe(dominant *coretypes.Claim, now time.Time) coretypes.RegimeState {
	regime := coretypes.RegimeNone
	if dominant != nil {
		if tag, ok := dominant.Constraints["regime"]; ok {
			if r, known := regimeTags[tag]; known {
				regime = r
			}
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if regime != t.current.Primary {
		t.current = coretypes.RegimeState{Primary: regime, StartedAt: now, Confidence: 0.5}
	}
	t.current.Duration = now.Sub(t.current.StartedAt)
	// Confidence grows with how long the regime has persisted, capped at 0.95.
	stability := 0.5 + t.current.Duration.Hours()*0.05
	if stability > 0.95 {
		stability = 0.95
	}
	t.current.Confidence = stability
	return t.current
}

// Current returns the regime envelope as of the last Observe call, without
// advancing or mutating it. Safe for read-only callers - an HTTP handler
// reporting state must never itself drive the regime forward.
func (t *regimeTracker) Current() coretypes.RegimeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// RegimeTracker exposes the regime envelope as a component separate from
// Machine rather than folded into state, since TradeRegime is advisory and
// never gates a transition.
type RegimeTracker = regimeTracker

// NewRegimeTracker constructs the advisory regime tracker.
func NewRegimeTracker() *RegimeTracker { return newRegimeTracker() }
