package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/witness"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	shadowPromotionWinRate = 0.51
	shadowPromotionSamples = 100

	degradedRetireAfter = 30 * 24 * time.Hour
	t2PromotionAfter    = 30 * 24 * time.Hour
)

// Manager drives the automatic side of the strategy lifecycle
// (NEW->TESTING->SHADOW->ACTIVE->(DEGRADED<->ACTIVE)->RETIRED) and exposes
// the two manual-approval transitions (SHADOW->ACTIVE, T2->T1). T3 witnesses
// never pass through this subsystem: they are fixed at registration.
type Manager struct {
	logger   *zap.Logger
	registry *witness.Registry
	shadow   *ShadowLedger
	trail    *audit.Trail

	mu          sync.Mutex
	gradeAUntil map[string]time.Time // witness id -> when its current uninterrupted grade-A run began
}

// NewManager constructs a Manager bound to the shared registry, shadow
// ledger, and audit trail.
func NewManager(logger *zap.Logger, registry *witness.Registry, shadow *ShadowLedger, trail *audit.Trail) *Manager {
	return &Manager{
		logger:      logger.Named("lifecycle"),
		registry:    registry,
		shadow:      shadow,
		trail:       trail,
		gradeAUntil: make(map[string]time.Time),
	}
}

// RegisterHypothesis registers a new witness and immediately advances it
// NEW->TESTING: a strategy entering this subsystem is, by definition, a
// hypothesis under validation, never dormant.
func (m *Manager) RegisterHypothesis(w witness.Witness, tier coretypes.Tier) error {
	if err := m.registry.Register(w, tier); err != nil {
		return err
	}
	if tier == coretypes.TierVeto {
		// T3 bypasses the lifecycle subsystem entirely; the registry
		// already activated it on Register, and it is never advanced here.
		return nil
	}
	return m.transition(w.ID(), coretypes.StatusTesting, "hypothesis created")
}

// Tick runs every automatic transition check against current registry and
// shadow-ledger state. Intended to be called once per control loop (or on a
// slower cadence) by the orchestrator.
func (m *Manager) Tick(now time.Time) {
	for _, tier := range []coretypes.Tier{coretypes.TierCore, coretypes.TierAuxiliary} {
		for _, meta := range m.registry.ListByTier(tier) {
			m.evaluateOne(meta, now)
		}
	}
}

func (m *Manager) evaluateOne(meta coretypes.WitnessMeta, now time.Time) {
	switch meta.Status {
	case coretypes.StatusTesting:
		winRate, samples := m.shadow.WinRate(meta.ID)
		if samples >= shadowPromotionSamples && winRate.GreaterThanOrEqual(decimal.NewFromFloat(shadowPromotionWinRate)) {
			_ = m.transition(meta.ID, coretypes.StatusShadow, fmt.Sprintf("validation win rate %s over %d samples", winRate.String(), samples))
		}
	case coretypes.StatusActive:
		if isBelowC(meta.Health.Grade) {
			_ = m.transition(meta.ID, coretypes.StatusDegraded, fmt.Sprintf("health grade fell to %s", meta.Health.Grade))
			return
		}
		m.trackGradeA(meta, now)
	case coretypes.StatusDegraded:
		if meta.Health.Grade == coretypes.GradeA || meta.Health.Grade == coretypes.GradeB {
			_ = m.transition(meta.ID, coretypes.StatusActive, fmt.Sprintf("health grade recovered to %s", meta.Health.Grade))
			return
		}
		if now.Sub(meta.StatusChangedAt) >= degradedRetireAfter {
			_ = m.transition(meta.ID, coretypes.StatusRetired, "30 days without recovery from DEGRADED")
		}
	}
}

// trackGradeA maintains the continuous grade-A run used by the T2->T1
// eligibility check (30 days continuous at grade A). The run resets whenever
// the witness is observed at any grade other than A.
func (m *Manager) trackGradeA(meta coretypes.WitnessMeta, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta.Health.Grade != coretypes.GradeA {
		delete(m.gradeAUntil, meta.ID)
		return
	}
	if _, ok := m.gradeAUntil[meta.ID]; !ok {
		m.gradeAUntil[meta.ID] = now
	}
}

// T1Eligible reports whether a T2 witness has run continuously at grade A
// for the required window and may be manually promoted.
func (m *Manager) T1Eligible(witnessID string, now time.Time) bool {
	m.mu.Lock()
	since, ok := m.gradeAUntil[witnessID]
	m.mu.Unlock()
	return ok && now.Sub(since) >= t2PromotionAfter
}

// PromoteToActive is the manual-approval SHADOW->ACTIVE transition: an
// operator moving a validated shadow strategy into live trading at T2.
func (m *Manager) PromoteToActive(witnessID, actor string) error {
	meta, ok := m.registry.Get(witnessID)
	if !ok {
		return fmt.Errorf("lifecycle: witness %s not found", witnessID)
	}
	if meta.Status != coretypes.StatusShadow {
		return fmt.Errorf("lifecycle: witness %s is %s, not SHADOW", witnessID, meta.Status)
	}
	if meta.Tier != coretypes.TierAuxiliary {
		if err := m.registry.SetTier(witnessID, coretypes.TierAuxiliary); err != nil {
			return err
		}
	}
	return m.transitionBy(witnessID, coretypes.StatusActive, "manual promotion from SHADOW", actor)
}

// PromoteToT1 is the manual-approval T2->T1 tier change, permitted only
// after 30 days continuous running at grade A.
func (m *Manager) PromoteToT1(witnessID, actor string, now time.Time) error {
	meta, ok := m.registry.Get(witnessID)
	if !ok {
		return fmt.Errorf("lifecycle: witness %s not found", witnessID)
	}
	if meta.Tier != coretypes.TierAuxiliary || meta.Status != coretypes.StatusActive {
		return fmt.Errorf("lifecycle: witness %s must be an ACTIVE T2 witness", witnessID)
	}
	if !m.T1Eligible(witnessID, now) {
		return fmt.Errorf("lifecycle: witness %s has not run 30 continuous days at grade A", witnessID)
	}
	if err := m.registry.SetTier(witnessID, coretypes.TierCore); err != nil {
		return err
	}
	m.audit(witnessID, "T2", "T1", "30 days continuous grade A", actor)
	return nil
}

func (m *Manager) transition(witnessID string, to coretypes.WitnessStatus, reason string) error {
	return m.transitionBy(witnessID, to, reason, "lifecycle-manager")
}

func (m *Manager) transitionBy(witnessID string, to coretypes.WitnessStatus, reason, actor string) error {
	meta, ok := m.registry.Get(witnessID)
	if !ok {
		return fmt.Errorf("lifecycle: witness %s not found", witnessID)
	}
	if err := m.registry.SetStatus(witnessID, to, reason); err != nil {
		return err
	}
	m.logger.Info("lifecycle transition",
		zap.String("witness", witnessID),
		zap.String("from", string(meta.Status)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
		zap.String("actor", actor))
	m.audit(witnessID, string(meta.Status), string(to), reason, actor)
	return nil
}

func (m *Manager) audit(witnessID, from, to, reason, actor string) {
	if m.trail == nil {
		return
	}
	m.trail.Append(audit.Record{
		Component: "lifecycle",
		From:      from,
		To:        to,
		Reason:    reason,
		Actor:     actor,
	})
}

func isBelowC(g coretypes.Grade) bool {
	switch g {
	case coretypes.GradeD:
		return true
	default:
		return false
	}
}
