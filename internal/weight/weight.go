// Package weight provides the Weight Manager: the effective-weight table
// the aggregator consults, with health pulled live from the HealthManager
// and learning factors set (within clamps and a daily drift cap) by the
// weekly learning update.
package weight

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"go.uber.org/zap"
)

// Clamps is the set of clamp ranges for the three weight factors, sourced
// from config so operators can retune within the data model's own bounds.
type Clamps struct {
	BaseMin, BaseMax         float64
	HealthMin, HealthMax     float64
	LearningMin, LearningMax float64
	LearningDailyDrift       float64
}

// DefaultClamps returns the standard clamp ranges.
func DefaultClamps() Clamps {
	return Clamps{
		BaseMin: coretypes.BaseWeightMin, BaseMax: coretypes.BaseWeightMax,
		HealthMin: coretypes.HealthFactorMin, HealthMax: coretypes.HealthFactorMax,
		LearningMin: coretypes.LearningFactorMin, LearningMax: coretypes.LearningFactorMax,
		LearningDailyDrift: coretypes.LearningFactorDailyDrift,
	}
}

type row struct {
	base     float64
	learning float64

	// driftDay/driftUsed track the cumulative |delta| applied to learning
	// this calendar day, enforcing the +-0.05 cap cumulatively across
	// multiple setter calls rather than resetting the cap on each call.
	driftDay  string
	driftUsed float64
}

// Manager is the Weight Manager: owns the weight table (base + learning
// per witness) and pulls health live from a HealthManager on every read.
type Manager struct {
	logger  *zap.Logger
	mu      sync.Mutex
	rows    map[string]*row
	clamps  Clamps
	health  *HealthManager
	trail   *audit.Trail
}

// NewManager constructs a Manager. trail may be nil in tests that don't
// care about the audit side effect.
func NewManager(logger *zap.Logger, clamps Clamps, health *HealthManager, trail *audit.Trail) *Manager {
	return &Manager{
		logger: logger.Named("weight"),
		rows:   make(map[string]*row),
		clamps: clamps,
		health: health,
		trail:  trail,
	}
}

func (m *Manager) rowFor(id string) *row {
	r, ok := m.rows[id]
	if !ok {
		r = &row{base: 1.0, learning: 1.0}
		m.rows[id] = r
	}
	return r
}

// GetWeight returns the current effective weight for a witness. health_factor
// is refreshed from the HealthManager's current grade at read time - pull,
// not push.
func (m *Manager) GetWeight(id string) coretypes.Weight {
	m.mu.Lock()
	r := m.rowFor(id)
	base, learning := r.base, r.learning
	m.mu.Unlock()

	healthFactor := 1.0
	if m.health != nil {
		healthFactor = coretypes.Clamp(m.health.Health(id).WeightScalar, m.clamps.HealthMin, m.clamps.HealthMax)
	}
	return coretypes.Weight{
		WitnessID:      id,
		BaseWeight:     base,
		HealthFactor:   healthFactor,
		LearningFactor: learning,
	}
}

// SetBaseWeight clamps and writes the operator-set base weight, emitting an
// audit record.
func (m *Manager) SetBaseWeight(id string, v float64) error {
	v = coretypes.Clamp(v, m.clamps.BaseMin, m.clamps.BaseMax)
	m.mu.Lock()
	r := m.rowFor(id)
	old := r.base
	r.base = v
	m.mu.Unlock()
	m.audit(id, "set_base_weight", fmt.Sprintf("%.4f -> %.4f", old, v))
	return nil
}

// SetLearningFactor clamps and writes a learner-set learning factor,
// enforcing the +-0.05/day cumulative drift cap. Returns an error without
// writing if the cap would be exceeded.
func (m *Manager) SetLearningFactor(id string, v float64) error {
	today := time.Now().Format("2006-01-02")
	v = coretypes.Clamp(v, m.clamps.LearningMin, m.clamps.LearningMax)

	m.mu.Lock()
	r := m.rowFor(id)
	if r.driftDay != today {
		r.driftDay = today
		r.driftUsed = 0
	}
	delta := v - r.learning
	if delta < 0 {
		delta = -delta
	}
	if r.driftUsed+delta > m.clamps.LearningDailyDrift+1e-9 {
		m.mu.Unlock()
		return fmt.Errorf("weight: learning factor drift cap exceeded for %s (used %.4f, requested %.4f, cap %.4f/day)", id, r.driftUsed, delta, m.clamps.LearningDailyDrift)
	}
	old := r.learning
	r.learning = v
	r.driftUsed += delta
	m.mu.Unlock()
	m.audit(id, "set_learning_factor", fmt.Sprintf("%.4f -> %.4f", old, v))
	return nil
}

func (m *Manager) audit(witnessID, op, detail string) {
	m.logger.Info(op, zap.String("witness", witnessID), zap.String("detail", detail))
	if m.trail != nil {
		m.trail.Append(audit.Record{
			Component: "weight",
			Reason:    fmt.Sprintf("%s: %s", op, detail),
			Actor:     "weight-manager",
		})
	}
}
