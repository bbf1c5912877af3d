package weight

import (
	"sync"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
)

// HealthManager tracks per-witness cumulative win rate (all recorded wins
// over all recorded outcomes) and derives a grade.
// Grade-to-scalar mapping is fixed (A=1.2, B=1.0, C=0.7, D=0.5); the
// win-rate -> grade bucketing is this package's own choice, recorded in
// DESIGN.md.
type HealthManager struct {
	mu    sync.RWMutex
	stats map[string]*witnessStats
}

type witnessStats struct {
	wins  int
	total int
}

// NewHealthManager constructs an empty HealthManager.
func NewHealthManager() *HealthManager {
	return &HealthManager{stats: make(map[string]*witnessStats)}
}

// RecordOutcome records one closed-trade outcome attributed to a witness.
func (h *HealthManager) RecordOutcome(witnessID string, won bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stats[witnessID]
	if !ok {
		s = &witnessStats{}
		h.stats[witnessID] = s
	}
	s.total++
	if won {
		s.wins++
	}
}

// Health returns the current health snapshot for a witness. Unseen
// witnesses default to grade B (neutral) with zero samples.
func (h *HealthManager) Health(witnessID string) coretypes.WitnessHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.stats[witnessID]
	if !ok || s.total == 0 {
		return coretypes.WitnessHealth{Grade: coretypes.GradeB, WeightScalar: coretypes.GradeScalar(coretypes.GradeB)}
	}
	winRate := float64(s.wins) / float64(s.total)
	grade := gradeFor(winRate, s.total)
	health := coretypes.WitnessHealth{
		WinRate:      winRate,
		SampleCount:  s.total,
		Grade:        grade,
		WeightScalar: coretypes.GradeScalar(grade),
	}
	health.Muted = health.ShouldAutoMute()
	return health
}

// gradeFor buckets a win rate into a grade. Thresholds are a deliberate,
// documented choice (the grade->scalar table is fixed, this bucketing is
// not): >=0.55 A, >=0.50 B, >=0.40 C, else D. A
// witness needs at least 20 samples before it can be graded A or D, so a
// lucky/unlucky streak on a handful of trades does not immediately swing
// its weight to the extremes.
func gradeFor(winRate float64, sampleCount int) coretypes.Grade {
	switch {
	case winRate >= 0.55 && sampleCount >= 20:
		return coretypes.GradeA
	case winRate >= 0.50:
		return coretypes.GradeB
	case winRate >= 0.40:
		return coretypes.GradeC
	case sampleCount >= 20:
		return coretypes.GradeD
	default:
		return coretypes.GradeC
	}
}

// DecimalWinRate exposes win rate as a decimal for callers already working
// in decimal.Decimal.
func (h *HealthManager) DecimalWinRate(witnessID string) decimal.Decimal {
	return decimal.NewFromFloat(h.Health(witnessID).WinRate)
}
