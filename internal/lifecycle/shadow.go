// Package lifecycle implements the Strategy Lifecycle & Shadow subsystem:
// moving a witness through NEW -> TESTING -> SHADOW -> ACTIVE ->
// (DEGRADED <-> ACTIVE) -> RETIRED, and the shadow runner that scores a
// SHADOW witness's hypothetical claims before it ever trades real capital.
package lifecycle

import (
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
)

// shadowAlpha is the EMA smoothing factor for rolling shadow win rate.
const shadowAlpha = 0.1

// ShadowEntry is one logged hypothetical claim: the claim a SHADOW witness
// emitted, the market price at the time, and the claim's timestamp. Entries
// are not scored; outcomes are fed separately through RecordOutcome.
type ShadowEntry struct {
	Claim     coretypes.Claim
	Price     decimal.Decimal
	Timestamp time.Time
}

// shadowStats is the rolling ledger kept per SHADOW witness.
type shadowStats struct {
	entries []ShadowEntry
	winRate decimal.Decimal
	samples int
}

// ShadowLedger implements witness.ShadowRecorder: it logs every hypothetical
// claim a SHADOW witness produces and maintains a rolling win rate used by
// the TESTING -> SHADOW promotion check.
type ShadowLedger struct {
	mu    sync.Mutex
	stats map[string]*shadowStats
}

// NewShadowLedger constructs an empty ShadowLedger.
func NewShadowLedger() *ShadowLedger {
	return &ShadowLedger{stats: make(map[string]*shadowStats)}
}

// RecordShadowClaim logs one hypothetical claim against the contemporaneous
// market price. Called by the witness registry for every SHADOW-status
// witness on every bar; never reaches the aggregator.
func (l *ShadowLedger) RecordShadowClaim(witnessID string, claim coretypes.Claim, bars []coretypes.Bar) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[witnessID]
	if !ok {
		s = &shadowStats{}
		l.stats[witnessID] = s
	}
	price := decimal.Zero
	if len(bars) > 0 {
		price = bars[len(bars)-1].Close
	}
	s.entries = append(s.entries, ShadowEntry{Claim: claim, Price: price, Timestamp: claim.Timestamp})
}

// RecordOutcome records one won or lost hypothetical outcome for a witness,
// updating the rolling win rate with an EMA: new = old*(1-alpha) +
// alpha*(1 if win else 0). The first outcome sets the rate directly to 1 or
// 0. Logged shadow entries are left unchanged.
func (l *ShadowLedger) RecordOutcome(witnessID string, won bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[witnessID]
	if !ok {
		s = &shadowStats{}
		l.stats[witnessID] = s
	}
	alpha := decimal.NewFromFloat(shadowAlpha)
	if s.samples == 0 {
		if won {
			s.winRate = decimal.NewFromInt(1)
		}
	} else if won {
		s.winRate = s.winRate.Mul(decimal.NewFromFloat(1 - shadowAlpha)).Add(alpha)
	} else {
		s.winRate = s.winRate.Mul(decimal.NewFromFloat(1 - shadowAlpha))
	}
	s.samples++
}

// WinRate returns a witness's current rolling shadow win rate and sample
// count, used by the lifecycle manager's promotion checks.
func (l *ShadowLedger) WinRate(witnessID string) (decimal.Decimal, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[witnessID]
	if !ok {
		return decimal.Zero, 0
	}
	return s.winRate, s.samples
}

// Entries returns a copy of the logged hypothetical claims for a witness,
// oldest first.
func (l *ShadowLedger) Entries(witnessID string) []ShadowEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[witnessID]
	if !ok {
		return nil
	}
	out := make([]ShadowEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

var _ interface {
	RecordShadowClaim(witnessID string, claim coretypes.Claim, bars []coretypes.Bar)
} = (*ShadowLedger)(nil)
