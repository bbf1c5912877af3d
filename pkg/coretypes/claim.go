// Package coretypes provides the shared data model for the trading decision
// core: claims, witnesses, weights, risk context, state, and execution
// results.
package coretypes

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimType enumerates the assertions a witness can make about market state.
type ClaimType string

const (
	ClaimMarketEligible    ClaimType = "MARKET_ELIGIBLE"
	ClaimMarketNotEligible ClaimType = "MARKET_NOT_ELIGIBLE"
	ClaimRegimeMatched     ClaimType = "REGIME_MATCHED"
	ClaimRegimeConflict    ClaimType = "REGIME_CONFLICT"
	ClaimExecutionVeto     ClaimType = "EXECUTION_VETO"
)

// Direction is the trade direction a claim argues for.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = "none"
)

// Tier is a witness's role in aggregation.
type Tier int

const (
	TierCore Tier = iota + 1 // T1 - can be dominant
	TierAuxiliary            // T2 - supports/opposes
	TierVeto                 // T3 - veto only, fixed at registration
)

func (t Tier) String() string {
	switch t {
	case TierCore:
		return "T1"
	case TierAuxiliary:
		return "T2"
	case TierVeto:
		return "T3"
	default:
		return "unknown"
	}
}

// Claim is an immutable, time-bounded assertion about market state emitted
// by one witness for one bar.
type Claim struct {
	StrategyID     string
	ClaimType      ClaimType
	Confidence     decimal.Decimal // [0,1]
	ValidityWindow time.Duration
	Direction      Direction
	Constraints    map[string]string
	Timestamp      time.Time
}

// Expired reports whether the claim's validity window has elapsed as of now.
func (c Claim) Expired(now time.Time) bool {
	return c.Timestamp.Add(c.ValidityWindow).Before(now)
}

// AllowedForTier reports whether claimType is a legal emission for tier, per
// the witness-panel invariants: T3 may only emit EXECUTION_VETO; T1 may emit
// MARKET_ELIGIBLE/MARKET_NOT_ELIGIBLE or REGIME_MATCHED; T2 may emit
// regime-support variants only (REGIME_MATCHED/REGIME_CONFLICT).
func AllowedForTier(tier Tier, claimType ClaimType) bool {
	switch tier {
	case TierVeto:
		return claimType == ClaimExecutionVeto
	case TierCore:
		return claimType == ClaimMarketEligible || claimType == ClaimMarketNotEligible || claimType == ClaimRegimeMatched
	case TierAuxiliary:
		return claimType == ClaimRegimeMatched || claimType == ClaimRegimeConflict
	default:
		return false
	}
}
