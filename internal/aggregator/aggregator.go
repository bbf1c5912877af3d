// Package aggregator resolves a claim set into a tradeable direction with
// total confidence, or a refusal.
package aggregator

import (
	"sort"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TieredClaim pairs a claim with the tier of the witness that emitted it -
// the aggregator needs tier to apply its per-tier resolution rules, but
// Claim itself (the wire/audit record) does not carry tier.
type TieredClaim struct {
	Claim coretypes.Claim
	Tier  coretypes.Tier
}

// WeightProvider is the read side of the weight manager the aggregator
// consults for non-dominant claims.
type WeightProvider interface {
	GetWeight(witnessID string) coretypes.Weight
}

// Config holds the aggregator's two tunables.
type Config struct {
	Tier2BaseFactor     decimal.Decimal
	ConfidenceThreshold decimal.Decimal
}

// confidenceCeiling is the hard 0.95 cap: the system never treats any
// signal as certain.
var confidenceCeiling = decimal.NewFromFloat(0.95)

// regimeUnclearBand is the "within 10%" tie-break window used to detect a
// genuine T1 disagreement rather than noise.
var regimeUnclearBand = decimal.NewFromFloat(0.10)

// opposingPenalty is the 0.5x asymmetric weight applied to opposing
// non-dominant claims.
var opposingPenalty = decimal.NewFromFloat(0.5)

// Aggregator turns one loop's claim set into an AggregatedResult.
type Aggregator struct {
	logger  *zap.Logger
	weights WeightProvider
	config  Config
}

// New constructs an Aggregator.
func New(logger *zap.Logger, weights WeightProvider, config Config) *Aggregator {
	return &Aggregator{logger: logger.Named("aggregator"), weights: weights, config: config}
}

// Resolve walks claims through the veto/dominance/disagreement/weighted-sum
// pipeline and returns either a tradeable direction or a tagged refusal.
func (a *Aggregator) Resolve(claims []TieredClaim, now time.Time) coretypes.AggregatedResult {
	// 1. Drop expired claims.
	live := make([]TieredClaim, 0, len(claims))
	for _, c := range claims {
		if !c.Claim.Expired(now) {
			live = append(live, c)
		}
	}

	// 2. Any T3 claim vetoes immediately.
	for _, c := range live {
		if c.Tier == coretypes.TierVeto && c.Claim.ClaimType == coretypes.ClaimExecutionVeto {
			return coretypes.AggregatedResult{
				IsTradeable:      false,
				VetoStrategyID:   c.Claim.StrategyID,
				ResolutionReason: "EXECUTION_VETO",
			}
		}
	}

	// 3. Dominant T1 claim: highest confidence among directional T1 claims,
	// ties broken by witness id lexicographically.
	var t1Directional []TieredClaim
	for _, c := range live {
		if c.Tier == coretypes.TierCore && c.Claim.Direction != coretypes.DirectionNone {
			t1Directional = append(t1Directional, c)
		}
	}
	if len(t1Directional) == 0 {
		return coretypes.AggregatedResult{IsTradeable: false, ResolutionReason: "NO_DOMINANT_CLAIM"}
	}
	sort.SliceStable(t1Directional, func(i, j int) bool {
		ci, cj := t1Directional[i].Claim, t1Directional[j].Claim
		if !ci.Confidence.Equal(cj.Confidence) {
			return ci.Confidence.GreaterThan(cj.Confidence)
		}
		return ci.StrategyID < cj.StrategyID
	})
	dominant := t1Directional[0]

	// 4. Disagreement-within-10%-and-both-eligible -> REGIME_UNCLEAR refusal.
	for _, c := range t1Directional[1:] {
		if c.Claim.Direction == dominant.Claim.Direction {
			continue
		}
		if c.Claim.ClaimType != coretypes.ClaimMarketEligible || dominant.Claim.ClaimType != coretypes.ClaimMarketEligible {
			continue
		}
		diff := dominant.Claim.Confidence.Sub(c.Claim.Confidence).Abs()
		if diff.LessThanOrEqual(dominant.Claim.Confidence.Mul(regimeUnclearBand)) {
			return coretypes.AggregatedResult{IsTradeable: false, ResolutionReason: "REGIME_UNCLEAR", DominantClaim: &dominant.Claim}
		}
	}

	// 5. Start total at the dominant's confidence.
	total := dominant.Claim.Confidence

	// 6. Fold in every remaining non-veto claim.
	for _, c := range live {
		if c.Tier == coretypes.TierVeto {
			continue
		}
		if c.Tier == coretypes.TierCore && c.Claim.StrategyID == dominant.Claim.StrategyID {
			continue
		}
		if c.Claim.Direction == coretypes.DirectionNone {
			continue
		}
		w := a.weights.GetWeight(c.Claim.StrategyID)
		factor := decimal.NewFromFloat(w.Effective()).Mul(a.config.Tier2BaseFactor)
		if c.Claim.Direction == dominant.Claim.Direction {
			total = total.Add(c.Claim.Confidence.Mul(factor))
		} else {
			total = total.Sub(c.Claim.Confidence.Mul(factor).Mul(opposingPenalty))
		}
	}

	// 7. Clamp to [0, 0.95].
	if total.IsNegative() {
		total = decimal.Zero
	}
	if total.GreaterThan(confidenceCeiling) {
		total = confidenceCeiling
	}

	// 8. Tradeable iff total >= threshold.
	tradeable := total.GreaterThanOrEqual(a.config.ConfidenceThreshold)
	reason := "RESOLVED"
	if !tradeable {
		reason = "BELOW_THRESHOLD"
	}
	return coretypes.AggregatedResult{
		DominantDirection: dominant.Claim.Direction,
		DominantClaim:     &dominant.Claim,
		TotalConfidence:   total,
		IsTradeable:       tradeable,
		ResolutionReason:  reason,
	}
}
