package witness

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/atlas-trading/tradingcore/pkg/utils"
	"github.com/shopspring/decimal"
)

// EventDefinition is a declarative predicate over bar features: a single
// concrete Witness type (EventWitness) holds one of these plus its tier
// and emission shape, instead of a generated type per hypothesis. The
// discovery/promotion pipeline builds EventDefinitions and hands them to
// the registry; it never emits Go types.
type EventDefinition struct {
	Name      string
	Predicate func(bars []coretypes.Bar) (matched bool, direction coretypes.Direction, confidence decimal.Decimal)
}

// EventWitness is the one concrete Witness implementation used for every
// declarative strategy, T1 or T2. T3 veto witnesses use VetoWitness below
// since their emission shape (EXECUTION_VETO, no direction) differs.
type EventWitness struct {
	id        string
	tier      coretypes.Tier
	def       EventDefinition
	claimType coretypes.ClaimType // MARKET_ELIGIBLE/MARKET_NOT_ELIGIBLE for T1, REGIME_MATCHED for T2
	validity  time.Duration
}

// NewEventWitness constructs a T1 (MARKET_ELIGIBLE) or T2 (REGIME_MATCHED)
// declarative witness from an event definition.
func NewEventWitness(id string, tier coretypes.Tier, def EventDefinition, validity time.Duration) *EventWitness {
	claimType := coretypes.ClaimMarketEligible
	if tier == coretypes.TierAuxiliary {
		claimType = coretypes.ClaimRegimeMatched
	}
	return &EventWitness{id: id, tier: tier, def: def, claimType: claimType, validity: validity}
}

func (w *EventWitness) ID() string            { return w.id }
func (w *EventWitness) Tier() coretypes.Tier   { return w.tier }

// GenerateClaim evaluates the predicate against the supplied read-only bar
// slice and emits at most one claim.
func (w *EventWitness) GenerateClaim(ctx context.Context, bars []coretypes.Bar) (*coretypes.Claim, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars", w.id)
	}
	matched, direction, confidence := w.def.Predicate(bars)
	if !matched {
		if w.tier == coretypes.TierCore {
			return &coretypes.Claim{
				StrategyID:     w.id,
				ClaimType:      coretypes.ClaimMarketNotEligible,
				Confidence:     decimal.Zero,
				ValidityWindow: w.validity,
				Direction:      coretypes.DirectionNone,
				Timestamp:      bars[len(bars)-1].Timestamp,
			}, nil
		}
		return nil, nil
	}
	return &coretypes.Claim{
		StrategyID:     w.id,
		ClaimType:      w.claimType,
		Confidence:     confidence,
		ValidityWindow: w.validity,
		Direction:      direction,
		Timestamp:      bars[len(bars)-1].Timestamp,
	}, nil
}

// VetoWitness is a T3 witness: fixed at registration, may only emit
// EXECUTION_VETO, and is architecturally incapable of supporting a
// direction.
type VetoWitness struct {
	id       string
	def      EventDefinition
	validity time.Duration
}

// NewVetoWitness constructs a T3 veto witness.
func NewVetoWitness(id string, def EventDefinition, validity time.Duration) *VetoWitness {
	return &VetoWitness{id: id, def: def, validity: validity}
}

func (w *VetoWitness) ID() string          { return w.id }
func (w *VetoWitness) Tier() coretypes.Tier { return coretypes.TierVeto }

func (w *VetoWitness) GenerateClaim(ctx context.Context, bars []coretypes.Bar) (*coretypes.Claim, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars", w.id)
	}
	matched, _, confidence := w.def.Predicate(bars)
	if !matched {
		return nil, nil
	}
	return &coretypes.Claim{
		StrategyID:     w.id,
		ClaimType:      coretypes.ClaimExecutionVeto,
		Confidence:     confidence,
		ValidityWindow: w.validity,
		Direction:      coretypes.DirectionNone,
		Timestamp:      bars[len(bars)-1].Timestamp,
	}, nil
}

// Built-in event definitions covering the standard momentum, breakout,
// mean-reversion, and volatility-spike veto set, expressed as the pure
// predicate shape an EventWitness needs rather than a stateful Strategy
// object.

// MomentumEvent fires long/short on N-bar close momentum past a threshold.
func MomentumEvent(lookback int, threshold decimal.Decimal) EventDefinition {
	return EventDefinition{
		Name: "momentum",
		Predicate: func(bars []coretypes.Bar) (bool, coretypes.Direction, decimal.Decimal) {
			if len(bars) <= lookback {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			last := bars[len(bars)-1].Close
			prior := bars[len(bars)-1-lookback].Close
			// Fractional change (0.02 == 2%), on the same scale as threshold.
			change := utils.CalculatePercentageChange(prior, last).Div(decimal.NewFromInt(100))
			if change.Abs().LessThan(threshold) {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			dir := coretypes.DirectionLong
			if change.IsNegative() {
				dir = coretypes.DirectionShort
			}
			conf := utils.ClampDecimal(change.Abs().Div(threshold).Mul(decimal.NewFromFloat(0.3)), decimal.Zero, decimal.NewFromFloat(0.95))
			return true, dir, conf
		},
	}
}

// BreakoutEvent fires when the close exceeds the lookback high/low range.
func BreakoutEvent(lookback int) EventDefinition {
	return EventDefinition{
		Name: "breakout",
		Predicate: func(bars []coretypes.Bar) (bool, coretypes.Direction, decimal.Decimal) {
			if len(bars) <= lookback {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			window := bars[len(bars)-1-lookback : len(bars)-1]
			high, low := window[0].High, window[0].Low
			for _, b := range window {
				high = utils.MaxDecimal(high, b.High)
				low = utils.MinDecimal(low, b.Low)
			}
			last := bars[len(bars)-1].Close
			switch {
			case last.GreaterThan(high):
				return true, coretypes.DirectionLong, decimal.NewFromFloat(0.7)
			case last.LessThan(low):
				return true, coretypes.DirectionShort, decimal.NewFromFloat(0.7)
			default:
				return false, coretypes.DirectionNone, decimal.Zero
			}
		},
	}
}

// MeanReversionEvent fires against an EMA deviation beyond a threshold.
func MeanReversionEvent(period int, deviation decimal.Decimal) EventDefinition {
	return EventDefinition{
		Name: "mean_reversion",
		Predicate: func(bars []coretypes.Bar) (bool, coretypes.Direction, decimal.Decimal) {
			if len(bars) < period {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			ema := utils.NewEMA(period)
			for _, b := range bars {
				ema.Add(b.Close)
			}
			last := bars[len(bars)-1].Close
			dev := last.Sub(ema.Current()).Div(ema.Current())
			if dev.Abs().LessThan(deviation) {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			dir := coretypes.DirectionShort // overextended above mean -> revert down
			if dev.IsNegative() {
				dir = coretypes.DirectionLong
			}
			conf := utils.ClampDecimal(dev.Abs().Div(deviation).Mul(decimal.NewFromFloat(0.25)), decimal.Zero, decimal.NewFromFloat(0.9))
			return true, dir, conf
		},
	}
}

// VolatilitySpikeVeto fires EXECUTION_VETO when the current bar's true range
// is an outsized multiple of the average true range of the lookback bars.
func VolatilitySpikeVeto(lookback int, multiple decimal.Decimal) EventDefinition {
	return EventDefinition{
		Name: "volatility_spike_veto",
		Predicate: func(bars []coretypes.Bar) (bool, coretypes.Direction, decimal.Decimal) {
			if len(bars) <= lookback {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			trueRange := func(i int) decimal.Decimal {
				tr := bars[i].High.Sub(bars[i].Low)
				if i > 0 {
					prevClose := bars[i-1].Close
					tr = utils.MaxDecimal(tr, bars[i].High.Sub(prevClose).Abs())
					tr = utils.MaxDecimal(tr, bars[i].Low.Sub(prevClose).Abs())
				}
				return tr
			}
			avgRange := decimal.Zero
			for i := len(bars) - 1 - lookback; i < len(bars)-1; i++ {
				avgRange = avgRange.Add(trueRange(i))
			}
			avgRange = avgRange.Div(decimal.NewFromInt(int64(lookback)))
			if avgRange.IsZero() {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			r := trueRange(len(bars) - 1)
			if r.Div(avgRange).LessThan(multiple) {
				return false, coretypes.DirectionNone, decimal.Zero
			}
			return true, coretypes.DirectionNone, decimal.NewFromFloat(1.0)
		},
	}
}
