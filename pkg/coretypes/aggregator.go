package coretypes

import "github.com/shopspring/decimal"

// AggregatedResult is produced once per decision loop by the aggregator.
type AggregatedResult struct {
	DominantDirection Direction
	DominantClaim     *Claim // the T1 claim that set the dominant direction, nil if none was found
	TotalConfidence   decimal.Decimal
	IsTradeable       bool
	VetoStrategyID    string // empty unless a T3 veto fired
	ResolutionReason  string
}
