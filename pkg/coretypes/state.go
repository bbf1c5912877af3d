package coretypes

import "time"

// SystemState is the single process-wide trading state.
type SystemState string

const (
	StateInit          SystemState = "SYSTEM_INIT"
	StateObserving     SystemState = "OBSERVING"
	StateEligible      SystemState = "ELIGIBLE"
	StateActiveTrading SystemState = "ACTIVE_TRADING"
	StateCooldown      SystemState = "COOLDOWN"
	StateRiskLocked    SystemState = "RISK_LOCKED"
	StateRecovery      SystemState = "RECOVERY"
)

// TradeRegime is the qualitative market mode, advisory to the executor.
type TradeRegime string

const (
	RegimeVolatilityExpansion  TradeRegime = "VOLATILITY_EXPANSION"
	RegimeRangeStructureBreak  TradeRegime = "RANGE_STRUCTURE_BREAK"
	RegimeLiquiditySweep       TradeRegime = "LIQUIDITY_SWEEP"
	RegimeNone                 TradeRegime = "NO_REGIME"
)

// RegimeState extends the raw TradeRegime with how long the process has
// held it and a stability confidence - an envelope around the pure
// regime derivation, not a replacement for it.
type RegimeState struct {
	Primary    TradeRegime
	Confidence float64
	StartedAt  time.Time
	Duration   time.Duration
}

// StateTransition describes the fields of one state-machine transition. The
// state machine itself records transitions in the audit trail as
// audit.Record entries, not as StateTransition values.
type StateTransition struct {
	From      SystemState
	To        SystemState
	Reason    string
	Actor     string
	Timestamp time.Time
	Correlation string
}
