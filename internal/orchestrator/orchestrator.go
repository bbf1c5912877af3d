// Package orchestrator wires the trading decision core's seven components
// into the single control flow: bars -> witnesses -> claims -> aggregator
// (weights consulted) -> risk -> state machine -> user fan-out -> trade
// results -> health update -> weight update -> lifecycle
// promotion/demotion. There is exactly one decision loop here, not a fan
// of independent subsystems reacting to a shared event bus.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/aggregator"
	"github.com/atlas-trading/tradingcore/internal/executor"
	"github.com/atlas-trading/tradingcore/internal/lifecycle"
	"github.com/atlas-trading/tradingcore/internal/metrics"
	"github.com/atlas-trading/tradingcore/internal/risk"
	"github.com/atlas-trading/tradingcore/internal/statemachine"
	"github.com/atlas-trading/tradingcore/internal/weight"
	"github.com/atlas-trading/tradingcore/internal/witness"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"go.uber.org/zap"
)

// Broadcaster is the read-only operator surface's push side; the
// orchestrator depends on the narrow interface, not the concrete api.Server,
// so it can run headless in tests.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// RiskContextProvider supplies the system-level RiskContext the risk engine
// evaluates each loop - portfolio equity/drawdown/PnL aggregation across
// every user is an external collaborator concern (the same category as
// market-data ingestion), not something this core computes itself.
type RiskContextProvider func() coretypes.RiskContext

// Config is the orchestrator's own tunables, distinct from the shared
// decision config: how often the lifecycle sweep and metrics loop run.
type Config struct {
	LifecycleTickInterval time.Duration
	MetricsTickInterval   time.Duration
	ClaimBudget           time.Duration
}

// DefaultConfig returns sane background-loop intervals.
func DefaultConfig() Config {
	return Config{
		LifecycleTickInterval: time.Hour,
		MetricsTickInterval:   15 * time.Second,
		ClaimBudget:           2 * time.Second,
	}
}

// Loop ties every component together behind one process-wide decision
// cycle. Registered as a single type so cmd/tradingcore/main.go has one
// thing to construct and start.
type Loop struct {
	logger *zap.Logger
	cfg    Config

	registry    *witness.Registry
	weights     *weight.Manager
	health      *weight.HealthManager
	aggregator  *aggregator.Aggregator
	risk        *risk.Engine
	machine     *statemachine.Machine
	regime      *statemachine.RegimeTracker
	executor    *executor.Manager
	lifecycle   *lifecycle.Manager
	riskContext RiskContextProvider
	metrics     *metrics.Collectors
	broadcast   Broadcaster

	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	cooldownUntil time.Time
}

// New constructs a Loop from every already-wired component.
func New(
	logger *zap.Logger,
	cfg Config,
	registry *witness.Registry,
	weights *weight.Manager,
	health *weight.HealthManager,
	agg *aggregator.Aggregator,
	riskEngine *risk.Engine,
	machine *statemachine.Machine,
	regime *statemachine.RegimeTracker,
	exec *executor.Manager,
	lifecycleMgr *lifecycle.Manager,
	riskContext RiskContextProvider,
	collectors *metrics.Collectors,
	broadcast Broadcaster,
) *Loop {
	return &Loop{
		logger:      logger.Named("orchestrator"),
		cfg:         cfg,
		registry:    registry,
		weights:     weights,
		health:      health,
		aggregator:  agg,
		risk:        riskEngine,
		machine:     machine,
		regime:      regime,
		executor:    exec,
		lifecycle:   lifecycleMgr,
		riskContext: riskContext,
		metrics:     collectors,
		broadcast:   broadcast,
	}
}

// Start transitions SYSTEM_INIT->OBSERVING and launches the background
// lifecycle sweep and metrics gauges. The per-bar decision path itself is
// driven by ProcessBar, called directly by the market-data collaborator -
// there is no internal bar-polling loop here since bar arrival is push-driven.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	if err := l.machine.Transition(coretypes.StateObserving, "init complete", "orchestrator"); err != nil {
		l.logger.Error("initial transition failed", zap.Error(err))
	}

	go l.lifecycleLoop(ctx)
	go l.metricsLoop(ctx)

	l.logger.Info("orchestrator started")
	return nil
}

// Stop signals every background loop to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()
	l.logger.Info("orchestrator stopped")
}

func (l *Loop) lifecycleLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.LifecycleTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			l.lifecycle.Tick(now)
		}
	}
}

func (l *Loop) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.MetricsTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			for _, tier := range []coretypes.Tier{coretypes.TierCore, coretypes.TierAuxiliary, coretypes.TierVeto} {
				count := 0
				for _, meta := range l.registry.ListByTier(tier) {
					if meta.Status == coretypes.StatusActive {
						count++
					}
				}
				if l.metrics != nil {
					l.metrics.ActiveWitnesses.WithLabelValues(tier.String()).Set(float64(count))
				}
			}
		}
	}
}

// ProcessBar runs one full decision cycle for a freshly arrived bar set:
// witness fan-out, aggregation, risk evaluation, state transition, and (if
// authorized) the per-user execution fan-out.
func (l *Loop) ProcessBar(ctx context.Context, symbol string, bars []coretypes.Bar) {
	if len(bars) == 0 {
		return
	}
	claimCtx, cancel := context.WithTimeout(ctx, l.cfg.ClaimBudget)
	claims := l.registry.GenerateClaims(claimCtx, bars)
	cancel()

	tiered := make([]aggregator.TieredClaim, 0, len(claims))
	for _, c := range claims {
		meta, ok := l.registry.Get(c.StrategyID)
		if !ok {
			continue
		}
		tiered = append(tiered, aggregator.TieredClaim{Claim: c, Tier: meta.Tier})
		if l.metrics != nil {
			l.metrics.ClaimsEmitted.WithLabelValues(meta.Tier.String(), string(c.ClaimType)).Inc()
		}
	}

	now := time.Now()
	result := l.aggregator.Resolve(tiered, now)
	if l.metrics != nil {
		l.metrics.Aggregations.WithLabelValues(result.ResolutionReason).Inc()
		if result.VetoStrategyID != "" {
			l.metrics.VetoesTriggered.WithLabelValues(result.VetoStrategyID).Inc()
		}
	}
	regimeState := l.regime.Observe(result.DominantClaim, now)
	if l.broadcast != nil {
		l.broadcast.Broadcast("aggregated_result", result)
	}

	var rc coretypes.RiskContext
	if l.riskContext != nil {
		rc = l.riskContext()
	}
	rc.Now = now
	decision := l.risk.Evaluate(ctx, rc)
	if l.metrics != nil {
		l.metrics.RiskEvaluations.Inc()
		if !decision.Approved {
			l.metrics.RiskDenials.WithLabelValues(string(decision.Level)).Inc()
		}
	}

	l.advance(ctx, symbol, bars[len(bars)-1], result, decision, regimeState)
}

// advance applies the aggregated/risk verdict to the state machine and, when
// authorized, fans execution out to every user.
func (l *Loop) advance(ctx context.Context, symbol string, last coretypes.Bar, result coretypes.AggregatedResult, decision coretypes.RiskDecision, regimeState coretypes.RegimeState) {
	current := l.machine.Current()

	if decision.Level == coretypes.RiskLocked {
		err := l.machine.Transition(coretypes.StateRiskLocked, decision.Reason, "risk-engine")
		l.recordTransitionMetric(current, coretypes.StateRiskLocked, err == nil)
		return
	}

	switch current {
	case coretypes.StateObserving:
		if result.IsTradeable && decision.Approved {
			err := l.machine.Transition(coretypes.StateEligible, "aggregated tradeable and risk approved", "orchestrator")
			l.recordTransitionMetric(current, coretypes.StateEligible, err == nil)
		}
	case coretypes.StateEligible:
		if err := l.machine.Transition(coretypes.StateActiveTrading, "execution authorized", "orchestrator"); err != nil {
			l.recordTransitionMetric(current, coretypes.StateActiveTrading, false)
			return
		}
		l.recordTransitionMetric(current, coretypes.StateActiveTrading, true)

		abstract := coretypes.AbstractDecision{
			Symbol:        symbol,
			Direction:     result.DominantDirection,
			Confidence:    result.TotalConfidence,
			Regime:        regimeState.Primary,
			DecidedAt:     time.Now(),
			Deadline:      time.Now().Add(l.cfg.ClaimBudget),
			CorrelationID: fmt.Sprintf("%s-%d", symbol, time.Now().UnixNano()),
		}
		outcomes := l.executor.Execute(ctx, abstract, last.Close)
		for _, res := range outcomes {
			if l.metrics != nil {
				l.metrics.ExecutionOutcomes.WithLabelValues(string(res.Status)).Inc()
			}
			if l.broadcast != nil {
				l.broadcast.Broadcast("execution_result", res)
			}
		}

		l.mu.Lock()
		l.cooldownUntil = time.Now().Add(l.risk.CooldownFor(decision))
		l.mu.Unlock()
		if err := l.machine.Transition(coretypes.StateCooldown, "execution settled", "orchestrator"); err == nil {
			l.recordTransitionMetric(coretypes.StateActiveTrading, coretypes.StateCooldown, true)
		}
	case coretypes.StateCooldown:
		l.mu.Lock()
		expired := time.Now().After(l.cooldownUntil)
		l.mu.Unlock()
		if expired {
			err := l.machine.Transition(coretypes.StateObserving, "cooldown timer expired", "orchestrator")
			l.recordTransitionMetric(current, coretypes.StateObserving, err == nil)
		}
	case coretypes.StateRecovery:
		err := l.machine.Transition(coretypes.StateObserving, "recovery complete", "orchestrator")
		l.recordTransitionMetric(current, coretypes.StateObserving, err == nil)
	case coretypes.StateRiskLocked:
		// RISK_LOCKED -> RECOVERY is an operator-approved unlock, exercised
		// through ApproveRecovery, never automatically from this loop.
	}
}

// ApproveRecovery is the operator-triggered RISK_LOCKED->RECOVERY unlock.
func (l *Loop) ApproveRecovery(actor, reason string) error {
	return l.machine.Transition(coretypes.StateRecovery, reason, actor)
}

func (l *Loop) recordTransitionMetric(from, to coretypes.SystemState, accepted bool) {
	if l.metrics != nil {
		if accepted {
			l.metrics.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
		} else {
			l.metrics.StateRejections.WithLabelValues(string(from), string(to)).Inc()
		}
	}
	if l.broadcast != nil {
		l.broadcast.Broadcast("state_transition", map[string]interface{}{"from": from, "to": to, "accepted": accepted})
	}
}

// RecordTradeOutcome attributes a closed position's win/loss to the witness
// whose claim drove the decision, feeding the health update that in turn
// feeds the weight manager's pulled health_factor. Called by the external
// position-close collaborator once realized P&L is known - never by
// ProcessBar itself, which only ever sees unrealized, just-submitted orders.
func (l *Loop) RecordTradeOutcome(witnessID string, won bool) {
	l.health.RecordOutcome(witnessID, won)
	l.registry.SetHealth(witnessID, l.health.Health(witnessID))
}
