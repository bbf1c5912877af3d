package risk

import (
	"context"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CooldownDurations maps the three named cooldown triggers to their
// durations (normal 600s, stop-loss 1200s, consecutive-loss 3600s).
type CooldownDurations struct {
	Normal          time.Duration
	StopLoss        time.Duration
	ConsecutiveLoss time.Duration
}

// Engine runs every domain checker and resolves the unified verdict at the
// max severity across domains - a RISK_LOCKED from any one checker denies
// the whole decision.
type Engine struct {
	logger   *zap.Logger
	checkers []Checker
	cooldown CooldownDurations
}

// New constructs an Engine with the standard five domain checkers.
func New(logger *zap.Logger, t Thresholds, cooldown CooldownDurations) *Engine {
	return &Engine{
		logger: logger.Named("risk"),
		checkers: []Checker{
			&AccountSurvivalChecker{T: t},
			&ExecutionIntegrityChecker{T: t},
			&RegimeChecker{},
			&BehaviorChecker{T: t},
			&SystemChecker{},
		},
		cooldown: cooldown,
	}
}

// Evaluate runs all checkers against one RiskContext snapshot and combines
// their verdicts. All checkers always run, even once one has already
// denied, so every domain's reason is available in the result.
func (e *Engine) Evaluate(ctx context.Context, rc coretypes.RiskContext) coretypes.RiskDecision {
	results := make([]coretypes.RiskCheckResult, len(e.checkers))
	var errs error
	for i, c := range e.checkers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = multierr.Append(errs, &checkerPanic{domain: c.Domain(), value: r})
					results[i] = coretypes.RiskCheckResult{Domain: c.Domain(), Approved: false, Level: coretypes.RiskLocked, Reason: "checker panicked"}
				}
			}()
			results[i] = c.Check(rc)
		}()
	}
	if errs != nil {
		e.logger.Error("risk checkers failed", zap.Error(errs))
	}

	decision := coretypes.RiskDecision{Approved: true, Level: coretypes.RiskNormal, Domains: results}
	for _, r := range results {
		decision.Level = coretypes.MaxLevel(decision.Level, r.Level)
		if !r.Approved {
			decision.Approved = false
			if decision.Reason == "" {
				decision.Reason = r.Reason
			}
		}
	}
	return decision
}

// CooldownFor returns the configured duration for a RISK_LOCKED/COOLDOWN
// decision's triggering reason, defaulting to the normal cooldown.
func (e *Engine) CooldownFor(decision coretypes.RiskDecision) time.Duration {
	for _, d := range decision.Domains {
		switch d.Domain {
		case "behavior":
			if !d.Approved {
				return e.cooldown.ConsecutiveLoss
			}
		case "account_survival":
			if !d.Approved {
				return e.cooldown.StopLoss
			}
		}
	}
	return e.cooldown.Normal
}

type checkerPanic struct {
	domain string
	value  any
}

func (p *checkerPanic) Error() string {
	return "risk checker " + p.domain + " panicked"
}
