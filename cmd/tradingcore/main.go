// Command tradingcore boots the trading decision core: loads configuration,
// wires every component, registers the built-in witness set, starts the
// read-only operator API and the orchestrator, and waits for a termination
// signal to shut down cleanly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-trading/tradingcore/internal/aggregator"
	"github.com/atlas-trading/tradingcore/internal/api"
	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/config"
	"github.com/atlas-trading/tradingcore/internal/credentials"
	"github.com/atlas-trading/tradingcore/internal/exchange"
	"github.com/atlas-trading/tradingcore/internal/executor"
	"github.com/atlas-trading/tradingcore/internal/lifecycle"
	"github.com/atlas-trading/tradingcore/internal/metrics"
	"github.com/atlas-trading/tradingcore/internal/orchestrator"
	"github.com/atlas-trading/tradingcore/internal/risk"
	"github.com/atlas-trading/tradingcore/internal/statemachine"
	"github.com/atlas-trading/tradingcore/internal/weight"
	"github.com/atlas-trading/tradingcore/internal/witness"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	loader := config.NewLoader("tradingcore", ".")
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	trail := audit.NewTrail(logger, 10000, "")

	shadow := lifecycle.NewShadowLedger()
	registry := witness.NewRegistry(logger, cfg.ClaimBudget, shadow)
	lifecycleMgr := lifecycle.NewManager(logger, registry, shadow, trail)

	if err := seedBuiltinWitnesses(registry, lifecycleMgr); err != nil {
		return fmt.Errorf("witness seed: %w", err)
	}

	health := weight.NewHealthManager()
	weights := weight.NewManager(logger, weight.Clamps{
		BaseMin: cfg.Weights.BaseMin, BaseMax: cfg.Weights.BaseMax,
		HealthMin: cfg.Weights.HealthMin, HealthMax: cfg.Weights.HealthMax,
		LearningMin: cfg.Weights.LearningMin, LearningMax: cfg.Weights.LearningMax,
		LearningDailyDrift: coretypes.LearningFactorDailyDrift,
	}, health, trail)

	agg := aggregator.New(logger, weights, aggregator.Config{
		Tier2BaseFactor:     decimal.NewFromFloat(cfg.Aggregator.Tier2BaseFactor),
		ConfidenceThreshold: decimal.NewFromFloat(cfg.Aggregator.ConfidenceThreshold),
	})

	riskEngine := risk.New(logger, risk.Thresholds{
		MaxDrawdown:              cfg.Risk.MaxDrawdown,
		DailyMaxLoss:             cfg.Risk.DailyMaxLoss,
		WeeklyMaxLoss:            cfg.Risk.WeeklyMaxLoss,
		ConsecutiveLossThreshold: cfg.Risk.ConsecutiveLossThreshold,
		MaxSinglePosition:        cfg.Risk.MaxSinglePosition,
		MaxTotalPosition:         cfg.Risk.MaxTotalPosition,
		MaxLeverage:              cfg.Risk.MaxLeverage,
	}, risk.CooldownDurations{
		Normal:          cfg.Risk.NormalCooldown,
		StopLoss:        cfg.Risk.StopLossCooldown,
		ConsecutiveLoss: cfg.Risk.ConsecutiveLossCooldown,
	})

	machine := statemachine.New(logger, trail)
	regime := statemachine.NewRegimeTracker()

	execMgr := executor.NewManager(logger, riskEngine, trail, cfg.FanoutDeadline)
	if err := seedPaperUser(logger, execMgr, "demo-user"); err != nil {
		return fmt.Errorf("seed paper user: %w", err)
	}

	collectors := metrics.NewCollectors()
	collectors.MustRegister(prometheus.DefaultRegisterer)

	apiCfg := api.Config{Host: "0.0.0.0", Port: 8090, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	server := api.NewServer(logger, apiCfg, machine, regime, registry, weights, trail)

	// Portfolio-level equity/drawdown/PnL aggregation across every user is
	// an external collaborator concern; this stub keeps the loop runnable
	// standalone and is the seam a real portfolio ledger plugs into.
	riskContext := func() coretypes.RiskContext {
		return coretypes.RiskContext{
			Equity:             decimal.NewFromInt(100000),
			CurrentDrawdown:    decimal.Zero,
			CurrentPositionPct: decimal.Zero,
			TotalPositionPct:   decimal.Zero,
			Leverage:           decimal.NewFromInt(1),
		}
	}

	loop := orchestrator.New(
		logger,
		orchestrator.DefaultConfig(),
		registry,
		weights,
		health,
		agg,
		riskEngine,
		machine,
		regime,
		execMgr,
		lifecycleMgr,
		riskContext,
		collectors,
		server,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator start: %w", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	loop.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}
	return nil
}

// seedBuiltinWitnesses registers the standard momentum/breakout/
// mean-reversion/volatility-veto strategy set and, for the T1/T2
// hypotheses, immediately activates them so a freshly started process has
// a usable panel rather than an empty one stuck in TESTING. The T3 veto
// witness needs no such step: the registry activates it on registration.
func seedBuiltinWitnesses(registry *witness.Registry, lifecycleMgr *lifecycle.Manager) error {
	t1 := witness.NewEventWitness("momentum_t1", coretypes.TierCore,
		witness.MomentumEvent(10, decimal.NewFromFloat(0.02)), 5*time.Minute)
	t1b := witness.NewEventWitness("breakout_t1", coretypes.TierCore,
		witness.BreakoutEvent(20), 5*time.Minute)
	t2 := witness.NewEventWitness("mean_reversion_t2", coretypes.TierAuxiliary,
		witness.MeanReversionEvent(20, decimal.NewFromFloat(0.03)), 5*time.Minute)
	t3 := witness.NewVetoWitness("volatility_spike_veto",
		witness.VolatilitySpikeVeto(14, decimal.NewFromFloat(3)), 5*time.Minute)

	for _, seed := range []struct {
		w    witness.Witness
		tier coretypes.Tier
	}{
		{t1, coretypes.TierCore},
		{t1b, coretypes.TierCore},
		{t2, coretypes.TierAuxiliary},
		{t3, coretypes.TierVeto},
	} {
		if err := lifecycleMgr.RegisterHypothesis(seed.w, seed.tier); err != nil {
			return err
		}
		if seed.tier != coretypes.TierVeto {
			if err := registry.SetStatus(seed.w.ID(), coretypes.StatusActive, "bootstrap seed"); err != nil {
				return err
			}
		}
	}
	return nil
}

// seedPaperUser wires one paper-trading UserContext onto the executor so a
// freshly started process has at least one eligible user to fan decisions
// out to. Real user population (credentials, venue selection, tier) is an
// account-service collaborator concern; this is the standalone demo path.
func seedPaperUser(logger *zap.Logger, execMgr *executor.Manager, userID string) error {
	env, err := credentials.NewEnvelope(make([]byte, 32))
	if err != nil {
		return fmt.Errorf("credentials envelope: %w", err)
	}
	encrypted, err := env.Encrypt([]byte("paper-secret"))
	if err != nil {
		return fmt.Errorf("credentials encrypt: %w", err)
	}
	uc, err := executor.NewUserContext(userID, env, encrypted, exchange.NewPaperClient(),
		decimal.NewFromInt(1), decimal.NewFromFloat(0.05), coretypes.TierBasic)
	if err != nil {
		return fmt.Errorf("user context: %w", err)
	}
	execMgr.AddUser(uc)
	logger.Info("paper user seeded", zap.String("user_id", userID))
	return nil
}
