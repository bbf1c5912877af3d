package witness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/coreerrors"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"go.uber.org/zap"
)

// entry is the registry's internal record for one witness.
type entry struct {
	w    Witness
	meta coretypes.WitnessMeta
}

// ShadowRecorder receives claims from SHADOW witnesses; it never sees
// ACTIVE-routed claims and the aggregator never sees shadow ones.
type ShadowRecorder interface {
	RecordShadowClaim(witnessID string, claim coretypes.Claim, bars []coretypes.Bar)
}

// Registry holds the registered witness set and fans bar data out to each
// of them within a bounded per-loop time budget, isolating a single
// witness's error or panic from the rest of the panel - grounded on the
// teacher's worker-pool panic-recovery pattern, applied here per-witness
// rather than per-queued-task since the panel's fan-out is one-shot per
// loop, not a persistent queue.
type Registry struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	entries map[string]*entry
	budget  time.Duration
	shadow  ShadowRecorder

	invalidClaims int64
}

// NewRegistry constructs a Registry with the given per-loop claim-generation
// time budget.
func NewRegistry(logger *zap.Logger, budget time.Duration, shadow ShadowRecorder) *Registry {
	return &Registry{
		logger:  logger.Named("witness-panel"),
		entries: make(map[string]*entry),
		budget:  budget,
		shadow:  shadow,
	}
}

// Register adds a witness to the panel. A witness implementing any
// forbidden capability is rejected with an ArchitectureViolation - checked
// once here, not on every call.
func (r *Registry) Register(w Witness, tier coretypes.Tier) error {
	if cap, ok := forbiddenCapability(w); ok {
		return &coreerrors.ArchitectureViolation{WitnessID: w.ID(), Capability: cap}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[w.ID()]; exists {
		return fmt.Errorf("witness %s already registered", w.ID())
	}
	// T3 bypasses the lifecycle subsystem and is active on arrival: a veto
	// witness sitting at NEW would never be fanned out by GenerateClaims,
	// and the "any T3 claim forces is_tradeable=false" guarantee has to
	// hold from the moment a veto witness is registered, not after some
	// separate activation step.
	status := coretypes.StatusNew
	if tier == coretypes.TierVeto {
		status = coretypes.StatusActive
	}
	r.entries[w.ID()] = &entry{
		w: w,
		meta: coretypes.WitnessMeta{
			ID:              w.ID(),
			Tier:            tier,
			Status:          status,
			RegisteredAt:    time.Now(),
			StatusChangedAt: time.Now(),
		},
	}
	r.logger.Info("witness registered", zap.String("id", w.ID()), zap.String("tier", tier.String()))
	return nil
}

func forbiddenCapability(w Witness) (string, bool) {
	if _, ok := w.(OrderPlacer); ok {
		return "PlaceOrder", true
	}
	if _, ok := w.(AccountReader); ok {
		return "ReadAccount", true
	}
	if _, ok := w.(PositionSizer); ok {
		return "ComputeSize", true
	}
	return "", false
}

// Unregister removes a witness entirely.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("witness %s not found", id)
	}
	delete(r.entries, id)
	return nil
}

// ListByTier returns a snapshot of metadata for every witness at tier.
func (r *Registry) ListByTier(tier coretypes.Tier) []coretypes.WitnessMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []coretypes.WitnessMeta
	for _, e := range r.entries {
		if e.meta.Tier == tier {
			out = append(out, e.meta)
		}
	}
	return out
}

// Get returns a snapshot of one witness's metadata.
func (r *Registry) Get(id string) (coretypes.WitnessMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return coretypes.WitnessMeta{}, false
	}
	return e.meta, true
}

// SetStatus transitions a witness's lifecycle status. Reason is recorded
// for audit; callers (the lifecycle manager) are responsible for only
// requesting legal transitions.
func (r *Registry) SetStatus(id string, status coretypes.WitnessStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("witness %s not found", id)
	}
	e.meta.Status = status
	e.meta.StatusChangedAt = time.Now()
	r.logger.Info("witness status changed", zap.String("id", id), zap.String("status", string(status)), zap.String("reason", reason))
	return nil
}

// SetHealth updates a witness's health snapshot (pushed by the weight
// manager/health manager after each loop's outcomes are scored).
func (r *Registry) SetHealth(id string, health coretypes.WitnessHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("witness %s not found", id)
	}
	health.Muted = health.Muted || health.ShouldAutoMute()
	e.meta.Health = health
	return nil
}

// SetTier changes a witness's tier. Denied when the witness is T3, or the
// target tier is T3 - T3 is fixed at registration and can never be demoted
// or retired, and promotion into a veto role is not a lifecycle operation.
func (r *Registry) SetTier(id string, tier coretypes.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("witness %s not found", id)
	}
	if e.meta.Tier == coretypes.TierVeto || tier == coretypes.TierVeto {
		return fmt.Errorf("witness %s: tier change involving T3 is forbidden", id)
	}
	e.meta.Tier = tier
	return nil
}

// claimResult pairs a generated claim with its witness's current
// (tier, status) snapshot, captured at fan-out time.
type claimResult struct {
	meta  coretypes.WitnessMeta
	claim *coretypes.Claim
}

// GenerateClaims fans bars out to every registered witness concurrently,
// bounded by the registry's claim budget. MUTED and non-ACTIVE (except
// SHADOW) witnesses are discarded before aggregation; SHADOW claims are
// routed to the shadow recorder and never returned to the caller. A single
// witness's panic or error is isolated: logged, recorded as no-claim, and
// does not stall the loop for the rest of the panel.
func (r *Registry) GenerateClaims(ctx context.Context, bars []coretypes.Bar) []coretypes.Claim {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	results := make(chan claimResult, len(entries))
	var wg sync.WaitGroup
	for _, e := range entries {
		if e.meta.Status == coretypes.StatusRetired || e.meta.Status == coretypes.StatusNew || e.meta.Status == coretypes.StatusTesting {
			continue
		}
		if e.meta.Health.Muted {
			continue
		}
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("witness panicked", zap.String("id", e.w.ID()), zap.Any("panic", rec))
					results <- claimResult{meta: e.meta, claim: nil}
				}
			}()
			claim, err := e.w.GenerateClaim(ctx, bars)
			if err != nil {
				r.logger.Warn("witness error", zap.String("id", e.w.ID()), zap.Error(err))
				results <- claimResult{meta: e.meta, claim: nil}
				return
			}
			results <- claimResult{meta: e.meta, claim: claim}
		}(e)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var active []coretypes.Claim
	now := time.Now()
	for res := range results {
		if res.claim == nil {
			continue
		}
		claim := *res.claim
		if !coretypes.AllowedForTier(res.meta.Tier, claim.ClaimType) {
			r.invalidClaims++
			continue
		}
		if claim.Expired(now) {
			r.invalidClaims++
			continue
		}
		if res.meta.Status == coretypes.StatusShadow {
			if r.shadow != nil {
				r.shadow.RecordShadowClaim(res.meta.ID, claim, bars)
			}
			continue
		}
		if res.meta.Status != coretypes.StatusActive {
			// DEGRADED (and any other non-ACTIVE, non-SHADOW status)
			// claims are generated but discarded here: only ACTIVE and
			// SHADOW witnesses produce usable output.
			continue
		}
		active = append(active, claim)
	}
	return active
}

// InvalidClaimCount returns the running counter of claims dropped for
// expiry or tier-mismatch, per the InvalidClaim error kind's
// "dropped silently with a counter increment" contract.
func (r *Registry) InvalidClaimCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invalidClaims
}
