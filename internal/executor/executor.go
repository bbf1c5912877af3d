// Package executor implements the per-user executor: given one authorized
// abstract decision, fan out parallel execution across every eligible
// user, each with its own risk tailoring and exchange client, isolating
// one user's failure from every other's.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/exchange"
	"github.com/atlas-trading/tradingcore/internal/risk"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Manager owns the UserContext map and runs the per-decision fan-out. The
// fan-out itself is built on conc.WaitGroup: structured concurrency, one
// goroutine per user, joined with a deadline.
type Manager struct {
	logger   *zap.Logger
	risk     *risk.Engine
	trail    *audit.Trail
	deadline time.Duration

	mu    sync.RWMutex
	users map[string]*UserContext

	resultsMu sync.Mutex
	results   map[string]coretypes.ExecutionResult // "<userID>:<orderID>" -> cached result
}

// NewManager constructs a Manager.
func NewManager(logger *zap.Logger, riskEngine *risk.Engine, trail *audit.Trail, deadline time.Duration) *Manager {
	return &Manager{
		logger:   logger.Named("executor"),
		risk:     riskEngine,
		trail:    trail,
		deadline: deadline,
		users:    make(map[string]*UserContext),
		results:  make(map[string]coretypes.ExecutionResult),
	}
}

// AddUser registers an activated user context.
func (m *Manager) AddUser(uc *UserContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[uc.UserID] = uc
}

// RemoveUser destroys and removes a user context (suspension/removal).
func (m *Manager) RemoveUser(userID string) {
	m.mu.Lock()
	uc, ok := m.users[userID]
	delete(m.users, userID)
	m.mu.Unlock()
	if ok {
		uc.Destroy()
	}
}

// eligible implements the order-matters, short-circuiting eligibility
// filter applied to every user before sizing.
func eligible(uc *UserContext, decision coretypes.AbstractDecision) (bool, string) {
	if uc.Status != UserStatusActive {
		return false, "user not active"
	}
	if !uc.CredentialsValid {
		return false, "credentials invalid"
	}
	if uc.Locked() {
		return false, "user risk-locked"
	}
	maxFraction := coretypes.MaxPositionFractionForTier(uc.SubscriptionTier)
	if uc.MaxPositionPct.GreaterThan(maxFraction) {
		return false, "subscription tier does not permit this position fraction"
	}
	return true, ""
}

// sizeOrder computes the quantity this user would take, a pure function of
// user state plus the abstract decision - never mutating global state.
func sizeOrder(uc *UserContext, decision coretypes.AbstractDecision, referencePrice decimal.Decimal) decimal.Decimal {
	if referencePrice.IsZero() {
		return decimal.Zero
	}
	fraction := uc.MaxPositionPct
	if tierMax := coretypes.MaxPositionFractionForTier(uc.SubscriptionTier); tierMax.LessThan(fraction) {
		fraction = tierMax
	}
	notional := uc.Risk.Equity.Mul(fraction).Mul(decision.Confidence)
	return notional.Div(referencePrice)
}

// Execute broadcasts an authorized abstract decision to every eligible
// user and executes in parallel, with per-user failure isolation. The
// returned map is keyed by user id.
func (m *Manager) Execute(ctx context.Context, decision coretypes.AbstractDecision, referencePrice decimal.Decimal) map[string]coretypes.ExecutionResult {
	m.mu.RLock()
	users := make([]*UserContext, 0, len(m.users))
	for _, uc := range m.users {
		users = append(users, uc)
	}
	m.mu.RUnlock()

	fanoutCtx, cancel := context.WithTimeout(ctx, m.deadline)
	defer cancel()

	out := make(map[string]coretypes.ExecutionResult, len(users))
	var mu sync.Mutex
	wg := conc.NewWaitGroup()
	for _, uc := range users {
		uc := uc
		wg.Go(func() {
			result := m.executeOne(fanoutCtx, uc, decision, referencePrice)
			if result == nil {
				return
			}
			mu.Lock()
			out[uc.UserID] = *result
			mu.Unlock()
		})
	}
	wg.Wait()
	return out
}

// executeOne handles a single user's eligibility, sizing, per-user risk
// check, submission, and idempotency - isolated so a panic or error here
// never reaches other users' goroutines.
func (m *Manager) executeOne(ctx context.Context, uc *UserContext, decision coretypes.AbstractDecision, referencePrice decimal.Decimal) (res *coretypes.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic during user execution", zap.String("user", uc.UserID), zap.Any("panic", r))
			flagged := rejection(uc.UserID, decision, "internal error")
			res = &flagged
		}
	}()

	ok, reason := eligible(uc, decision)
	if !ok {
		result := rejection(uc.UserID, decision, reason)
		return &result
	}

	orderID := fmt.Sprintf("%s:%s", decision.CorrelationID, uc.UserID)
	if cached, found := m.cached(uc.UserID, orderID); found {
		flags := make(map[coretypes.ExecutionFlag]struct{}, len(cached.Flags)+1)
		for f := range cached.Flags {
			flags[f] = struct{}{}
		}
		flags[coretypes.FlagDuplicate] = struct{}{}
		cached.Flags = flags
		return &cached
	}

	qty := sizeOrder(uc, decision, referencePrice)
	if qty.IsZero() || qty.IsNegative() {
		result := rejection(uc.UserID, decision, "zero-size order")
		return &result
	}

	rc := uc.RiskSnapshot()
	decisionVerdict := m.risk.Evaluate(ctx, rc)
	if !decisionVerdict.Approved {
		result := coretypes.ExecutionResult{
			OrderID: orderID, UserID: uc.UserID, Status: coretypes.ExecStatusRejected,
			Timestamp: time.Now(), Flags: flagsFor(decisionVerdict.Level),
		}
		uc.RecordOutcome(result, decimal.Zero)
		m.store(uc.UserID, orderID, result)
		return &result
	}

	side := "buy"
	if decision.Direction == coretypes.DirectionShort {
		side = "sell"
	}

	select {
	case <-ctx.Done():
		result := coretypes.ExecutionResult{
			OrderID: orderID, UserID: uc.UserID, Status: coretypes.ExecStatusCanceled,
			Timestamp: time.Now(), Flags: map[coretypes.ExecutionFlag]struct{}{coretypes.FlagCanceled: {}},
		}
		m.store(uc.UserID, orderID, result)
		return &result
	default:
	}

	orderResult, err := uc.Client.PlaceOrder(ctx, exchange.Order{
		OrderID:  orderID,
		Symbol:   decision.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    referencePrice,
	})
	if err != nil {
		status := coretypes.ExecStatusRejected
		flags := map[coretypes.ExecutionFlag]struct{}{}
		if ctx.Err() != nil {
			status = coretypes.ExecStatusTimeout
			flags[coretypes.FlagTimeout] = struct{}{}
		}
		result := coretypes.ExecutionResult{OrderID: orderID, UserID: uc.UserID, Status: status, Timestamp: time.Now(), Flags: flags}
		uc.RecordOutcome(result, decimal.Zero)
		m.store(uc.UserID, orderID, result)
		return &result
	}

	status := coretypes.ExecStatusRejected
	if orderResult.Filled {
		status = coretypes.ExecStatusFilled
	}
	result := coretypes.ExecutionResult{
		OrderID:          orderID,
		UserID:           uc.UserID,
		Status:           status,
		ExecutedQuantity: orderResult.FilledQuantity,
		ExecutedPrice:    orderResult.FilledPrice,
		Slippage:         orderResult.Slippage,
		Commission:       orderResult.Commission,
		Flags:            map[coretypes.ExecutionFlag]struct{}{},
		Timestamp:        time.Now(),
	}
	pnl := decimal.Zero // realized P&L accrues on position close, tracked by the collaborator ledger
	uc.RecordOutcome(result, pnl)
	m.store(uc.UserID, orderID, result)
	return &result
}

func rejection(userID string, decision coretypes.AbstractDecision, reason string) coretypes.ExecutionResult {
	return coretypes.ExecutionResult{
		OrderID:   fmt.Sprintf("%s:%s", decision.CorrelationID, userID),
		UserID:    userID,
		Status:    coretypes.ExecStatusRejected,
		Timestamp: time.Now(),
		Flags:     map[coretypes.ExecutionFlag]struct{}{},
	}
}

func flagsFor(level coretypes.RiskLevel) map[coretypes.ExecutionFlag]struct{} {
	flags := map[coretypes.ExecutionFlag]struct{}{}
	switch level {
	case coretypes.RiskLocked:
		flags[coretypes.FlagRiskLockedTriggered] = struct{}{}
	case coretypes.RiskCooldown:
		flags[coretypes.FlagCooldownTriggered] = struct{}{}
	}
	return flags
}

func (m *Manager) cached(userID, orderID string) (coretypes.ExecutionResult, bool) {
	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()
	r, ok := m.results[userID+":"+orderID]
	return r, ok
}

func (m *Manager) store(userID, orderID string, result coretypes.ExecutionResult) {
	m.resultsMu.Lock()
	m.results[userID+":"+orderID] = result
	m.resultsMu.Unlock()
	if m.trail != nil {
		m.trail.Append(audit.Record{
			Component: "executor",
			Reason:    fmt.Sprintf("order %s status=%s", orderID, result.Status),
			Actor:     userID,
		})
	}
}
