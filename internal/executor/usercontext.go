package executor

import (
	"sync"

	"github.com/atlas-trading/tradingcore/internal/credentials"
	"github.com/atlas-trading/tradingcore/internal/exchange"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
)

// UserStatus is a user's activation state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusRemoved   UserStatus = "REMOVED"
)

// UserRiskState is the per-user risk posture, independent of every other
// user's.
type UserRiskState struct {
	IsLocked          bool
	ConsecutiveLosses int
	ConsecutiveTimeouts int
	DailyPnL          decimal.Decimal
	WeeklyPnL         decimal.Decimal
	CurrentDrawdown   decimal.Decimal
	Equity            decimal.Decimal
	CurrentPositionPct decimal.Decimal
	TotalPositionPct   decimal.Decimal
}

// UserContext is the isolated, single-owner per-user bundle: decrypted
// credentials held only in memory, independent risk state, an exchange
// client handle, leverage, sizing limits, and subscription tier.
type UserContext struct {
	UserID             string
	Status             UserStatus
	CredentialsValid   bool
	decryptedSecret    []byte // zeroed on Destroy
	Client             exchange.Client
	Leverage           decimal.Decimal
	MaxPositionPct     decimal.Decimal
	SubscriptionTier   coretypes.SubscriptionTier

	mu   sync.Mutex
	Risk UserRiskState
}

// NewUserContext instantiates a UserContext, decrypting the stored
// credential envelope into memory-only bytes.
func NewUserContext(userID string, env *credentials.Envelope, encryptedSecret string, client exchange.Client, leverage, maxPositionPct decimal.Decimal, tier coretypes.SubscriptionTier) (*UserContext, error) {
	secret, err := env.Decrypt(encryptedSecret)
	if err != nil {
		return &UserContext{UserID: userID, Status: UserStatusActive, CredentialsValid: false, Client: client, Leverage: leverage, MaxPositionPct: maxPositionPct, SubscriptionTier: tier}, nil
	}
	return &UserContext{
		UserID:           userID,
		Status:           UserStatusActive,
		CredentialsValid: true,
		decryptedSecret:  secret,
		Client:           client,
		Leverage:         leverage,
		MaxPositionPct:   maxPositionPct,
		SubscriptionTier: tier,
	}, nil
}

// Destroy zeroes credentials in memory; called on suspension/removal. After
// Destroy the context must not be used for execution.
func (u *UserContext) Destroy() {
	u.mu.Lock()
	defer u.mu.Unlock()
	credentials.Zero(u.decryptedSecret)
	u.decryptedSecret = nil
	u.CredentialsValid = false
	u.Status = UserStatusRemoved
}

// RiskSnapshot returns a copy of the current per-user risk state as a
// coretypes.RiskContext for the risk engine.
func (u *UserContext) RiskSnapshot() coretypes.RiskContext {
	u.mu.Lock()
	defer u.mu.Unlock()
	return coretypes.RiskContext{
		Equity:             u.Risk.Equity,
		CurrentDrawdown:    u.Risk.CurrentDrawdown,
		DailyPnL:           u.Risk.DailyPnL,
		WeeklyPnL:          u.Risk.WeeklyPnL,
		ConsecutiveLosses:  u.Risk.ConsecutiveLosses,
		CurrentPositionPct: u.Risk.CurrentPositionPct,
		TotalPositionPct:   u.Risk.TotalPositionPct,
		Leverage:           u.Leverage,
	}
}

// RecordOutcome updates this user's risk state after one execution result.
// Three consecutive timeouts force is_locked=true, per the OrderTimeout
// error kind's propagation rule.
func (u *UserContext) RecordOutcome(result coretypes.ExecutionResult, pnl decimal.Decimal) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch result.Status {
	case coretypes.ExecStatusTimeout:
		u.Risk.ConsecutiveTimeouts++
		if u.Risk.ConsecutiveTimeouts >= 3 {
			u.Risk.IsLocked = true
		}
		return
	case coretypes.ExecStatusFilled:
		u.Risk.ConsecutiveTimeouts = 0
		u.Risk.DailyPnL = u.Risk.DailyPnL.Add(pnl)
		u.Risk.WeeklyPnL = u.Risk.WeeklyPnL.Add(pnl)
		if pnl.IsNegative() {
			u.Risk.ConsecutiveLosses++
		} else {
			u.Risk.ConsecutiveLosses = 0
		}
	}
}

// Locked reports whether this user's risk state currently forbids trading.
func (u *UserContext) Locked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.Risk.IsLocked
}
