// Package coreerrors defines the error kinds of the trading decision core.
// Each kind is a concrete type carrying structured fields, wrapped with
// fmt.Errorf("...: %w", err) at call sites and inspected with errors.As.
package coreerrors

import (
	"fmt"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
)

// ArchitectureViolation reports a witness attempting a forbidden capability
// (placing orders, reading account state, sizing positions). Fatal to that
// witness: the panel auto-mutes it and alerts.
type ArchitectureViolation struct {
	WitnessID  string
	Capability string
}

func (e *ArchitectureViolation) Error() string {
	return fmt.Sprintf("architecture violation: witness %s attempted forbidden capability %q", e.WitnessID, e.Capability)
}

// InvalidClaim reports a claim whose validity window has expired or whose
// fields are out of range. Dropped silently by the caller with a counter
// increment; this type exists so the drop can still be logged/tested.
type InvalidClaim struct {
	WitnessID string
	Reason    string
}

func (e *InvalidClaim) Error() string {
	return fmt.Sprintf("invalid claim from %s: %s", e.WitnessID, e.Reason)
}

// RiskVeto reports a domain checker denying a decision.
type RiskVeto struct {
	Domain string
	Level  coretypes.RiskLevel
	Reason string
}

func (e *RiskVeto) Error() string {
	return fmt.Sprintf("risk veto [%s] domain=%s: %s", e.Level, e.Domain, e.Reason)
}

// OrderRejected reports an exchange-side rejection for one user.
type OrderRejected struct {
	UserID  string
	OrderID string
	Reason  string
}

func (e *OrderRejected) Error() string {
	return fmt.Sprintf("order %s rejected for user %s: %s", e.OrderID, e.UserID, e.Reason)
}

// OrderTimeout reports an exchange call that missed its deadline.
type OrderTimeout struct {
	UserID  string
	OrderID string
}

func (e *OrderTimeout) Error() string {
	return fmt.Sprintf("order %s timed out for user %s", e.OrderID, e.UserID)
}

// InvalidStateTransition reports a rejected state-machine transition.
type InvalidStateTransition struct {
	From coretypes.SystemState
	To   coretypes.SystemState
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// DataNotFound reports missing market data for the current loop; the loop
// is skipped.
type DataNotFound struct {
	Symbol string
}

func (e *DataNotFound) Error() string {
	return fmt.Sprintf("no data found for %s", e.Symbol)
}

// DataValidation reports market data that failed validation (gap, bad OHLC
// ordering); the loop is skipped.
type DataValidation struct {
	Symbol string
	Reason string
}

func (e *DataValidation) Error() string {
	return fmt.Sprintf("data validation failed for %s: %s", e.Symbol, e.Reason)
}
