// Package market defines the MarketDataSource contract and an in-memory
// implementation for tests and the paper-trading path. Live ingestion
// (exchange websocket feeds) is an external collaborator - this package
// only owns the narrow contract the core consumes.
package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atlas-trading/tradingcore/internal/coreerrors"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
)

// Source is the abstract MarketDataSource contract.
type Source interface {
	GetBars(ctx context.Context, symbol, interval string, since, until time.Time) ([]coretypes.Bar, error)
}

// InMemorySource stores bars per symbol, sorted by timestamp, and serves
// GetBars by range. No gaps are permitted within a queried range - Seed
// enforces strictly increasing timestamps so a caller cannot construct an
// invalid fixture.
type InMemorySource struct {
	mu   sync.RWMutex
	bars map[string][]coretypes.Bar
}

// NewInMemorySource constructs an empty InMemorySource.
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{bars: make(map[string][]coretypes.Bar)}
}

// Seed appends bars for a symbol, sorting by timestamp and validating no
// duplicate timestamps exist (a gap/ordering violation).
func (s *InMemorySource) Seed(symbol string, bars []coretypes.Bar) error {
	sorted := make([]coretypes.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Timestamp.After(sorted[i-1].Timestamp) {
			return &coreerrors.DataValidation{Symbol: symbol, Reason: "duplicate or out-of-order timestamp"}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = sorted
	return nil
}

// GetBars returns the ordered bar slice for [since, until]. Returns
// DataNotFound if the symbol is unknown or the range yields nothing.
func (s *InMemorySource) GetBars(ctx context.Context, symbol, interval string, since, until time.Time) ([]coretypes.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, ok := s.bars[symbol]
	if !ok {
		return nil, &coreerrors.DataNotFound{Symbol: symbol}
	}
	var out []coretypes.Bar
	for _, b := range all {
		if (b.Timestamp.Equal(since) || b.Timestamp.After(since)) && (b.Timestamp.Equal(until) || b.Timestamp.Before(until)) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, &coreerrors.DataNotFound{Symbol: symbol}
	}
	return out, nil
}

// Latest returns the most recent n bars for symbol up to now, or an error
// if fewer than n exist.
func (s *InMemorySource) Latest(symbol string, n int) ([]coretypes.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, ok := s.bars[symbol]
	if !ok || len(all) == 0 {
		return nil, &coreerrors.DataNotFound{Symbol: symbol}
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]coretypes.Bar, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

// ensure interface satisfaction at compile time.
var _ Source = (*InMemorySource)(nil)
