package market

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
)

func bar(ts time.Time, close float64) coretypes.Bar {
	return coretypes.Bar{Symbol: "BTC-USD", Timestamp: ts, Close: decimal.NewFromFloat(close)}
}

func TestInMemorySource_SeedRejectsOutOfOrderDuplicates(t *testing.T) {
	s := NewInMemorySource()
	now := time.Now()
	bars := []coretypes.Bar{bar(now, 100), bar(now, 101)}
	if err := s.Seed("BTC-USD", bars); err == nil {
		t.Fatal("expected duplicate timestamps to be rejected")
	}
}

func TestInMemorySource_GetBarsReturnsRangeInOrder(t *testing.T) {
	s := NewInMemorySource()
	now := time.Now()
	bars := []coretypes.Bar{
		bar(now.Add(2*time.Minute), 102),
		bar(now, 100),
		bar(now.Add(1*time.Minute), 101),
	}
	if err := s.Seed("BTC-USD", bars); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}

	got, err := s.GetBars(context.Background(), "BTC-USD", "1m", now, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 bars in range, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(now) || !got[2].Timestamp.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("expected bars sorted ascending by timestamp, got %+v", got)
	}
}

func TestInMemorySource_GetBarsUnknownSymbol(t *testing.T) {
	s := NewInMemorySource()
	if _, err := s.GetBars(context.Background(), "UNKNOWN", "1m", time.Now(), time.Now()); err == nil {
		t.Fatal("expected an error for an unseeded symbol")
	}
}

func TestInMemorySource_LatestReturnsMostRecentN(t *testing.T) {
	s := NewInMemorySource()
	now := time.Now()
	var bars []coretypes.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, bar(now.Add(time.Duration(i)*time.Minute), float64(100+i)))
	}
	if err := s.Seed("BTC-USD", bars); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}

	latest, err := s.Latest("BTC-USD", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(latest))
	}
	if !latest[2].Close.Equal(decimal.NewFromFloat(109)) {
		t.Fatalf("expected the last bar to be the most recent, got %s", latest[2].Close)
	}
}
