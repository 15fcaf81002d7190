package builtins

import (
	"context"
	"errors"
	"testing"
	"time"

	"spxlab/internal/series"
	"spxlab/internal/strategy"
)

func prices(t *testing.T, closes ...float64) series.PriceSeries {
	t.Helper()
	dates := make([]time.Time, len(closes))
	for i := range dates {
		dates[i] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	ps, err := series.New("SPY", dates, closes)
	if err != nil {
		t.Fatal(err)
	}
	return ps
}

func TestNewSMACrossRejectsBadWindows(t *testing.T) {
	for _, w := range [][2]int{{0, 5}, {5, 0}, {-1, -1}} {
		if _, err := NewSMACross(w[0], w[1]); !errors.Is(err, strategy.ErrInvalidConfig) {
			t.Errorf("NewSMACross(%d, %d) err = %v, want ErrInvalidConfig", w[0], w[1], err)
		}
	}
	// Short at or above long is permitted.
	if _, err := NewSMACross(10, 5); err != nil {
		t.Errorf("NewSMACross(10, 5): %v", err)
	}
}

func TestSMACrossEvaluate(t *testing.T) {
	s, err := NewSMACross(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	ps := prices(t, 10, 10, 10, 9, 12, 15, 8, 6)
	ev, err := s.Evaluate(context.Background(), ps)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Fast.Len() != ps.Len() || ev.Slow.Len() != ps.Len() || ev.Signals.Len() != ps.Len() {
		t.Fatal("evaluation not aligned with prices")
	}
	for i := 0; i < ps.Len(); i++ {
		wantEntry, wantExit := i == 4, i == 3 || i == 6
		if ev.Signals.Entries[i] != wantEntry || ev.Signals.Exits[i] != wantExit {
			t.Errorf("day %d: entry=%v exit=%v", i, ev.Signals.Entries[i], ev.Signals.Exits[i])
		}
	}
}

func TestSMACrossEvaluateCancelled(t *testing.T) {
	s, _ := NewSMACross(2, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Evaluate(ctx, prices(t, 1, 2, 3)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
