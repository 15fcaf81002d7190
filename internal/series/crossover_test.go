package series_test

import (
	"testing"
	"time"

	"spxlab/internal/indicator"
	"spxlab/internal/series"
)

func TestCrossoversTieFromComputedAverages(t *testing.T) {
	// Ten days at 0.1 then a step to 0.3. SMA 2 crosses above SMA 4 on the
	// step, the averages meet again three days later and then tie for good.
	closes := make([]float64, 40)
	dates := make([]time.Time, len(closes))
	for i := range closes {
		closes[i] = 0.1
		if i >= 10 {
			closes[i] = 0.3
		}
		dates[i] = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	ps, err := series.New("SPY", dates, closes)
	if err != nil {
		t.Fatal(err)
	}
	fast, err := indicator.SMA(ps, 2)
	if err != nil {
		t.Fatal(err)
	}
	slow, err := indicator.SMA(ps, 4)
	if err != nil {
		t.Fatal(err)
	}

	for i := 13; i < len(closes); i++ {
		f, _ := fast.At(i)
		s, _ := slow.At(i)
		if f != s {
			t.Fatalf("index %d: fast=%v slow=%v, want a tie", i, f, s)
		}
	}

	sig := series.Crossovers(fast, slow)
	for i := range sig.Entries {
		if want := i == 10; sig.Entries[i] != want {
			t.Errorf("entry[%d] = %v, want %v", i, sig.Entries[i], want)
		}
		if sig.Exits[i] {
			t.Errorf("unexpected exit at %d", i)
		}
	}
}
