package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spxlab/internal/series"
)

func priceSeries(t *testing.T, closes ...float64) series.PriceSeries {
	t.Helper()
	dates := make([]time.Time, len(closes))
	for i := range dates {
		dates[i] = time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	ps, err := series.New("SPY", dates, closes)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return ps
}

func TestSMAValues(t *testing.T) {
	ps := priceSeries(t, 100, 102, 101, 105, 103, 108, 107, 112)
	sma, err := SMA(ps, 4)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}

	want := map[int]float64{3: 102, 4: 102.75, 5: 104.25, 6: 105.75, 7: 107.5}
	for i := 0; i < ps.Len(); i++ {
		v, ok := sma.At(i)
		w, defined := want[i]
		if ok != defined {
			t.Fatalf("At(%d) defined = %v, want %v", i, ok, defined)
		}
		if defined && math.Abs(v-w) > 1e-9 {
			t.Errorf("At(%d) = %v, want %v", i, v, w)
		}
	}
}

func TestSMAWarmUp(t *testing.T) {
	ps := priceSeries(t, 5, 4, 3, 2, 1, 2, 3, 4, 5, 6)
	for w := 1; w <= 12; w++ {
		sma, err := SMA(ps, w)
		if err != nil {
			t.Fatalf("SMA(%d): %v", w, err)
		}
		if sma.Len() != ps.Len() {
			t.Fatalf("SMA(%d) len = %d, want %d", w, sma.Len(), ps.Len())
		}
		for i := 0; i < ps.Len(); i++ {
			_, ok := sma.At(i)
			if want := i >= w-1; ok != want {
				t.Errorf("SMA(%d).At(%d) defined = %v, want %v", w, i, ok, want)
			}
		}
	}
}

func TestSMAConstantPrice(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 250
	}
	ps := priceSeries(t, closes...)

	fast, err := SMA(ps, 5)
	if err != nil {
		t.Fatal(err)
	}
	slow, err := SMA(ps, 20)
	if err != nil {
		t.Fatal(err)
	}
	for i := 19; i < ps.Len(); i++ {
		f, _ := fast.At(i)
		s, _ := slow.At(i)
		if f != 250 || s != 250 {
			t.Errorf("index %d: fast=%v slow=%v, want 250", i, f, s)
		}
	}

	sig := series.Crossovers(fast, slow)
	for i := range sig.Entries {
		if sig.Entries[i] || sig.Exits[i] {
			t.Errorf("constant price produced a crossover at %d", i)
		}
	}
}

func TestSMAInvalidWindow(t *testing.T) {
	ps := priceSeries(t, 1, 2, 3)
	if _, err := SMA(ps, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("SMA(0) err = %v, want ErrInvalidWindow", err)
	}
}

func TestMovingAverages(t *testing.T) {
	ps := priceSeries(t, 1, 2, 3, 4)
	mas, err := MovingAverages(ps, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(mas) != 2 {
		t.Fatalf("got %d series, want 2", len(mas))
	}
	if v, ok := mas[3].At(3); !ok || math.Abs(v-3) > 1e-9 {
		t.Errorf("SMA3 at 3 = (%v, %v), want (3, true)", v, ok)
	}
	if mas[2].Name != "SMA 2" {
		t.Errorf("Name = %q, want %q", mas[2].Name, "SMA 2")
	}
}

func TestSMAConstantInexactPrice(t *testing.T) {
	for _, c := range []float64{0.1, 100.1, 1234.57} {
		closes := make([]float64, 2000)
		for i := range closes {
			closes[i] = c
		}
		ps := priceSeries(t, closes...)

		mas, err := MovingAverages(ps, 2, 4, 50, 200)
		if err != nil {
			t.Fatal(err)
		}
		for w, s := range mas {
			for i := w - 1; i < ps.Len(); i++ {
				if v, ok := s.At(i); !ok || v != c {
					t.Fatalf("close %v: SMA(%d).At(%d) = (%v, %v), want exactly %v", c, w, i, v, ok, c)
				}
			}
		}

		for _, pair := range [][2]int{{2, 4}, {50, 200}} {
			sig := series.Crossovers(mas[pair[0]], mas[pair[1]])
			for i := range sig.Entries {
				if sig.Entries[i] || sig.Exits[i] {
					t.Fatalf("close %v: SMA %d/%d crossover at %d", c, pair[0], pair[1], i)
				}
			}
		}
	}
}

func TestSMAPlateausHaveNoCrossovers(t *testing.T) {
	levels := []float64{0.1, 0.3, 0.7, 0.2, 1.1, 0.3, 2.9, 0.6}
	var closes []float64
	for _, l := range levels {
		for range 60 {
			closes = append(closes, l)
		}
	}
	ps := priceSeries(t, closes...)

	fast, err := SMA(ps, 3)
	if err != nil {
		t.Fatal(err)
	}
	slow, err := SMA(ps, 7)
	if err != nil {
		t.Fatal(err)
	}
	sig := series.Crossovers(fast, slow)

	flat := func(from, to int) bool {
		for j := from; j <= to; j++ {
			if closes[j] != closes[to] {
				return false
			}
		}
		return true
	}
	for i := 7; i < len(closes); i++ {
		// Both windows at i-1 and i lie on one plateau: the averages tie.
		if !flat(i-7, i) {
			continue
		}
		f, _ := fast.At(i)
		s, _ := slow.At(i)
		if f != closes[i] || s != closes[i] {
			t.Errorf("index %d on plateau %v: fast=%v slow=%v", i, closes[i], f, s)
		}
		if sig.Entries[i] || sig.Exits[i] {
			t.Errorf("crossover flagged at %d on a flat plateau %v", i, closes[i])
		}
	}
}

func TestSMAMatchesExactMean(t *testing.T) {
	// Cent-priced walk; integer cent sums give the exact reference mean.
	cents := make([]int64, 3000)
	cents[0] = 10000
	for i := 1; i < len(cents); i++ {
		step := int64((i*7919)%11) - 5
		cents[i] = max(cents[i-1]+step, 1)
	}
	closes := make([]float64, len(cents))
	for i, c := range cents {
		closes[i] = float64(c) / 100
	}
	ps := priceSeries(t, closes...)

	for _, w := range []int{2, 4, 5, 10} {
		s, err := SMA(ps, w)
		if err != nil {
			t.Fatal(err)
		}
		var sum int64
		for i, c := range cents {
			sum += c
			if i >= w {
				sum -= cents[i-w]
			}
			if i < w-1 {
				continue
			}
			want := decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(w) * 100)).InexactFloat64()
			if v, _ := s.At(i); v != want {
				t.Fatalf("SMA(%d).At(%d) = %v, want %v", w, i, v, want)
			}
		}
	}
}
