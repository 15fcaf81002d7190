package series

import (
	"slices"
	"time"

	"spxlab/internal/domain"
)

// IndicatorSeries is a rolling indicator aligned one-to-one with a
// PriceSeries. Valid[i] is false during warm-up, where Values[i] carries no
// meaning.
type IndicatorSeries struct {
	Name   string      `json:"name"`
	Window int         `json:"window"`
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
	Valid  []bool      `json:"valid"`
}

// Len returns the number of aligned samples.
func (s IndicatorSeries) Len() int { return len(s.Dates) }

// At returns the value at i and whether it is defined.
func (s IndicatorSeries) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.Values) || !s.Valid[i] {
		return 0, false
	}
	return s.Values[i], true
}

// Nullable returns the values with undefined samples as nil, for JSON.
func (s IndicatorSeries) Nullable() []*float64 {
	out := make([]*float64, len(s.Values))
	for i := range s.Values {
		if s.Valid[i] {
			v := s.Values[i]
			out[i] = &v
		}
	}
	return out
}

func (s IndicatorSeries) slice(lo, hi int) IndicatorSeries {
	return IndicatorSeries{
		Name:   s.Name,
		Window: s.Window,
		Dates:  slices.Clone(s.Dates[lo:hi]),
		Values: slices.Clone(s.Values[lo:hi]),
		Valid:  slices.Clone(s.Valid[lo:hi]),
	}
}

// SignalSeries holds entry and exit flags aligned with a PriceSeries.
type SignalSeries struct {
	Dates   []time.Time `json:"dates"`
	Entries []bool      `json:"entries"`
	Exits   []bool      `json:"exits"`
}

// Len returns the number of aligned samples.
func (s SignalSeries) Len() int { return len(s.Dates) }

// Events flattens the flags into dated signals, pricing each at the matching
// close in prices. prices must be aligned with s.
func (s SignalSeries) Events(prices PriceSeries) []domain.Signal {
	var out []domain.Signal
	for i := range s.Dates {
		switch {
		case s.Exits[i]:
			out = append(out, domain.Signal{Date: s.Dates[i], Type: domain.SignalExit, Price: prices.Closes[i]})
		case s.Entries[i]:
			out = append(out, domain.Signal{Date: s.Dates[i], Type: domain.SignalEntry, Price: prices.Closes[i]})
		}
	}
	return out
}

func (s SignalSeries) slice(lo, hi int) SignalSeries {
	return SignalSeries{
		Dates:   slices.Clone(s.Dates[lo:hi]),
		Entries: slices.Clone(s.Entries[lo:hi]),
		Exits:   slices.Clone(s.Exits[lo:hi]),
	}
}

// Crossovers flags where fast crosses slow. entry[i] is set when
// fast[i-1] <= slow[i-1] and fast[i] > slow[i]; exit[i] when
// fast[i-1] >= slow[i-1] and fast[i] < slow[i]. Nothing is flagged unless
// both series are defined at i-1 and i. The inputs must be aligned.
func Crossovers(fast, slow IndicatorSeries) SignalSeries {
	n := min(fast.Len(), slow.Len())
	sig := SignalSeries{
		Dates:   slices.Clone(fast.Dates[:n]),
		Entries: make([]bool, n),
		Exits:   make([]bool, n),
	}
	for i := 1; i < n; i++ {
		fPrev, ok1 := fast.At(i - 1)
		sPrev, ok2 := slow.At(i - 1)
		fCur, ok3 := fast.At(i)
		sCur, ok4 := slow.At(i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		switch {
		case fPrev <= sPrev && fCur > sCur:
			sig.Entries[i] = true
		case fPrev >= sPrev && fCur < sCur:
			sig.Exits[i] = true
		}
	}
	return sig
}
