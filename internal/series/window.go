package series

import (
	"slices"
	"time"
)

// Window is an inclusive [Start, End] date range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Selection is the aligned slice of prices, indicators and signals falling
// inside a Window. Resolved holds the first and last trading dates actually
// present.
type Selection struct {
	Prices     PriceSeries       `json:"prices"`
	Indicators []IndicatorSeries `json:"indicators"`
	Signals    SignalSeries      `json:"signals"`
	Resolved   Window            `json:"resolved"`
}

// Select restricts full-history prices, indicators and signals to w without
// recomputing anything. Indicators and signals must be aligned with prices.
// The boolean is false when no trading date falls inside w; that is an empty
// result, not an error.
func Select(prices PriceSeries, indicators []IndicatorSeries, signals SignalSeries, w Window) (Selection, bool) {
	if w.End.Before(w.Start) {
		return Selection{}, false
	}
	lo := prices.IndexOnOrAfter(w.Start)
	hi := prices.IndexOnOrBefore(w.End) + 1
	if lo >= hi {
		return Selection{}, false
	}

	sel := Selection{
		Prices: PriceSeries{
			Symbol: prices.Symbol,
			Dates:  slices.Clone(prices.Dates[lo:hi]),
			Closes: slices.Clone(prices.Closes[lo:hi]),
		},
		Indicators: make([]IndicatorSeries, len(indicators)),
		Signals:    signals.slice(lo, hi),
		Resolved:   Window{Start: prices.Dates[lo], End: prices.Dates[hi-1]},
	}
	for i, ind := range indicators {
		sel.Indicators[i] = ind.slice(lo, hi)
	}
	return sel, true
}

// ResolveEnd clamps end to the nearest available trading date on or before
// it. The boolean is false when the series has nothing that early.
func ResolveEnd(prices PriceSeries, end time.Time) (time.Time, bool) {
	i := prices.IndexOnOrBefore(end)
	if i < 0 {
		return time.Time{}, false
	}
	return prices.Dates[i], true
}
