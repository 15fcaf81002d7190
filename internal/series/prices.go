// Package series holds the date-aligned sequences the backtest works on:
// closing prices, indicator values and crossover signals, plus the range
// selector that slices all three together.
package series

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"spxlab/internal/domain"
)

// ErrMalformed is returned when a series violates its ordering or value
// invariants.
var ErrMalformed = errors.New("malformed price series")

// PriceSeries is an ordered run of daily closes with strictly increasing,
// unique dates and no missing values. Treat it as immutable.
type PriceSeries struct {
	Symbol string      `json:"symbol"`
	Dates  []time.Time `json:"dates"`
	Closes []float64   `json:"closes"`
}

// New validates dates/closes and returns a PriceSeries that owns copies of
// both slices.
func New(symbol string, dates []time.Time, closes []float64) (PriceSeries, error) {
	if len(dates) != len(closes) {
		return PriceSeries{}, fmt.Errorf("%w: %d dates vs %d closes", ErrMalformed, len(dates), len(closes))
	}
	for i := range dates {
		c := closes[i]
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
			return PriceSeries{}, fmt.Errorf("%w: close %v at %s", ErrMalformed, c, dates[i].Format(domain.DateLayout))
		}
		if i > 0 && !dates[i].After(dates[i-1]) {
			return PriceSeries{}, fmt.Errorf("%w: date %s not after %s", ErrMalformed,
				dates[i].Format(domain.DateLayout), dates[i-1].Format(domain.DateLayout))
		}
	}
	return PriceSeries{
		Symbol: symbol,
		Dates:  slices.Clone(dates),
		Closes: slices.Clone(closes),
	}, nil
}

// FromBars builds a series from already-cleaned bars.
func FromBars(symbol string, bars []domain.Bar) (PriceSeries, error) {
	dates := make([]time.Time, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		dates[i] = domain.TradingDate(b.Timestamp)
		closes[i] = b.Close
	}
	return New(symbol, dates, closes)
}

// FromRows builds a series from persisted daily rows, sorting them by date
// first.
func FromRows(symbol string, rows []domain.DailyRow) (PriceSeries, error) {
	sorted := slices.Clone(rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	dates := make([]time.Time, len(sorted))
	closes := make([]float64, len(sorted))
	for i, r := range sorted {
		dates[i] = domain.TradingDate(r.Date)
		closes[i] = r.Close
	}
	return New(symbol, dates, closes)
}

// FromSparse forward-fills NaN closes from the previous observation and drops
// leading NaNs that have nothing to fill from. Dates must already be sorted
// and unique.
func FromSparse(symbol string, dates []time.Time, closes []float64) (PriceSeries, error) {
	if len(dates) != len(closes) {
		return PriceSeries{}, fmt.Errorf("%w: %d dates vs %d closes", ErrMalformed, len(dates), len(closes))
	}
	outDates := make([]time.Time, 0, len(dates))
	outCloses := make([]float64, 0, len(closes))
	last := math.NaN()
	for i, c := range closes {
		if math.IsNaN(c) {
			c = last
		}
		if math.IsNaN(c) {
			continue
		}
		last = c
		outDates = append(outDates, dates[i])
		outCloses = append(outCloses, c)
	}
	return New(symbol, outDates, outCloses)
}

// Len returns the number of observations.
func (p PriceSeries) Len() int { return len(p.Dates) }

// Empty reports whether the series has no observations.
func (p PriceSeries) Empty() bool { return len(p.Dates) == 0 }

// First returns the earliest observation.
func (p PriceSeries) First() (time.Time, float64, bool) {
	if p.Empty() {
		return time.Time{}, 0, false
	}
	return p.Dates[0], p.Closes[0], true
}

// Last returns the most recent observation.
func (p PriceSeries) Last() (time.Time, float64, bool) {
	if p.Empty() {
		return time.Time{}, 0, false
	}
	n := len(p.Dates) - 1
	return p.Dates[n], p.Closes[n], true
}

// IndexOnOrBefore returns the index of the latest date ≤ d, or -1.
func (p PriceSeries) IndexOnOrBefore(d time.Time) int {
	i := sort.Search(len(p.Dates), func(i int) bool { return p.Dates[i].After(d) })
	return i - 1
}

// IndexOnOrAfter returns the index of the earliest date ≥ d, or Len().
func (p PriceSeries) IndexOnOrAfter(d time.Time) int {
	return sort.Search(len(p.Dates), func(i int) bool { return !p.Dates[i].Before(d) })
}

// Since returns the tail of the series starting at the first date ≥ from.
func (p PriceSeries) Since(from time.Time) PriceSeries {
	i := p.IndexOnOrAfter(from)
	return PriceSeries{
		Symbol: p.Symbol,
		Dates:  slices.Clone(p.Dates[i:]),
		Closes: slices.Clone(p.Closes[i:]),
	}
}
