// Package indicator computes rolling indicators over a full price history.
// Indicators are always computed before any date-range slicing so the first
// value of a selected window already reflects the history before it.
package indicator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"spxlab/internal/series"
)

// ErrInvalidWindow is returned for window lengths below one.
var ErrInvalidWindow = errors.New("invalid moving-average window")

// SMA returns the simple moving average of prices over window w. The value at
// i is the mean of closes [i-w+1, i] and is undefined for i < w-1.
//
// The rolling sum is kept in decimal so equal means compare equal: a
// constant close yields exactly that close, and a tie between two windows
// stays a tie however long the history.
func SMA(prices series.PriceSeries, w int) (series.IndicatorSeries, error) {
	if w < 1 {
		return series.IndicatorSeries{}, fmt.Errorf("%w: %d", ErrInvalidWindow, w)
	}
	return rolling(prices, toDecimals(prices.Closes), w), nil
}

// MovingAverages computes one SMA per window, keyed by window length.
func MovingAverages(prices series.PriceSeries, windows ...int) (map[int]series.IndicatorSeries, error) {
	for _, w := range windows {
		if w < 1 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, w)
		}
	}
	closes := toDecimals(prices.Closes)
	out := make(map[int]series.IndicatorSeries, len(windows))
	for _, w := range windows {
		out[w] = rolling(prices, closes, w)
	}
	return out, nil
}

func toDecimals(vs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func rolling(prices series.PriceSeries, closes []decimal.Decimal, w int) series.IndicatorSeries {
	n := prices.Len()
	out := series.IndicatorSeries{
		Name:   fmt.Sprintf("SMA %d", w),
		Window: w,
		Dates:  slices.Clone(prices.Dates),
		Values: make([]float64, n),
		Valid:  make([]bool, n),
	}
	if n < w {
		return out
	}

	div := decimal.NewFromInt(int64(w))
	sum := decimal.Zero
	for i, c := range closes {
		sum = sum.Add(c)
		if i >= w {
			sum = sum.Sub(closes[i-w])
		}
		if i >= w-1 {
			out.Values[i] = sum.Div(div).InexactFloat64()
			out.Valid[i] = true
		}
	}
	return out
}
