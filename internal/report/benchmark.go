package report

import (
	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
	"spxlab/internal/engine"
	"spxlab/internal/series"
)

// Outcome says whether the strategy ended with more or less money than the
// benchmark.
type Outcome string

const (
	OutcomeMore Outcome = "MORE"
	OutcomeLess Outcome = "LESS"
)

// Comparison sets the strategy's final value against buy-and-hold.
type Comparison struct {
	StrategyFinal  decimal.Decimal `json:"strategyFinal"`
	BenchmarkFinal decimal.Decimal `json:"benchmarkFinal"`
	Difference     decimal.Decimal `json:"difference"`
	Outcome        Outcome         `json:"outcome"`
}

// BuyAndHold values initialCash invested at the first close and held to the
// last. If the first close cannot size a position the curve stays flat at
// initialCash.
func BuyAndHold(prices series.PriceSeries, initialCash decimal.Decimal) []domain.EquityPoint {
	n := prices.Len()
	if n == 0 {
		return nil
	}
	out := make([]domain.EquityPoint, n)

	first := prices.Closes[0]
	if first <= 0 {
		for i := range out {
			out[i] = domain.EquityPoint{Date: prices.Dates[i], Equity: initialCash}
		}
		return out
	}
	qty, cash := initialCash.QuoRem(decimal.NewFromFloat(first), engine.QuantityPrecision)
	for i := range out {
		v := cash.Add(qty.Mul(decimal.NewFromFloat(prices.Closes[i])))
		out[i] = domain.EquityPoint{Date: prices.Dates[i], Equity: v}
	}
	return out
}

// Compare reports the difference strategyFinal − benchmarkFinal. A tie is
// reported as LESS: the strategy did not make more.
func Compare(strategyFinal, benchmarkFinal decimal.Decimal) Comparison {
	diff := strategyFinal.Sub(benchmarkFinal)
	out := OutcomeLess
	if diff.IsPositive() {
		out = OutcomeMore
	}
	return Comparison{
		StrategyFinal:  strategyFinal,
		BenchmarkFinal: benchmarkFinal,
		Difference:     diff,
		Outcome:        out,
	}
}

// FinalValue is the last point of a curve, or zero for an empty one.
func FinalValue(curve []domain.EquityPoint) decimal.Decimal {
	if len(curve) == 0 {
		return decimal.Zero
	}
	return curve[len(curve)-1].Equity
}
