// Package report derives summary statistics, a buy-and-hold benchmark and
// plain-language summaries from a simulated portfolio.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
	"spxlab/internal/engine"
)

// MinObservations is the window length below which statistics are flagged as
// low confidence.
const MinObservations = 20

var hundred = decimal.NewFromInt(100)

// Statistics summarises one PortfolioResult. WinRatePct and AvgReturnPct are
// invalid when no trade was closed.
type Statistics struct {
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
	Bars           int                 `json:"bars"`
	InitialCash    decimal.Decimal     `json:"initialCash"`
	FinalEquity    decimal.Decimal     `json:"finalEquity"`
	TotalReturnPct decimal.Decimal     `json:"totalReturnPct"`
	TradeCount     int                 `json:"tradeCount"`
	Wins           int                 `json:"wins"`
	WinRatePct     decimal.NullDecimal `json:"winRatePct"`
	AvgReturnPct   decimal.NullDecimal `json:"avgReturnPct"`
	MaxDrawdownPct decimal.Decimal     `json:"maxDrawdownPct"`
	ExposurePct    decimal.Decimal     `json:"exposurePct"`
	BestTrade      *domain.Trade       `json:"bestTrade,omitempty"`
	WorstTrade     *domain.Trade       `json:"worstTrade,omitempty"`
	Holding        bool                `json:"holding"`
	LowConfidence  bool                `json:"lowConfidence"`
}

// Compute derives Statistics from res. A nil or empty result yields the zero
// Statistics with LowConfidence set.
func Compute(res *engine.PortfolioResult) Statistics {
	if res == nil || len(res.Equity) == 0 {
		return Statistics{LowConfidence: true}
	}

	st := Statistics{
		Start:          res.Equity[0].Date,
		End:            res.Equity[len(res.Equity)-1].Date,
		Bars:           len(res.Equity),
		InitialCash:    res.InitialCash,
		FinalEquity:    res.FinalEquity(),
		TradeCount:     len(res.Trades),
		MaxDrawdownPct: MaxDrawdown(res.Equity),
		Holding:        res.OpenPosition != nil,
		LowConfidence:  len(res.Equity) < MinObservations,
	}
	if res.InitialCash.IsPositive() {
		st.TotalReturnPct = st.FinalEquity.Div(res.InitialCash).Sub(decimal.NewFromInt(1)).Mul(hundred)
	}
	st.ExposurePct = decimal.NewFromInt(int64(res.DaysLong)).
		Div(decimal.NewFromInt(int64(st.Bars))).Mul(hundred)

	if st.TradeCount == 0 {
		return st
	}

	sum := decimal.Zero
	for i := range res.Trades {
		t := &res.Trades[i]
		if t.Won() {
			st.Wins++
		}
		sum = sum.Add(t.ReturnPct)
		if st.BestTrade == nil || t.ReturnPct.GreaterThan(st.BestTrade.ReturnPct) {
			st.BestTrade = t
		}
		if st.WorstTrade == nil || t.ReturnPct.LessThan(st.WorstTrade.ReturnPct) {
			st.WorstTrade = t
		}
	}
	n := decimal.NewFromInt(int64(st.TradeCount))
	st.WinRatePct = decimal.NewNullDecimal(decimal.NewFromInt(int64(st.Wins)).Div(n).Mul(hundred))
	st.AvgReturnPct = decimal.NewNullDecimal(sum.Div(n))
	return st
}

// MaxDrawdown is the largest peak-to-trough decline of the curve, in percent
// of the running peak. It lies in [0, 100] and is zero for a curve that never
// falls.
func MaxDrawdown(curve []domain.EquityPoint) decimal.Decimal {
	worst := decimal.Zero
	peak := decimal.Zero
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Equity).Div(peak).Mul(hundred)
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}
