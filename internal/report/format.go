package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
)

// NA is rendered in place of an undefined statistic.
const NA = "N/A"

// Status is how the win-rate slot should be rendered.
type Status string

const (
	StatusWinRate  Status = "win-rate"
	StatusHolding  Status = "holding"
	StatusNoTrades Status = "no-trades"
)

// StatusOf picks the win-rate slot rendering: the rate when any trade closed,
// otherwise whether the run ended holding or never traded.
func StatusOf(st Statistics) Status {
	switch {
	case st.WinRatePct.Valid:
		return StatusWinRate
	case st.Holding:
		return StatusHolding
	default:
		return StatusNoTrades
	}
}

// FormatPct renders a percentage with two decimals, or NA when undefined.
func FormatPct(v decimal.NullDecimal) string {
	if !v.Valid {
		return NA
	}
	return v.Decimal.StringFixed(2) + "%"
}

// FormatPctFloat is FormatPct for float inputs; NaN and Inf render as NA.
func FormatPctFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NA
	}
	return fmt.Sprintf("%.2f%%", v)
}

// FormatMoney renders an amount as $1,234.56.
func FormatMoney(v decimal.Decimal) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Abs()
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", v.Round(2).InexactFloat64())
}

// FormatCount renders a count with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// Summary is the plain-language explanation of a run over the named period.
// cmp may be nil when no benchmark was computed.
func Summary(period string, st Statistics, cmp *Comparison) string {
	var b strings.Builder

	if st.TradeCount == 0 && !st.Holding {
		b.WriteString("No trades were completed in this period. The strategy stayed in cash the whole time.\n")
	} else {
		word, ret := "PROFIT", st.TotalReturnPct
		if !ret.IsPositive() {
			word, ret = "LOSS", ret.Abs()
		}
		fmt.Fprintf(&b, "Using this strategy over the %s you would have closed %s trades.\n", period, FormatCount(st.TradeCount))
		fmt.Fprintf(&b, "  - Result: a %s of %s.\n", word, FormatPct(decimal.NewNullDecimal(ret)))
		switch StatusOf(st) {
		case StatusWinRate:
			fmt.Fprintf(&b, "  - Win rate: %s%% of closed trades were profitable.\n", st.WinRatePct.Decimal.StringFixed(0))
		case StatusHolding:
			b.WriteString("  - The strategy bought and is still holding an open position.\n")
		}
		fmt.Fprintf(&b, "  - Max drawdown: %s from peak.\n", FormatPct(decimal.NewNullDecimal(st.MaxDrawdownPct)))
	}

	if cmp != nil {
		fmt.Fprintf(&b, "Starting with %s on %s:\n", FormatMoney(st.InitialCash), st.Start.Format(domain.DateLayout))
		fmt.Fprintf(&b, "  - Buy and hold final value: %s\n", FormatMoney(cmp.BenchmarkFinal))
		fmt.Fprintf(&b, "  - Strategy final value: %s\n", FormatMoney(cmp.StrategyFinal))
		fmt.Fprintf(&b, "The strategy would have made you %s %s than buying and holding.\n",
			FormatMoney(cmp.Difference.Abs()), cmp.Outcome)
	}
	if st.LowConfidence {
		fmt.Fprintf(&b, "Only %d observations in this window; treat these numbers with caution.\n", st.Bars)
	}
	return b.String()
}
