// Package engine simulates an all-in, long-only portfolio driven by entry and
// exit signals over a selected price window.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
	"spxlab/internal/series"
)

var (
	// ErrNoData is returned when the price window holds no samples.
	ErrNoData = errors.New("no price data in window")
	// ErrMisaligned is returned when signals do not line up with prices.
	ErrMisaligned = errors.New("signals not aligned with prices")
	// ErrInvalidCash is returned for a non-positive starting balance.
	ErrInvalidCash = errors.New("initial cash must be positive")
)

// PortfolioResult is the outcome of one simulation. Equity has exactly one
// point per input price. OpenPosition is non-nil when the run ended long.
type PortfolioResult struct {
	Symbol       string               `json:"symbol"`
	InitialCash  decimal.Decimal      `json:"initialCash"`
	FinalCash    decimal.Decimal      `json:"finalCash"`
	Equity       []domain.EquityPoint `json:"equity"`
	Trades       []domain.Trade       `json:"trades"`
	OpenPosition *domain.Position     `json:"openPosition,omitempty"`
	DaysLong     int                  `json:"daysLong"`
}

// FinalEquity is the last equity point, or the initial cash for an empty
// result.
func (r *PortfolioResult) FinalEquity() decimal.Decimal {
	if len(r.Equity) == 0 {
		return r.InitialCash
	}
	return r.Equity[len(r.Equity)-1].Equity
}

// OpenPnL is the unrealised P&L of the position held at the end of the run.
func (r *PortfolioResult) OpenPnL() decimal.Decimal {
	if r.OpenPosition == nil || len(r.Equity) == 0 {
		return decimal.Zero
	}
	return r.FinalEquity().Sub(r.FinalCash).Sub(r.OpenPosition.Qty.Mul(decimal.NewFromFloat(r.OpenPosition.EntryPrice)))
}

// Simulate walks prices in order. On an exit flag while long it sells the
// whole position at that close; otherwise on an entry flag while flat it
// converts all cash into units at that close. Equity is recorded after the
// day's action. A position still open at the end is reported, not closed.
func Simulate(prices series.PriceSeries, signals series.SignalSeries, initialCash decimal.Decimal) (*PortfolioResult, error) {
	if !initialCash.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCash, initialCash)
	}
	n := prices.Len()
	if n == 0 {
		return nil, ErrNoData
	}
	if signals.Len() != n || len(signals.Entries) != n || len(signals.Exits) != n {
		return nil, fmt.Errorf("%w: %d prices vs %d signals", ErrMisaligned, n, signals.Len())
	}
	for i := range n {
		if !signals.Dates[i].Equal(prices.Dates[i]) {
			return nil, fmt.Errorf("%w: index %d %s vs %s", ErrMisaligned, i,
				prices.Dates[i].Format(domain.DateLayout), signals.Dates[i].Format(domain.DateLayout))
		}
	}

	l := newLedger(initialCash)
	res := &PortfolioResult{
		Symbol:      prices.Symbol,
		InitialCash: initialCash,
		Equity:      make([]domain.EquityPoint, n),
	}
	for i := range n {
		date, px := prices.Dates[i], prices.Closes[i]
		switch {
		case signals.Exits[i]:
			if t, ok := l.sell(date, px); ok {
				res.Trades = append(res.Trades, t)
			}
		case signals.Entries[i]:
			l.buy(date, px)
		}
		if l.pos.IsLong() {
			res.DaysLong++
		}
		res.Equity[i] = domain.EquityPoint{Date: date, Equity: l.value(px)}
	}

	res.FinalCash = l.cash
	if l.pos.IsLong() {
		pos := l.pos
		res.OpenPosition = &pos
	}
	return res, nil
}

// HoldingDays sums the calendar days spent in closed trades.
func (r *PortfolioResult) HoldingDays() int {
	var d time.Duration
	for _, t := range r.Trades {
		d += t.HoldingPeriod()
	}
	return int(d.Hours() / 24)
}
