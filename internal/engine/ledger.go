package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
)

// QuantityPrecision is the number of fractional digits kept when converting
// cash into units. Whatever the truncation leaves behind stays in cash.
const QuantityPrecision int32 = 16

var hundred = decimal.NewFromInt(100)

// ledger tracks cash and the single long position of one simulation.
type ledger struct {
	cash decimal.Decimal
	pos  domain.Position
}

func newLedger(cash decimal.Decimal) *ledger {
	return &ledger{cash: cash, pos: domain.Position{Side: domain.PositionFlat}}
}

// buy converts all cash into units at price. It returns false, leaving the
// ledger untouched, when already long or when price cannot size a position.
func (l *ledger) buy(date time.Time, price float64) bool {
	if l.pos.IsLong() || price <= 0 || !l.cash.IsPositive() {
		return false
	}
	px := decimal.NewFromFloat(price)
	qty, rem := l.cash.QuoRem(px, QuantityPrecision)
	if !qty.IsPositive() {
		return false
	}
	l.cash = rem
	l.pos = domain.Position{
		Side:       domain.PositionLong,
		Qty:        qty,
		EntryPrice: price,
		EntryDate:  date,
	}
	return true
}

// sell liquidates the position at price and returns the closed trade. The
// boolean is false when there is nothing to sell.
func (l *ledger) sell(date time.Time, price float64) (domain.Trade, bool) {
	if !l.pos.IsLong() {
		return domain.Trade{}, false
	}
	px := decimal.NewFromFloat(price)
	entry := decimal.NewFromFloat(l.pos.EntryPrice)
	qty := l.pos.Qty

	pnl := qty.Mul(px.Sub(entry))
	cost := qty.Mul(entry)
	ret := decimal.Zero
	if cost.IsPositive() {
		ret = pnl.Div(cost).Mul(hundred)
	}

	l.cash = l.cash.Add(qty.Mul(px))
	trade := domain.Trade{
		EntryDate:  l.pos.EntryDate,
		EntryPrice: l.pos.EntryPrice,
		ExitDate:   date,
		ExitPrice:  price,
		Qty:        qty,
		PnL:        pnl,
		ReturnPct:  ret,
	}
	l.pos = domain.Position{Side: domain.PositionFlat}
	return trade, true
}

// value marks the portfolio to market at price.
func (l *ledger) value(price float64) decimal.Decimal {
	if !l.pos.IsLong() {
		return l.cash
	}
	return l.cash.Add(l.pos.Qty.Mul(decimal.NewFromFloat(price)))
}
