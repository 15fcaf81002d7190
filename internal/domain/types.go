// Package domain holds the value types shared by the price pipeline, the
// backtest engine and the presentation layer.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the exchange region a symbol trades in.
type Market string

const (
	MarketUS Market = "us"
)

// DateLayout is the canonical calendar-date format used in files, tables and
// APIs.
const DateLayout = "2006-01-02"

// StandardWindows are the moving-average windows the pipeline persists
// alongside every daily row.
var StandardWindows = []int{20, 50, 100, 200}

// Bar is a single daily OHLCV observation as returned by a market-data
// source.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"tradeCount,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// DailyRow is a cleaned bar as persisted by a PriceStore, keyed by Date.
// MovingAverages only holds windows that were warmed up on that date.
type DailyRow struct {
	Date           time.Time       `json:"date"`
	Open           float64         `json:"open"`
	High           float64         `json:"high"`
	Low            float64         `json:"low"`
	Close          float64         `json:"close"`
	Volume         int64           `json:"volume"`
	MovingAverages map[int]float64 `json:"movingAverages,omitempty"`
}

// MA returns the moving average for window w and whether it is defined.
func (r DailyRow) MA(w int) (float64, bool) {
	v, ok := r.MovingAverages[w]
	return v, ok
}

// TradingDate truncates t to its UTC calendar date.
func TradingDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// PositionSide is the simulator's holding state.
type PositionSide string

const (
	PositionFlat PositionSide = "flat"
	PositionLong PositionSide = "long"
)

// Position is an open long holding. A zero-value Position is flat.
type Position struct {
	Side       PositionSide    `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	EntryPrice float64         `json:"entryPrice"`
	EntryDate  time.Time       `json:"entryDate"`
}

// IsLong reports whether the position holds units.
func (p Position) IsLong() bool {
	return p.Side == PositionLong
}

// Trade is a closed round trip: a long entry followed by a full exit.
type Trade struct {
	EntryDate  time.Time       `json:"entryDate"`
	EntryPrice float64         `json:"entryPrice"`
	ExitDate   time.Time       `json:"exitDate"`
	ExitPrice  float64         `json:"exitPrice"`
	Qty        decimal.Decimal `json:"qty"`
	PnL        decimal.Decimal `json:"pnl"`
	ReturnPct  decimal.Decimal `json:"returnPct"`
}

// Won reports whether the trade realised a strictly positive P&L.
func (t Trade) Won() bool {
	return t.PnL.IsPositive()
}

// HoldingPeriod is the calendar time between entry and exit.
func (t Trade) HoldingPeriod() time.Duration {
	return t.ExitDate.Sub(t.EntryDate)
}

// EquityPoint is total portfolio value at a date's close.
type EquityPoint struct {
	Date   time.Time       `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

// SignalType distinguishes crossover events.
type SignalType string

const (
	SignalEntry SignalType = "entry"
	SignalExit  SignalType = "exit"
)

// Signal is a single crossover event on a trading date.
type Signal struct {
	Date  time.Time  `json:"date"`
	Type  SignalType `json:"type"`
	Price float64    `json:"price"`
}
