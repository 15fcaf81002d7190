// Package httpapi serves backtests, data status and duration presets over a
// JSON REST API.
package httpapi

import (
	"time"

	"spxlab/internal/report"
	"spxlab/internal/strategy"
	"spxlab/internal/util"
)

// StatsView is the pre-formatted rendering of a run's statistics.
type StatsView struct {
	Status        report.Status `json:"status"`
	TotalReturn   string        `json:"totalReturn"`
	WinRate       string        `json:"winRate"`
	AvgReturn     string        `json:"avgReturn"`
	MaxDrawdown   string        `json:"maxDrawdown"`
	Exposure      string        `json:"exposure"`
	Trades        string        `json:"trades"`
	InitialCash   string        `json:"initialCash"`
	FinalEquity   string        `json:"finalEquity"`
	Benchmark     string        `json:"benchmark,omitempty"`
	Difference    string        `json:"difference,omitempty"`
	Outcome       string        `json:"outcome,omitempty"`
	LowConfidence bool          `json:"lowConfidence"`
}

// BacktestResponse is a RunResult plus its display strings.
type BacktestResponse struct {
	*strategy.RunResult
	Display *StatsView `json:"display,omitempty"`
}

// StatusResponse describes the data currently available to backtests.
type StatusResponse struct {
	Source    string    `json:"source"`
	Sources   []string  `json:"sources,omitempty"`
	Symbol    string    `json:"symbol"`
	Bars      int       `json:"bars"`
	FirstDate string    `json:"firstDate,omitempty"`
	LastDate  string    `json:"lastDate,omitempty"`
	LoadedAt  time.Time `json:"loadedAt"`
	Available bool      `json:"available"`
	Message   string    `json:"message,omitempty"`
}

// PeriodsResponse lists the selectable durations.
type PeriodsResponse struct {
	Default int           `json:"default"`
	Periods []util.Period `json:"periods"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Result *BacktestResponse `json:"result,omitempty"`
}
