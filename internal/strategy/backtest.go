package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
	"spxlab/internal/engine"
	"spxlab/internal/report"
	"spxlab/internal/series"
	"spxlab/internal/source"
	"spxlab/internal/util"
)

// DefaultChartFrom is the first date plotted when no chart start is set.
var DefaultChartFrom = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// RunConfig parameterises one backtest. A zero Anchor uses the Backtester's
// anchor function.
type RunConfig struct {
	Strategy     string          `json:"strategy"`
	ShortWindow  int             `json:"shortWindow"`
	LongWindow   int             `json:"longWindow"`
	DurationDays int             `json:"durationDays"`
	InitialCash  decimal.Decimal `json:"initialCash"`
	Anchor       time.Time       `json:"anchor"`
}

// Validate checks every field that a run cannot proceed without.
func (c RunConfig) Validate() error {
	switch {
	case c.ShortWindow < 1:
		return fmt.Errorf("%w: short window must be positive, got %d", ErrInvalidConfig, c.ShortWindow)
	case c.LongWindow < 1:
		return fmt.Errorf("%w: long window must be positive, got %d", ErrInvalidConfig, c.LongWindow)
	case c.DurationDays < 1:
		return fmt.Errorf("%w: duration must be positive, got %d days", ErrInvalidConfig, c.DurationDays)
	case !c.InitialCash.IsPositive():
		return fmt.Errorf("%w: initial cash must be positive, got %s", ErrInvalidConfig, c.InitialCash)
	}
	return nil
}

// Chart is the full-history view plotted behind a run: closing prices and
// both indicator lines from the chart start date, plus the crossover events
// inside the analysis window.
type Chart struct {
	Dates   []time.Time     `json:"dates"`
	Price   []float64       `json:"price"`
	Fast    []*float64      `json:"fast"`
	Slow    []*float64      `json:"slow"`
	Signals []domain.Signal `json:"signals"`
}

// RunResult is everything one backtest produces. When Empty is true the
// analysis window held no observations and Portfolio, Stats, Benchmark and
// Comparison are nil.
type RunResult struct {
	ID         uuid.UUID               `json:"id"`
	Strategy   string                  `json:"strategy"`
	Source     string                  `json:"source"`
	Config     RunConfig               `json:"config"`
	Period     string                  `json:"period"`
	Window     series.Window           `json:"window"`
	Resolved   series.Window           `json:"resolved"`
	Empty      bool                    `json:"empty"`
	Chart      Chart                   `json:"chart"`
	Portfolio  *engine.PortfolioResult `json:"portfolio,omitempty"`
	Stats      *report.Statistics      `json:"stats,omitempty"`
	Benchmark  []domain.EquityPoint    `json:"benchmark,omitempty"`
	Comparison *report.Comparison      `json:"comparison,omitempty"`
	Summary    string                  `json:"summary,omitempty"`
}

// Backtester resolves price history, evaluates a strategy over all of it and
// simulates the strategy inside the requested window.
type Backtester struct {
	prices    source.Resolver
	registry  *Registry
	anchor    func(ctx context.Context) (time.Time, error)
	chartFrom time.Time
	log       *slog.Logger
}

// NewBacktester creates a Backtester. A nil anchor falls back to the
// previous weekday; a zero chartFrom uses DefaultChartFrom.
func NewBacktester(prices source.Resolver, registry *Registry, anchor func(ctx context.Context) (time.Time, error), chartFrom time.Time, log *slog.Logger) *Backtester {
	if anchor == nil {
		anchor = func(context.Context) (time.Time, error) {
			return util.PreviousWeekday(time.Now()), nil
		}
	}
	if chartFrom.IsZero() {
		chartFrom = DefaultChartFrom
	}
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		prices:    prices,
		registry:  registry,
		anchor:    anchor,
		chartFrom: chartFrom,
		log:       log.With("component", "backtester"),
	}
}

// Run executes one backtest. It returns an error wrapping ErrInvalidConfig
// for bad parameters and engine.ErrNoData (wrapping source.ErrUnavailable)
// when no provider has prices. An analysis window without observations is
// reported through RunResult.Empty, not as an error.
func (b *Backtester) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = DefaultStrategy
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := b.registry.New(cfg.Strategy, Params{ShortWindow: cfg.ShortWindow, LongWindow: cfg.LongWindow})
	if err != nil {
		return nil, err
	}
	if cfg.Anchor.IsZero() {
		if cfg.Anchor, err = b.anchor(ctx); err != nil {
			return nil, fmt.Errorf("resolving anchor date: %w", err)
		}
	}
	cfg.Anchor = domain.TradingDate(cfg.Anchor)

	resolved, err := b.prices.Resolve(ctx)
	if err != nil {
		if errors.Is(err, source.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", engine.ErrNoData, err)
		}
		return nil, fmt.Errorf("loading prices: %w", err)
	}
	full := resolved.Series
	if full.Empty() {
		return nil, fmt.Errorf("%w: %s returned an empty history", engine.ErrNoData, resolved.Source)
	}

	eval, err := strat.Evaluate(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", strat.Name(), err)
	}

	res := &RunResult{
		ID:       uuid.New(),
		Strategy: strat.Name(),
		Source:   resolved.Source,
		Config:   cfg,
		Period:   util.PeriodLabel(cfg.DurationDays),
		Window:   util.AnalysisWindow(cfg.Anchor, cfg.DurationDays),
		Chart:    b.chart(full, eval),
	}
	log := b.log.With("run", res.ID.String(), "source", res.Source)

	sel, ok := series.Select(full, []series.IndicatorSeries{eval.Fast, eval.Slow}, eval.Signals, res.Window)
	if !ok {
		log.Warn("no observations in analysis window",
			"start", res.Window.Start.Format(domain.DateLayout), "end", res.Window.End.Format(domain.DateLayout))
		res.Empty = true
		return res, nil
	}
	res.Resolved = sel.Resolved
	res.Chart.Signals = sel.Signals.Events(sel.Prices)
	for _, s := range res.Chart.Signals {
		if s.Type == domain.SignalEntry && s.Price <= 0 {
			log.Warn("skipping entry at non-positive price", "date", s.Date.Format(domain.DateLayout), "price", s.Price)
		}
	}

	portfolio, err := engine.Simulate(sel.Prices, sel.Signals, cfg.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("simulating: %w", err)
	}
	stats := report.Compute(portfolio)
	if stats.LowConfidence {
		log.Warn("few observations in window, statistics are low confidence", "bars", stats.Bars)
	}
	bench := report.BuyAndHold(sel.Prices, cfg.InitialCash)
	cmp := report.Compare(portfolio.FinalEquity(), report.FinalValue(bench))

	res.Portfolio = portfolio
	res.Stats = &stats
	res.Benchmark = bench
	res.Comparison = &cmp
	res.Summary = report.Summary(res.Period, stats, &cmp)

	log.Info("backtest complete",
		"strategy", res.Strategy,
		"bars", stats.Bars,
		"trades", stats.TradeCount,
		"final", stats.FinalEquity.StringFixed(2),
	)
	return res, nil
}

// chart trims the full-history evaluation to dates on or after chartFrom.
func (b *Backtester) chart(full series.PriceSeries, eval *Evaluation) Chart {
	lo := full.IndexOnOrAfter(b.chartFrom)
	fast := eval.Fast.Nullable()
	slow := eval.Slow.Nullable()
	return Chart{
		Dates: slices.Clone(full.Dates[lo:]),
		Price: slices.Clone(full.Closes[lo:]),
		Fast:  fast[lo:],
		Slow:  slow[lo:],
	}
}
