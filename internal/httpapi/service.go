package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"spxlab/internal/domain"
	"spxlab/internal/engine"
	"spxlab/internal/report"
	"spxlab/internal/source"
	"spxlab/internal/strategy"
	"spxlab/internal/util"
)

// ErrEmptyWindow is returned by Service.Backtest when the selected period
// holds no observations. The partial result is still returned.
var ErrEmptyWindow = errors.New("no data available for the selected period")

// Runner executes backtests.
type Runner interface {
	Run(ctx context.Context, cfg strategy.RunConfig) (*strategy.RunResult, error)
}

// Invalidator drops cached price history.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Defaults fill in query parameters a request leaves out.
type Defaults struct {
	Strategy     string
	ShortWindow  int
	LongWindow   int
	DurationDays int
	InitialCash  decimal.Decimal
}

// Service holds the operations shared by the HTTP and gRPC front ends.
type Service struct {
	runner   Runner
	prices   source.Resolver
	cache    Invalidator
	sources  []string
	defaults Defaults
	log      *slog.Logger
}

// NewService creates a Service. cache may be nil when no cache is in use;
// sources names the providers in priority order for status reporting.
func NewService(runner Runner, prices source.Resolver, cache Invalidator, sources []string, defaults Defaults, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runner:   runner,
		prices:   prices,
		cache:    cache,
		sources:  sources,
		defaults: defaults,
		log:      log.With("component", "api"),
	}
}

// ParseQuery builds a RunConfig from query parameters: short, long, days or
// period (a preset key), cash, anchor (YYYY-MM-DD) and strategy. Missing
// values take the Service defaults. Errors wrap strategy.ErrInvalidConfig.
func (s *Service) ParseQuery(q url.Values) (strategy.RunConfig, error) {
	cfg := strategy.RunConfig{
		Strategy:     s.defaults.Strategy,
		ShortWindow:  s.defaults.ShortWindow,
		LongWindow:   s.defaults.LongWindow,
		DurationDays: s.defaults.DurationDays,
		InitialCash:  s.defaults.InitialCash,
	}
	if v := q.Get("strategy"); v != "" {
		cfg.Strategy = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"short", &cfg.ShortWindow},
		{"long", &cfg.LongWindow},
		{"days", &cfg.DurationDays},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s must be an integer, got %q", strategy.ErrInvalidConfig, p.key, v)
		}
		*p.dst = n
	}

	if v := q.Get("period"); v != "" {
		days, ok := util.PresetDays(v)
		if !ok {
			return cfg, fmt.Errorf("%w: unknown period %q", strategy.ErrInvalidConfig, v)
		}
		cfg.DurationDays = days
	}
	if v := q.Get("cash"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: cash must be a number, got %q", strategy.ErrInvalidConfig, v)
		}
		cfg.InitialCash = d
	}
	if v := q.Get("anchor"); v != "" {
		t, err := time.Parse(domain.DateLayout, v)
		if err != nil {
			return cfg, fmt.Errorf("%w: anchor must be YYYY-MM-DD, got %q", strategy.ErrInvalidConfig, v)
		}
		cfg.Anchor = t
	}
	return cfg, cfg.Validate()
}

// Backtest runs cfg and attaches display strings. An empty analysis window
// yields the partial response together with ErrEmptyWindow.
func (s *Service) Backtest(ctx context.Context, cfg strategy.RunConfig) (*BacktestResponse, error) {
	res, err := s.runner.Run(ctx, cfg)
	if err != nil {
		return nil, err
	}
	resp := &BacktestResponse{RunResult: res}
	if res.Empty {
		return resp, ErrEmptyWindow
	}
	resp.Display = display(res)
	return resp, nil
}

func display(res *strategy.RunResult) *StatsView {
	st := res.Stats
	v := &StatsView{
		Status:        report.StatusOf(*st),
		TotalReturn:   report.FormatPct(decimal.NewNullDecimal(st.TotalReturnPct)),
		WinRate:       report.FormatPct(st.WinRatePct),
		AvgReturn:     report.FormatPct(st.AvgReturnPct),
		MaxDrawdown:   report.FormatPct(decimal.NewNullDecimal(st.MaxDrawdownPct)),
		Exposure:      report.FormatPct(decimal.NewNullDecimal(st.ExposurePct)),
		Trades:        report.FormatCount(st.TradeCount),
		InitialCash:   report.FormatMoney(st.InitialCash),
		FinalEquity:   report.FormatMoney(st.FinalEquity),
		LowConfidence: st.LowConfidence,
	}
	if c := res.Comparison; c != nil {
		v.Benchmark = report.FormatMoney(c.BenchmarkFinal)
		v.Difference = report.FormatMoney(c.Difference)
		v.Outcome = string(c.Outcome)
	}
	return v
}

// Status resolves the price history and describes it. An unavailable history
// is reported in the response, not as an error.
func (s *Service) Status(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{Sources: s.sources}
	r, err := s.prices.Resolve(ctx)
	if err != nil {
		if errors.Is(err, source.ErrUnavailable) {
			resp.Message = err.Error()
			return resp, nil
		}
		return nil, err
	}
	resp.Source = r.Source
	resp.Symbol = r.Series.Symbol
	resp.Bars = r.Series.Len()
	resp.LoadedAt = r.LoadedAt
	if first, _, ok := r.Series.First(); ok {
		resp.FirstDate = first.Format(domain.DateLayout)
		resp.Available = true
	}
	if last, _, ok := r.Series.Last(); ok {
		resp.LastDate = last.Format(domain.DateLayout)
	}
	return resp, nil
}

// Periods lists the duration presets.
func (s *Service) Periods() PeriodsResponse {
	return PeriodsResponse{Default: s.defaults.DurationDays, Periods: util.DurationPresets}
}

// Invalidate drops the cached history. It reports false when no cache is
// configured.
func (s *Service) Invalidate(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return false, err
	}
	s.log.Info("price cache invalidated")
	return true, nil
}

// IsNotFound reports whether err means no data could be served.
func IsNotFound(err error) bool {
	return errors.Is(err, engine.ErrNoData) || errors.Is(err, source.ErrUnavailable) || errors.Is(err, ErrEmptyWindow)
}
