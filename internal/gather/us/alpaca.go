package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"spxlab/internal/domain"
	"spxlab/internal/gather"
	"spxlab/internal/util"
)

// Compile-time interface check.
var _ gather.BarSource = (*AlpacaDailySource)(nil)

// barsClient is the part of *marketdata.Client the source uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaDailySource fetches split- and dividend-adjusted daily bars from the
// Alpaca market-data API.
type AlpacaDailySource struct {
	client  barsClient
	feed    marketdata.Feed
	limiter *util.RateLimiter
	backoff util.Backoff
	log     *slog.Logger
}

// NewAlpacaDailySource creates a source with the given credentials. feed is
// "iex" or "sip"; empty means "iex". A nil limiter allows 200 calls a minute.
func NewAlpacaDailySource(apiKey, apiSecret, dataURL, feed string, limiter *util.RateLimiter, log *slog.Logger) *AlpacaDailySource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaDailySource(marketdata.NewClient(opts), feed, limiter, log)
}

func newAlpacaDailySource(client barsClient, feed string, limiter *util.RateLimiter, log *slog.Logger) *AlpacaDailySource {
	if feed == "" {
		feed = "iex"
	}
	if limiter == nil {
		limiter = util.NewRateLimiter(200, 1)
	}
	if log == nil {
		log = slog.Default()
	}
	return &AlpacaDailySource{
		client:  client,
		feed:    marketdata.Feed(feed),
		limiter: limiter,
		backoff: util.DefaultBackoff,
		log:     log.With("gatherer", "us-daily"),
	}
}

// Name returns the source identifier.
func (s *AlpacaDailySource) Name() string { return "alpaca-daily" }

// FetchDaily fetches bars for symbol within r, retrying transient failures.
func (s *AlpacaDailySource) FetchDaily(ctx context.Context, symbol string, r gather.DateRange) ([]domain.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      r.Start,
		End:        r.End,
		Feed:       s.feed,
	}

	var bars []domain.Bar
	attempt := 0
	err := util.Retry(ctx, s.backoff, func() error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		got, err := s.client.GetBars(symbol, req)
		if err != nil {
			s.log.Warn("GetBars failed", "symbol", symbol, "attempt", attempt, "error", err)
			return err
		}
		bars = convertBars(symbol, got)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s..%s", gather.ErrEmpty, symbol,
			r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	}
	s.log.Info("fetched daily bars", "symbol", symbol, "bars", len(bars),
		"first", bars[0].Timestamp.Format(domain.DateLayout),
		"last", bars[len(bars)-1].Timestamp.Format(domain.DateLayout))
	return bars, nil
}

func convertBars(symbol string, in []marketdata.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(in))
	sym := strings.ToUpper(symbol)
	for _, ab := range in {
		out = append(out, domain.Bar{
			Symbol:     sym,
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return out
}
