// Package app wires configuration into the stores, sources, backtester and
// pipeline shared by the spxlab commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"spxlab/internal/config"
	"spxlab/internal/domain"
	"spxlab/internal/gather/us"
	"spxlab/internal/httpapi"
	"spxlab/internal/pipeline"
	"spxlab/internal/source"
	"spxlab/internal/store"
	"spxlab/internal/strategy"
	"spxlab/internal/strategy/builtins"
	"spxlab/internal/util"
)

// Store display names reported as the data source.
const (
	NameSQLite   = "SQLite"
	NamePostgres = "PostgreSQL (Live)"
	NameParquet  = "Parquet"
	NameCSV      = "CSV (Static Demo)"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config    *config.Config
	Store     store.PriceStore
	StoreName string
	Prices    *source.Cached
	Sources   []string
	Calendar  *us.Calendar
	Registry  *strategy.Registry
	Log       *slog.Logger

	closers []func() error
}

// Open builds an App. Close releases its connections.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		Config:   cfg,
		Calendar: us.NewCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, log),
		Registry: strategy.NewRegistry(),
		Log:      log,
	}
	builtins.Register(a.Registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var chain []source.PriceSource
	for _, kind := range cfg.Backtest.Sources {
		switch kind {
		case config.SourceStore:
			chain = append(chain, source.NewStoreSource(a.Store, a.StoreName, cfg.Pipeline.Symbol))
		case config.SourceCSV:
			chain = append(chain, source.NewCSVSource(cfg.Backtest.CSVPath, NameCSV, cfg.Pipeline.Symbol))
		}
	}
	resolver := source.NewChain(log, chain...)
	a.Sources = resolver.Names()

	var cache source.Cache = source.NewMemoryCache(time.Now)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		cache = source.NewRedisCache(client, cfg.Redis.Prefix)
		log.Info("using redis price cache", "addr", cfg.Redis.Addr)
	}
	a.Prices = source.NewCached(resolver, cache, source.DefaultCacheKey, cfg.Backtest.CacheTTL, log)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	s := a.Config.Storage
	switch s.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(s.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("creating sqlite dir: %w", err)
		}
		st, err := store.NewSQLiteStore(s.SQLitePath, s.Table)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		a.Store, a.StoreName = st, NameSQLite
		a.closers = append(a.closers, st.Close)

	case config.BackendPostgres:
		pool, err := store.ConnectPostgres(ctx, a.Config.Postgres.DSN())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		st, err := store.NewPostgresStore(pool, s.Table)
		if err != nil {
			return err
		}
		a.Store, a.StoreName = st, NamePostgres

	case config.BackendParquet:
		a.Store = store.NewParquetStore(s.DataDir, domain.MarketUS, a.Config.Pipeline.Symbol)
		a.StoreName = NameParquet

	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	a.Log.Info("opened price store", "backend", s.Backend)
	return nil
}

// Close releases every connection the App opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Backtester builds a Backtester over the cached source chain, anchored on
// the trading calendar.
func (a *App) Backtester() (*strategy.Backtester, error) {
	chartFrom, err := a.Config.ChartFromTime()
	if err != nil {
		return nil, err
	}
	return strategy.NewBacktester(a.Prices, a.Registry, a.Calendar.Anchor, chartFrom, a.Log), nil
}

// Service builds the API service with the configured request defaults.
func (a *App) Service() (*httpapi.Service, error) {
	bt, err := a.Backtester()
	if err != nil {
		return nil, err
	}
	b := a.Config.Backtest
	return httpapi.NewService(bt, a.Prices, a.Prices, a.Sources, httpapi.Defaults{
		Strategy:     strategy.DefaultStrategy,
		ShortWindow:  b.ShortWindow,
		LongWindow:   b.LongWindow,
		DurationDays: b.DurationDays,
		InitialCash:  decimal.NewFromFloat(b.InitialCash),
	}, a.Log), nil
}

// Pipeline builds the ETL pipeline fetching from Alpaca.
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	c := a.Config
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return nil, errors.New("alpaca credentials are required to fetch prices")
	}
	start, err := c.StartTime()
	if err != nil {
		return nil, err
	}
	limiter := util.NewRateLimiter(c.Alpaca.RateLimitPerMin, 1)
	bars := us.NewAlpacaDailySource(c.Alpaca.APIKey, c.Alpaca.APISecret, c.Alpaca.DataURL, c.Alpaca.Feed, limiter, a.Log)

	return pipeline.New(pipeline.Config{
		Symbol:     c.Pipeline.Symbol,
		Start:      start,
		ExportRows: c.Pipeline.ExportRows,
		ExportPath: c.Pipeline.ExportPath,
		StateDir:   c.Pipeline.StateDir,
	}, bars, a.Store, a.Calendar.Anchor, a.Log)
}
