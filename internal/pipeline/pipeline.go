// Package pipeline runs the daily price ETL: fetch, clean, compute moving
// averages, persist new rows and export a snapshot.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spxlab/internal/domain"
	"spxlab/internal/export"
	"spxlab/internal/gather"
	"spxlab/internal/indicator"
	"spxlab/internal/series"
	"spxlab/internal/store"
	"spxlab/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*Pipeline)(nil)

// AnchorFunc returns the most recent fully settled trading day.
type AnchorFunc func(ctx context.Context) (time.Time, error)

// Config controls one pipeline.
type Config struct {
	Symbol     string
	Start      time.Time
	Windows    []int
	ExportRows int
	ExportPath string
	StateDir   string
	Backoff    util.Backoff
}

// Report summarises one run.
type Report struct {
	Anchor     time.Time          `json:"anchor"`
	Skipped    bool               `json:"skipped"`
	Fetched    int                `json:"fetched"`
	Clean      series.CleanReport `json:"clean"`
	Appended   int                `json:"appended"`
	Exported   int                `json:"exported"`
	ExportPath string             `json:"exportPath,omitempty"`
	Elapsed    time.Duration      `json:"elapsed"`
}

// Pipeline moves daily bars from a BarSource into a PriceStore.
type Pipeline struct {
	cfg     Config
	bars    gather.BarSource
	store   store.PriceStore
	anchor  AnchorFunc
	tracker *progressTracker
	log     *slog.Logger
}

// New creates a Pipeline. Windows defaults to domain.StandardWindows.
func New(cfg Config, bars gather.BarSource, st store.PriceStore, anchor AnchorFunc, log *slog.Logger) (*Pipeline, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("pipeline: symbol is required")
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = domain.StandardWindows
	}
	if cfg.Backoff.Attempts == 0 {
		cfg.Backoff = util.DefaultBackoff
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "."
	}
	tracker, err := newProgressTracker(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		bars:    bars,
		store:   st,
		anchor:  anchor,
		tracker: tracker,
		log:     log.With("component", "pipeline", "symbol", cfg.Symbol),
	}, nil
}

// Name returns the gatherer identifier.
func (p *Pipeline) Name() string { return "spx-daily" }

// Run performs one pass, discarding the report.
func (p *Pipeline) Run(ctx context.Context) error {
	_, err := p.RunOnce(ctx)
	return err
}

// Force clears the completion marker so the next run executes even for an
// anchor that already completed.
func (p *Pipeline) Force() error {
	return p.tracker.Reset()
}

// RunOnce fetches the full history up to the anchor, recomputes moving
// averages, appends rows newer than the store's last date and exports the
// snapshot. A run for an anchor that already completed is skipped.
func (p *Pipeline) RunOnce(ctx context.Context) (*Report, error) {
	started := time.Now()
	anchor, err := p.anchor(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving anchor date: %w", err)
	}
	anchor = domain.TradingDate(anchor)
	key := anchor.Format(domain.DateLayout)
	rep := &Report{Anchor: anchor}

	if p.tracker.IsCompleted(key) {
		p.log.Info("already completed", "anchor", key)
		rep.Skipped = true
		return rep, nil
	}

	p.log.Info("starting pipeline", "start", p.cfg.Start.Format(domain.DateLayout), "anchor", key)

	bars, err := p.bars.FetchDaily(ctx, p.cfg.Symbol, gather.DateRange{Start: p.cfg.Start, End: anchor})
	if err != nil {
		return nil, fmt.Errorf("fetching bars: %w", err)
	}
	rep.Fetched = len(bars)

	cleaned, crep := series.Clean(bars)
	rep.Clean = crep
	if crep.Dropped() > 0 {
		p.log.Warn("dropped invalid rows", "missing", crep.Missing, "negative", crep.Negative, "duplicates", crep.Duplicates)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: every fetched row was invalid", gather.ErrEmpty)
	}

	rows, err := p.buildRows(cleaned)
	if err != nil {
		return nil, err
	}

	err = util.Retry(ctx, p.cfg.Backoff, func() error {
		n, err := p.store.Append(ctx, rows)
		rep.Appended = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("persisting rows: %w", err)
	}
	if rep.Appended == 0 {
		p.log.Info("no new rows to persist")
	} else {
		p.log.Info("persisted rows", "rows", rep.Appended)
	}

	if p.cfg.ExportPath != "" {
		n, err := export.Snapshot(ctx, p.store, p.cfg.ExportRows, p.cfg.ExportPath)
		if err != nil {
			return nil, fmt.Errorf("exporting snapshot: %w", err)
		}
		rep.Exported, rep.ExportPath = n, p.cfg.ExportPath
		p.log.Info("exported snapshot", "rows", n, "path", p.cfg.ExportPath)
	}

	if err := p.tracker.MarkCompleted(key); err != nil {
		return nil, fmt.Errorf("marking completed: %w", err)
	}
	rep.Elapsed = time.Since(started)
	p.log.Info("pipeline complete", "fetched", rep.Fetched, "appended", rep.Appended,
		"elapsed", rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

// buildRows attaches moving averages computed over the whole cleaned history
// to each bar.
func (p *Pipeline) buildRows(bars []domain.Bar) ([]domain.DailyRow, error) {
	ps, err := series.FromBars(p.cfg.Symbol, bars)
	if err != nil {
		return nil, fmt.Errorf("building series: %w", err)
	}
	mas, err := indicator.MovingAverages(ps, p.cfg.Windows...)
	if err != nil {
		return nil, fmt.Errorf("computing moving averages: %w", err)
	}

	rows := make([]domain.DailyRow, len(bars))
	for i, b := range bars {
		r := domain.DailyRow{
			Date:   domain.TradingDate(b.Timestamp),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		for w, s := range mas {
			if v, ok := s.At(i); ok {
				if r.MovingAverages == nil {
					r.MovingAverages = make(map[int]float64, len(mas))
				}
				r.MovingAverages[w] = v
			}
		}
		rows[i] = r
	}
	return rows, nil
}
