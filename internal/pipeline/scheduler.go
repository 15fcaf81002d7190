package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spxlab/internal/gather"
	"spxlab/internal/util"
)

// Scheduler runs a Gatherer once at startup and then daily at a fixed wall
// clock time until its context is cancelled. Failed runs are retried with
// backoff; a run that still fails is logged and the next slot is awaited.
type Scheduler struct {
	g       gather.Gatherer
	at      time.Duration // offset from midnight
	loc     *time.Location
	backoff util.Backoff
	now     func() time.Time
	log     *slog.Logger
}

// NewScheduler creates a Scheduler firing daily at hh:mm in loc.
func NewScheduler(g gather.Gatherer, at string, loc *time.Location, backoff util.Backoff, log *slog.Logger) (*Scheduler, error) {
	offset, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		g:       g,
		at:      offset,
		loc:     loc,
		backoff: backoff,
		now:     time.Now,
		log:     log.With("component", "scheduler", "gatherer", g.Name()),
	}, nil
}

// ParseClock parses an "HH:MM" time of day into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parsing time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Next returns the first scheduled instant strictly after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	next := midnight.Add(s.at)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.loc).Add(s.at)
	}
	return next
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.runOnce(ctx)

		next := s.Next(s.now())
		s.log.Info("next run scheduled", "at", next.Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	err := util.Retry(ctx, s.backoff, func() error {
		err := s.g.Run(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Warn("run failed", "error", err)
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("run gave up", "error", err)
	}
}
