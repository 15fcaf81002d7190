package us

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"spxlab/internal/domain"
	"spxlab/internal/util"
)

// calendarClient is the part of *alpaca.Client the calendar uses.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Calendar resolves the most recent fully settled US trading day.
type Calendar struct {
	client calendarClient
	now    func() time.Time
	log    *slog.Logger
}

// NewCalendar creates a Calendar backed by the Alpaca trading API. With no
// API key it works offline and only uses the weekday fallback.
func NewCalendar(apiKey, apiSecret, baseURL string, log *slog.Logger) *Calendar {
	var client calendarClient
	if apiKey != "" {
		client = alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		})
	}
	if log == nil {
		log = slog.Default()
	}
	return &Calendar{client: client, now: time.Now, log: log.With("component", "calendar")}
}

// LatestFinishedTradingDay returns the most recent trading day whose session
// has ended, counting today only after 20:05 ET so extended-hours data has
// settled.
func (c *Calendar) LatestFinishedTradingDay(_ context.Context) (time.Time, error) {
	if c.client == nil {
		return time.Time{}, fmt.Errorf("no calendar client configured")
	}
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}

	now := c.now().In(et)
	calendar, err := c.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(calendar) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format(domain.DateLayout)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)

	for i := len(calendar) - 1; i >= 0; i-- {
		day := calendar[i]
		if day.Date == today {
			if now.After(cutoff) {
				return time.Parse(domain.DateLayout, day.Date)
			}
			continue
		}
		d, err := time.Parse(domain.DateLayout, day.Date)
		if err != nil {
			continue
		}
		if d.Before(now) {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}

// Anchor is LatestFinishedTradingDay falling back to the previous weekday
// when the calendar is unavailable.
func (c *Calendar) Anchor(ctx context.Context) (time.Time, error) {
	d, err := c.LatestFinishedTradingDay(ctx)
	if err == nil {
		return d, nil
	}
	fallback := util.PreviousWeekday(c.now())
	c.log.Debug("calendar unavailable, using previous weekday", "error", err,
		"anchor", fallback.Format(domain.DateLayout))
	return fallback, nil
}
