// Package store defines the persistent price store and its SQLite, Postgres
// and Parquet implementations. Every store is append-only by date: Append
// writes only rows dated after LastDate.
package store

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"time"

	"spxlab/internal/domain"
)

// DefaultTable is the table daily rows are kept in.
const DefaultTable = "sp500_prices"

// PriceStore persists and retrieves daily rows for a single symbol.
type PriceStore interface {
	// LastDate returns the most recent stored date. The boolean is false when
	// the store is empty or the table does not exist yet.
	LastDate(ctx context.Context) (time.Time, bool, error)

	// Append stores the rows dated after LastDate and returns how many were
	// written.
	Append(ctx context.Context, rows []domain.DailyRow) (int, error)

	// ReadAll returns every stored row in ascending date order.
	ReadAll(ctx context.Context) ([]domain.DailyRow, error)

	// Latest returns the n most recent rows in ascending date order.
	Latest(ctx context.Context, n int) ([]domain.DailyRow, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTable rejects table names that cannot be safely interpolated.
func validTable(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

// newerThan returns the rows dated strictly after last, sorted ascending and
// de-duplicated by date with the later occurrence winning.
func newerThan(rows []domain.DailyRow, last time.Time, have bool) []domain.DailyRow {
	byDate := make(map[time.Time]domain.DailyRow, len(rows))
	for _, r := range rows {
		d := domain.TradingDate(r.Date)
		if have && !d.After(last) {
			continue
		}
		r.Date = d
		byDate[d] = r
	}
	out := make([]domain.DailyRow, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// tail returns the last n rows of an ascending slice.
func tail(rows []domain.DailyRow, n int) []domain.DailyRow {
	if n <= 0 {
		return nil
	}
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return slices.Clone(rows)
}

// maColumns are the persisted moving-average columns, in schema order.
func maColumns() []string {
	cols := make([]string, len(domain.StandardWindows))
	for i, w := range domain.StandardWindows {
		cols[i] = fmt.Sprintf("ma_%d", w)
	}
	return cols
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// maPointers returns the row's standard moving averages as nullable values.
func maPointers(r domain.DailyRow) []*float64 {
	out := make([]*float64, len(domain.StandardWindows))
	for i, w := range domain.StandardWindows {
		if v, ok := r.MA(w); ok {
			out[i] = &v
		}
	}
	return out
}

// setMAs fills r.MovingAverages from nullable values in StandardWindows
// order.
func setMAs(r *domain.DailyRow, vals []*float64) {
	for i, p := range vals {
		if p == nil {
			continue
		}
		if r.MovingAverages == nil {
			r.MovingAverages = make(map[int]float64, len(vals))
		}
		r.MovingAverages[domain.StandardWindows[i]] = *p
	}
}
