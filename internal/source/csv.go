package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"spxlab/internal/domain"
	"spxlab/internal/series"
)

// CSVSource reads closes from a snapshot file with at least a date and a
// close column. Header matching is case-insensitive; blank closes are
// forward-filled.
type CSVSource struct {
	path   string
	name   string
	symbol string
}

// NewCSVSource creates a CSVSource. An empty name defaults to
// "CSV (Static Demo)".
func NewCSVSource(path, name, symbol string) *CSVSource {
	if name == "" {
		name = "CSV (Static Demo)"
	}
	return &CSVSource{path: path, name: name, symbol: symbol}
}

// Name returns the display label.
func (s *CSVSource) Name() string { return s.name }

// Load parses the file. A missing file wraps ErrUnavailable.
func (s *CSVSource) Load(_ context.Context) (series.PriceSeries, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return series.PriceSeries{}, fmt.Errorf("%w: %s not found", ErrUnavailable, s.path)
		}
		return series.PriceSeries{}, err
	}
	defer f.Close()
	return ParseCSV(f, s.symbol)
}

// ParseCSV reads date/close columns from r.
func ParseCSV(r io.Reader, symbol string) (series.PriceSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return series.PriceSeries{}, fmt.Errorf("%w: empty csv", ErrUnavailable)
		}
		return series.PriceSeries{}, fmt.Errorf("reading header: %w", err)
	}
	dateCol, closeCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return series.PriceSeries{}, fmt.Errorf("csv header %v lacks date/close columns", header)
	}

	type obs struct {
		date  time.Time
		close float64
	}
	byDate := make(map[time.Time]float64)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return series.PriceSeries{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) <= max(dateCol, closeCol) {
			continue
		}
		raw := strings.TrimSpace(rec[dateCol])
		if len(raw) > len(domain.DateLayout) {
			raw = raw[:len(domain.DateLayout)]
		}
		d, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return series.PriceSeries{}, fmt.Errorf("line %d: bad date %q", line, rec[dateCol])
		}
		c := math.NaN()
		if v := strings.TrimSpace(rec[closeCol]); v != "" {
			if c, err = strconv.ParseFloat(v, 64); err != nil {
				return series.PriceSeries{}, fmt.Errorf("line %d: bad close %q", line, v)
			}
		}
		byDate[d] = c
	}

	all := make([]obs, 0, len(byDate))
	for d, c := range byDate {
		all = append(all, obs{d, c})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].date.Before(all[j].date) })
	dates := make([]time.Time, len(all))
	closes := make([]float64, len(all))
	for i, o := range all {
		dates[i], closes[i] = o.date, o.close
	}
	return series.FromSparse(symbol, dates, closes)
}
