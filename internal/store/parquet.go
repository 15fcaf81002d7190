package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"spxlab/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore for one symbol using yearly Parquet
// files:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
	Market  domain.Market
	Symbol  string

	mu sync.Mutex
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string, market domain.Market, symbol string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Market: market, Symbol: symbol}
}

// DailyRecord is the Parquet schema for a persisted daily row.
type DailyRecord struct {
	Timestamp int64    `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open      float64  `parquet:"open"`
	High      float64  `parquet:"high"`
	Low       float64  `parquet:"low"`
	Close     float64  `parquet:"close"`
	Volume    int64    `parquet:"volume"`
	MA20      *float64 `parquet:"ma_20,optional"`
	MA50      *float64 `parquet:"ma_50,optional"`
	MA100     *float64 `parquet:"ma_100,optional"`
	MA200     *float64 `parquet:"ma_200,optional"`
}

// ToRecord converts a row to its on-disk form.
func ToRecord(r domain.DailyRow) DailyRecord {
	ma := func(w int) *float64 {
		if v, ok := r.MA(w); ok {
			return &v
		}
		return nil
	}
	return DailyRecord{
		Timestamp: domain.TradingDate(r.Date).UnixMilli(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		MA20:      ma(20),
		MA50:      ma(50),
		MA100:     ma(100),
		MA200:     ma(200),
	}
}

// Row converts the record back to a domain row.
func (d DailyRecord) Row() domain.DailyRow {
	r := domain.DailyRow{
		Date:   time.UnixMilli(d.Timestamp).UTC(),
		Open:   d.Open,
		High:   d.High,
		Low:    d.Low,
		Close:  d.Close,
		Volume: d.Volume,
	}
	setMAs(&r, []*float64{d.MA20, d.MA50, d.MA100, d.MA200})
	return r
}

// WriteRecords writes rows to a single Parquet file at path, creating parent
// directories.
func WriteRecords(path string, rows []domain.DailyRow) error {
	records := make([]DailyRecord, len(rows))
	for i, r := range rows {
		records[i] = ToRecord(r)
	}
	return writeParquetFile(path, records)
}

// ReadRecords reads a file written by WriteRecords.
func ReadRecords(path string) ([]domain.DailyRow, error) {
	records, err := readParquetFile[DailyRecord](path)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.DailyRow, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	return rows, nil
}

// LastDate returns the latest date in the newest year file.
func (s *ParquetStore) LastDate(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	years, err := s.years()
	if err != nil {
		return time.Time{}, false, err
	}
	for i := len(years) - 1; i >= 0; i-- {
		records, err := readParquetFile[DailyRecord](s.dailyPath(years[i]))
		if err != nil {
			return time.Time{}, false, fmt.Errorf("reading %d: %w", years[i], err)
		}
		if len(records) == 0 {
			continue
		}
		var maxTS int64
		for _, r := range records {
			maxTS = max(maxTS, r.Timestamp)
		}
		return time.UnixMilli(maxTS).UTC(), true, nil
	}
	return time.Time{}, false, nil
}

// Append merges rows dated after LastDate into their year files.
func (s *ParquetStore) Append(ctx context.Context, rows []domain.DailyRow) (int, error) {
	last, have, err := s.LastDate(ctx)
	if err != nil {
		return 0, err
	}
	fresh := newerThan(rows, last, have)
	if len(fresh) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make(map[int][]DailyRecord)
	for _, r := range fresh {
		groups[r.Date.Year()] = append(groups[r.Date.Year()], ToRecord(r))
	}
	for year, records := range groups {
		path := s.dailyPath(year)
		existing, err := readParquetFile[DailyRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("reading %d: %w", year, err)
		}
		if err := writeParquetFile(path, mergeDailyRecords(existing, records)); err != nil {
			return 0, fmt.Errorf("writing %s/%d: %w", s.Symbol, year, err)
		}
	}
	return len(fresh), nil
}

// ReadAll returns every stored row in ascending date order.
func (s *ParquetStore) ReadAll(_ context.Context) ([]domain.DailyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	years, err := s.years()
	if err != nil {
		return nil, err
	}
	var rows []domain.DailyRow
	for _, y := range years {
		part, err := ReadRecords(s.dailyPath(y))
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", y, err)
		}
		rows = append(rows, part...)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// Latest returns the n most recent rows in ascending date order.
func (s *ParquetStore) Latest(ctx context.Context, n int) ([]domain.DailyRow, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return tail(rows, n), nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) symbolDir() string {
	return filepath.Join(s.DataDir, string(s.Market), "daily", strings.ToUpper(s.Symbol))
}

// dailyPath returns the filesystem path for one year of daily rows.
func (s *ParquetStore) dailyPath(year int) string {
	return filepath.Join(s.symbolDir(), strconv.Itoa(year)+".parquet")
}

// years lists the year files present, ascending.
func (s *ParquetStore) years() ([]int, error) {
	entries, err := os.ReadDir(s.symbolDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if e.IsDir() || !ok {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeDailyRecords deduplicates by timestamp, preferring incoming records,
// and sorts ascending.
func mergeDailyRecords(existing, incoming []DailyRecord) []DailyRecord {
	seen := make(map[int64]DailyRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}
	merged := make([]DailyRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
