// Package export writes snapshots of the most recent stored rows to CSV or
// Parquet files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"spxlab/internal/domain"
	"spxlab/internal/store"
)

// DefaultRows is the snapshot length when none is configured.
const DefaultRows = 100

// Format is a snapshot file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// FormatFor picks the format from path's extension, defaulting to CSV.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Header is the CSV column order.
func Header() []string {
	h := []string{"date", "open", "high", "low", "close", "volume"}
	for _, w := range domain.StandardWindows {
		h = append(h, fmt.Sprintf("ma_%d", w))
	}
	return h
}

// Snapshot writes the n most recent rows of st to path in ascending date
// order and returns how many rows were written. n <= 0 uses DefaultRows.
func Snapshot(ctx context.Context, st store.PriceStore, n int, path string) (int, error) {
	if n <= 0 {
		n = DefaultRows
	}
	rows, err := st.Latest(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("reading latest rows: %w", err)
	}
	if err := Write(path, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Write stores rows at path in the format implied by its extension.
func Write(path string, rows []domain.DailyRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export dir: %w", err)
		}
	}
	switch FormatFor(path) {
	case FormatParquet:
		if err := store.WriteRecords(path, rows); err != nil {
			return fmt.Errorf("writing parquet snapshot: %w", err)
		}
		return nil
	default:
		return writeCSV(path, rows)
	}
}

func writeCSV(path string, rows []domain.DailyRow) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(Header())
	for _, r := range rows {
		rec := []string{
			r.Date.Format(domain.DateLayout),
			formatFloat(r.Open),
			formatFloat(r.High),
			formatFloat(r.Low),
			formatFloat(r.Close),
			strconv.FormatInt(r.Volume, 10),
		}
		for _, win := range domain.StandardWindows {
			if v, ok := r.MA(win); ok {
				rec = append(rec, formatFloat(v))
			} else {
				rec = append(rec, "")
			}
		}
		_ = w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing csv: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
