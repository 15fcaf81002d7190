package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spxlab/internal/domain"
	"spxlab/internal/source"
	"spxlab/internal/store"
)

func seed(t *testing.T, n int) store.PriceStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "p.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	rows := make([]domain.DailyRow, n)
	for i := range rows {
		rows[i] = domain.DailyRow{
			Date:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:  float64(100 + i), High: float64(101 + i), Low: float64(99 + i), Close: float64(100 + i),
			Volume: int64(1000 + i),
		}
		if i >= 1 {
			rows[i].MovingAverages = map[int]float64{20: float64(i) + 0.5}
		}
	}
	if _, err := st.Append(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestSnapshotCSV(t *testing.T) {
	st := seed(t, 5)
	path := filepath.Join(t.TempDir(), "out", "sp500_latest.csv")

	n, err := Snapshot(context.Background(), st, 3, path)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if n != 3 {
		t.Errorf("wrote %d rows, want 3", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3:\n%s", len(lines), data)
	}
	if lines[0] != "date,open,high,low,close,volume,ma_20,ma_50,ma_100,ma_200" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2024-01-03,102,") {
		t.Errorf("first data line = %q, want ascending from 2024-01-03", lines[1])
	}
	if !strings.HasSuffix(lines[3], ",4.5,,,") {
		t.Errorf("undefined MAs should be blank: %q", lines[3])
	}

	// The snapshot feeds the CSV price source.
	ps, err := source.NewCSVSource(path, "", "SPX").Load(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot back: %v", err)
	}
	if ps.Len() != 3 || ps.Closes[2] != 104 {
		t.Errorf("read back %+v", ps)
	}
}

func TestSnapshotParquet(t *testing.T) {
	st := seed(t, 4)
	path := filepath.Join(t.TempDir(), "latest.parquet")
	if _, err := Snapshot(context.Background(), st, 0, path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	rows, err := store.ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if _, ok := rows[0].MA(20); ok {
		t.Error("first row should have no ma_20")
	}
}

func TestFormatFor(t *testing.T) {
	if FormatFor("a/b.PARQUET") != FormatParquet || FormatFor("x.csv") != FormatCSV || FormatFor("noext") != FormatCSV {
		t.Error("FormatFor picked the wrong format")
	}
}
