package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spxlab/internal/domain"
	"spxlab/internal/gather"
	"spxlab/internal/store"
	"spxlab/internal/util"
)

type fakeBars struct {
	bars  []domain.Bar
	err   error
	calls int
	rng   gather.DateRange
}

func (f *fakeBars) Name() string { return "fake" }

func (f *fakeBars) FetchDaily(_ context.Context, _ string, rng gather.DateRange) ([]domain.Bar, error) {
	f.calls++
	f.rng = rng
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Bar
	for _, b := range f.bars {
		if !b.Timestamp.After(rng.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func makeBars(n int) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		c := float64(100 + i)
		out[i] = domain.Bar{
			Symbol:    "SPY",
			Timestamp: day(i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func fixedAnchor(t time.Time) AnchorFunc {
	return func(context.Context) (time.Time, error) { return t, nil }
}

type harness struct {
	p      *Pipeline
	src    *fakeBars
	st     *store.SQLiteStore
	export string
	state  string
}

func newHarness(t *testing.T, bars []domain.Bar, anchor time.Time) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "prices.db"), store.DefaultTable)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	h := &harness{
		src:    &fakeBars{bars: bars},
		st:     st,
		export: filepath.Join(dir, "latest.csv"),
		state:  filepath.Join(dir, "state"),
	}
	cfg := Config{
		Symbol:     "SPY",
		Start:      day(0),
		ExportRows: 10,
		ExportPath: h.export,
		StateDir:   h.state,
		Backoff:    util.Backoff{Attempts: 1},
	}
	h.p, err = New(cfg, h.src, st, fixedAnchor(anchor), nil)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestRunOncePersistsAndExports(t *testing.T) {
	h := newHarness(t, makeBars(25), day(24))
	ctx := context.Background()

	rep, err := h.p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.Fetched != 25 || rep.Appended != 25 || rep.Exported != 10 {
		t.Errorf("report = %+v", rep)
	}
	if !h.src.rng.Start.Equal(day(0)) || !h.src.rng.End.Equal(day(24)) {
		t.Errorf("fetch range = %+v", h.src.rng)
	}

	rows, err := h.st.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 25 {
		t.Fatalf("stored %d rows, want 25", len(rows))
	}
	if _, ok := rows[18].MA(20); ok {
		t.Error("MA20 defined before warm-up")
	}
	if v, ok := rows[19].MA(20); !ok || math.Abs(v-109.5) > 1e-9 {
		t.Errorf("MA20 at index 19 = (%v, %v), want (109.5, true)", v, ok)
	}
	if v, ok := rows[24].MA(20); !ok || math.Abs(v-114.5) > 1e-9 {
		t.Errorf("MA20 at index 24 = (%v, %v), want (114.5, true)", v, ok)
	}
	if _, ok := rows[24].MA(50); ok {
		t.Error("MA50 defined with only 25 bars")
	}

	if _, err := os.Stat(h.export); err != nil {
		t.Errorf("export file missing: %v", err)
	}
	marker, err := os.ReadFile(filepath.Join(h.state, ".last-completed"))
	if err != nil {
		t.Fatal(err)
	}
	if string(marker) != "2024-03-25" {
		t.Errorf("marker = %q, want 2024-03-25", marker)
	}
}

func TestRunOnceIdempotent(t *testing.T) {
	h := newHarness(t, makeBars(10), day(9))
	ctx := context.Background()

	if _, err := h.p.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	rep, err := h.p.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Skipped {
		t.Error("second run for the same anchor should be skipped")
	}
	if h.src.calls != 1 {
		t.Errorf("source called %d times, want 1", h.src.calls)
	}

	// Forcing reruns the day but persists nothing new.
	if err := h.p.Force(); err != nil {
		t.Fatal(err)
	}
	rep, err = h.p.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped || rep.Appended != 0 || rep.Exported != 10 {
		t.Errorf("forced rerun report = %+v", rep)
	}
}

func TestRunOnceAppendsOnlyNewDays(t *testing.T) {
	bars := makeBars(12)
	h := newHarness(t, bars, day(9))
	ctx := context.Background()

	if _, err := h.p.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	h.p.anchor = fixedAnchor(day(11))
	rep, err := h.p.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Appended != 2 {
		t.Errorf("appended %d rows, want 2", rep.Appended)
	}
	last, ok, err := h.st.LastDate(ctx)
	if err != nil || !ok || !last.Equal(day(11)) {
		t.Errorf("LastDate = (%v, %v, %v), want day 11", last, ok, err)
	}
}

func TestRunOnceCleansInput(t *testing.T) {
	bars := makeBars(6)
	bars[2].Close = math.NaN()
	bars[4].Low = -1
	bars = append(bars, bars[5])

	h := newHarness(t, bars, day(5))
	rep, err := h.p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Clean.Missing != 1 || rep.Clean.Negative != 1 || rep.Clean.Duplicates != 1 {
		t.Errorf("clean report = %+v", rep.Clean)
	}
	if rep.Appended != 4 {
		t.Errorf("appended %d rows, want 4", rep.Appended)
	}
}

func TestRunOnceErrors(t *testing.T) {
	t.Run("source failure", func(t *testing.T) {
		h := newHarness(t, nil, day(5))
		h.src.err = gather.ErrEmpty
		if _, err := h.p.RunOnce(context.Background()); !errors.Is(err, gather.ErrEmpty) {
			t.Fatalf("err = %v, want ErrEmpty", err)
		}
		if h.p.tracker.LastCompleted() != "" {
			t.Error("failed run must not mark completion")
		}
	})

	t.Run("all rows invalid", func(t *testing.T) {
		bars := makeBars(2)
		bars[0].Close = -5
		bars[1].Open = math.Inf(1)
		h := newHarness(t, bars, day(5))
		if _, err := h.p.RunOnce(context.Background()); !errors.Is(err, gather.ErrEmpty) {
			t.Fatalf("err = %v, want ErrEmpty", err)
		}
	})

	t.Run("anchor failure", func(t *testing.T) {
		h := newHarness(t, makeBars(3), day(2))
		h.p.anchor = func(context.Context) (time.Time, error) { return time.Time{}, errors.New("calendar down") }
		if _, err := h.p.RunOnce(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestNewRequiresSymbol(t *testing.T) {
	if _, err := New(Config{StateDir: t.TempDir()}, &fakeBars{}, nil, fixedAnchor(day(0)), nil); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestProgressTracker(t *testing.T) {
	pt, err := newProgressTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if pt.IsCompleted("2025-02-10") {
		t.Error("should not be completed before marking")
	}
	if err := pt.MarkCompleted("2025-02-10"); err != nil {
		t.Fatal(err)
	}
	if !pt.IsCompleted("2025-02-10") {
		t.Error("should be completed after marking")
	}
	if pt.IsCompleted("2025-02-11") {
		t.Error("different date should not be completed")
	}
	if err := pt.Reset(); err != nil {
		t.Fatal(err)
	}
	if pt.LastCompleted() != "" {
		t.Error("Reset should clear the marker")
	}
	if err := pt.Reset(); err != nil {
		t.Errorf("Reset without marker: %v", err)
	}
}
