package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), Backoff{Attempts: 5}, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), Backoff{Attempts: maxAttempts}, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), Backoff{Attempts: 5}, func() error {
		attempts++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
	if attempts != 1 {
		t.Errorf("permanent error retried %d times", attempts)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, Backoff{Attempts: 3, Base: time.Hour}, func() error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, 2)
	rl.now = func() time.Time { return now }
	rl.lastTime = now

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst of 2 not honoured")
	}
	if rl.Allow() {
		t.Fatal("third call allowed without refill")
	}
	now = now.Add(time.Second)
	if !rl.Allow() {
		t.Error("token not replenished after one second at 60/min")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.tokens = 0
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestPreviousWeekday(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		// Wednesday -> Tuesday
		{time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC), time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)},
		// Monday -> previous Friday
		{time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
		// Sunday -> Friday
		{time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := PreviousWeekday(tt.now); !got.Equal(tt.want) {
			t.Errorf("PreviousWeekday(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestAnalysisWindow(t *testing.T) {
	anchor := time.Date(2024, 5, 14, 15, 30, 0, 0, time.UTC)
	w := AnalysisWindow(anchor, 365)
	if !w.End.Equal(time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %s", w.End)
	}
	if !w.Start.Equal(time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %s", w.Start)
	}
}

func TestPresets(t *testing.T) {
	if d, ok := PresetDays("max"); !ok || d != 365*50 {
		t.Errorf("PresetDays(max) = %d, %v", d, ok)
	}
	if _, ok := PresetDays("2w"); ok {
		t.Error("unknown preset resolved")
	}
	if got := PeriodLabel(365); got != "1 Year" {
		t.Errorf("PeriodLabel(365) = %q", got)
	}
	if got := PeriodLabel(90); got != "90 days" {
		t.Errorf("PeriodLabel(90) = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "rows", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"rows":3`) {
		t.Errorf("json output missing attribute: %s", out)
	}

	buf.Reset()
	NewLogger(&buf, "debug", "text").Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q", buf.String())
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}

func TestOpenLogFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenLogFile(dir+"/logs", "spx-pipeline", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !strings.HasSuffix(f.Name(), "spx-pipeline-2024-03-01.log") {
		t.Errorf("file name = %s", f.Name())
	}
	if _, err := os.Stat(f.Name()); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
