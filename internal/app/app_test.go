package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spxlab/internal/config"
	"spxlab/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Storage.DataDir = dir
	cfg.Storage.SQLitePath = filepath.Join(dir, "db", "spxlab.db")
	cfg.Backtest.CSVPath = filepath.Join(dir, "latest.csv")
	cfg.Pipeline.StateDir = dir
	cfg.Alpaca.APIKey = ""
	cfg.Alpaca.APISecret = ""
	require.NoError(t, os.WriteFile(cfg.Backtest.CSVPath,
		[]byte("date,close\n2024-01-02,470.5\n2024-01-03,468.1\n"), 0o644))
	return cfg
}

func TestOpenFallsBackToCSV(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{NameSQLite, NameCSV}, a.Sources)

	r, err := a.Prices.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, NameCSV, r.Source)
	assert.Equal(t, 2, r.Series.Len())

	// Once the store has rows and the cache is dropped the store wins.
	_, err = a.Store.Append(ctx, []domain.DailyRow{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	})
	require.NoError(t, err)
	require.NoError(t, a.Prices.Invalidate(ctx))

	r, err = a.Prices.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, NameSQLite, r.Source)
}

func TestOpenParquet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendParquet
	cfg.Backtest.Sources = []string{config.SourceStore}

	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, NameParquet, a.StoreName)
	assert.Equal(t, []string{NameParquet}, a.Sources)
}

func TestServiceAndBacktester(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	svc, err := a.Service()
	require.NoError(t, err)
	p := svc.Periods()
	assert.Equal(t, 365, p.Default)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NameCSV, st.Source)
	assert.Equal(t, "2024-01-03", st.LastDate)

	ok, err := svc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPipelineNeedsCredentials(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Pipeline()
	assert.Error(t, err)

	a.Config.Alpaca.APIKey, a.Config.Alpaca.APISecret = "key", "secret"
	p, err := a.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, "spx-daily", p.Name())
}
