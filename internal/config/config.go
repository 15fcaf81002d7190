package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"time"
	_ "time/tzdata" // timezone database for hosts without one

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for spxlab.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Pipeline Pipeline `yaml:"pipeline"`
	Backtest Backtest `yaml:"backtest"`
}

// Storage selects and locates the price store.
type Storage struct {
	Backend    string `yaml:"backend"` // sqlite, postgres or parquet
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Table      string `yaml:"table"`
}

// Postgres holds connection settings for the warehouse store.
type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the settings as a libpq connection URL.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		p.User, p.Password, net.JoinHostPort(p.Host, strconv.Itoa(p.Port)), p.DBName, p.SSLMode)
}

// Redis configures the shared price cache. An empty Addr disables it.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr is the HTTP listen address.
func (s Server) Addr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

// GRPCAddr is the gRPC listen address.
func (s Server) GRPCAddr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.GRPCPort)) }

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"` // daemon log files; empty means stdout only
}

// Pipeline controls the daily ETL job.
type Pipeline struct {
	Symbol     string `yaml:"symbol"`
	StartDate  string `yaml:"start_date"`
	ExportRows int    `yaml:"export_rows"`
	ExportPath string `yaml:"export_path"`
	StateDir   string `yaml:"state_dir"`
	RunAt      string `yaml:"run_at"`
	Timezone   string `yaml:"timezone"`
}

// Backtest holds the defaults applied to backtest requests and the price
// source chain they read from.
type Backtest struct {
	ShortWindow  int           `yaml:"short_window"`
	LongWindow   int           `yaml:"long_window"`
	InitialCash  float64       `yaml:"initial_cash"`
	DurationDays int           `yaml:"duration_days"`
	ChartFrom    string        `yaml:"chart_from"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Sources      []string      `yaml:"sources"` // "store", "csv" in priority order
	CSVPath      string        `yaml:"csv_path"`
}

// Source kinds accepted in Backtest.Sources.
const (
	SourceStore = "store"
	SourceCSV   = "csv"
)

// Store backends accepted in Storage.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendParquet  = "parquet"
)

// Defaults returns a Config usable without any file.
func Defaults() *Config {
	return &Config{
		Storage: Storage{
			Backend:    BackendSQLite,
			DataDir:    "data",
			SQLitePath: "data/spxlab.db",
			Table:      "sp500_prices",
		},
		Postgres: Postgres{Host: "localhost", Port: 5432, User: "postgres", DBName: "market", SSLMode: "disable"},
		Redis:    Redis{Prefix: "spxlab:"},
		Alpaca: Alpaca{
			BaseURL:         "https://paper-api.alpaca.markets",
			DataURL:         "https://data.alpaca.markets",
			Feed:            "iex",
			RateLimitPerMin: 200,
		},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090},
		Logging: Logging{Level: "info", Format: "json"},
		Pipeline: Pipeline{
			Symbol:     "SPY",
			StartDate:  "1993-01-29",
			ExportRows: 100,
			ExportPath: "data/sp500_latest.csv",
			StateDir:   "data",
			RunAt:      "20:15",
			Timezone:   "America/New_York",
		},
		Backtest: Backtest{
			ShortWindow:  50,
			LongWindow:   200,
			InitialCash:  100000,
			DurationDays: 365,
			ChartFrom:    "2000-01-01",
			CacheTTL:     time.Hour,
			Sources:      []string{SourceStore, SourceCSV},
			CSVPath:      "data/sp500_latest.csv",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load starts from Defaults, loads any .env files found (existing process
// variables win), overlays the YAML file at path when it exists, applies
// environment variable overrides and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files, defaulting to ./.env. Missing files
// are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&cfg.Storage.Backend, "STORE_BACKEND")
	setString(&cfg.Storage.DataDir, "DATA_DIR")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setInt(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	// Standard Alpaca env vars come last so the SDK's canonical names win.
	setString(&cfg.Alpaca.APIKey, "ALPACA_API_KEY", "APCA_API_KEY_ID")
	setString(&cfg.Alpaca.APISecret, "ALPACA_API_SECRET", "APCA_API_SECRET_KEY")
	setString(&cfg.Alpaca.BaseURL, "ALPACA_BASE_URL")
	setString(&cfg.Alpaca.DataURL, "ALPACA_DATA_URL")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setInt(&cfg.Server.Port, "PORT")
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendPostgres, BackendParquet:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Pipeline.Symbol == "" {
		return errors.New("pipeline.symbol is required")
	}
	if _, err := c.StartTime(); err != nil {
		return fmt.Errorf("pipeline.start_date: %w", err)
	}
	if _, err := time.Parse("15:04", c.Pipeline.RunAt); err != nil {
		return fmt.Errorf("pipeline.run_at: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("pipeline.timezone: %w", err)
	}
	if c.Pipeline.ExportRows < 0 {
		return fmt.Errorf("pipeline.export_rows must not be negative, got %d", c.Pipeline.ExportRows)
	}

	b := c.Backtest
	if b.ShortWindow < 1 || b.LongWindow < 1 {
		return fmt.Errorf("backtest windows must be positive, got %d/%d", b.ShortWindow, b.LongWindow)
	}
	if b.InitialCash <= 0 {
		return fmt.Errorf("backtest.initial_cash must be positive, got %v", b.InitialCash)
	}
	if b.DurationDays < 1 {
		return fmt.Errorf("backtest.duration_days must be positive, got %d", b.DurationDays)
	}
	if _, err := c.ChartFromTime(); err != nil {
		return fmt.Errorf("backtest.chart_from: %w", err)
	}
	if len(b.Sources) == 0 {
		return errors.New("backtest.sources must list at least one source")
	}
	for _, s := range b.Sources {
		if !slices.Contains([]string{SourceStore, SourceCSV}, s) {
			return fmt.Errorf("backtest.sources: unknown source %q", s)
		}
	}
	return nil
}

// StartTime parses Pipeline.StartDate.
func (c *Config) StartTime() (time.Time, error) {
	return time.Parse("2006-01-02", c.Pipeline.StartDate)
}

// ChartFromTime parses Backtest.ChartFrom; empty yields the zero time.
func (c *Config) ChartFromTime() (time.Time, error) {
	if c.Backtest.ChartFrom == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", c.Backtest.ChartFrom)
}

// Location loads Pipeline.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Pipeline.Timezone)
}
