package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spxlab/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*PostgresStore)(nil)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// DBPool is the subset of *pgxpool.Pool the Postgres store uses.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements PriceStore on a Postgres table.
type PostgresStore struct {
	pool  DBPool
	table string
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool DBPool, table string) (*PostgresStore, error) {
	tbl, err := validTable(table)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: tbl}, nil
}

// ConnectPostgres opens a pgx pool for dsn and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// EnsureTable creates the price table if it does not exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (date DATE PRIMARY KEY, open DOUBLE PRECISION NOT NULL, high DOUBLE PRECISION NOT NULL, low DOUBLE PRECISION NOT NULL, close DOUBLE PRECISION NOT NULL, volume BIGINT NOT NULL", s.table)
	for _, c := range maColumns() {
		fmt.Fprintf(&b, ", %s DOUBLE PRECISION", c)
	}
	b.WriteString(")")
	if _, err := s.pool.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// LastDate returns the most recent stored date. A missing table is created
// and reported as empty; any other database error is returned.
func (s *PostgresStore) LastDate(ctx context.Context) (time.Time, bool, error) {
	var last string
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(date)::text, '') FROM %s", s.table)).Scan(&last)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			if err := s.EnsureTable(ctx); err != nil {
				return time.Time{}, false, err
			}
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading last date: %w", err)
	}
	if last == "" {
		return time.Time{}, false, nil
	}
	t, err := parseDate(last)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Append inserts rows dated after LastDate in a single transaction.
func (s *PostgresStore) Append(ctx context.Context, rows []domain.DailyRow) (int, error) {
	last, have, err := s.LastDate(ctx)
	if err != nil {
		return 0, err
	}
	fresh := newerThan(rows, last, have)
	if len(fresh) == 0 {
		return 0, nil
	}

	cols := append([]string{"date", "open", "high", "low", "close", "volume"}, maColumns()...)
	ph := make([]string, len(cols))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (date) DO NOTHING",
		s.table, strings.Join(cols, ", "), strings.Join(ph, ", "))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	written := 0
	for _, r := range fresh {
		args := []any{r.Date, r.Open, r.High, r.Low, r.Close, r.Volume}
		for _, p := range maPointers(r) {
			args = append(args, p)
		}
		tag, err := tx.Exec(ctx, insert, args...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("inserting %s: %w", r.Date.Format(domain.DateLayout), err)
		}
		written += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// ReadAll returns every row in ascending date order.
func (s *PostgresStore) ReadAll(ctx context.Context) ([]domain.DailyRow, error) {
	return s.query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY date ASC", s.selectCols(), s.table))
}

// Latest returns the n most recent rows in ascending date order.
func (s *PostgresStore) Latest(ctx context.Context, n int) ([]domain.DailyRow, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY date DESC LIMIT $1", s.selectCols(), s.table), n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rows)
	return rows, nil
}

func (s *PostgresStore) selectCols() string {
	return "to_char(date, 'YYYY-MM-DD'), open, high, low, close, volume, " + strings.Join(maColumns(), ", ")
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]domain.DailyRow, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []domain.DailyRow
	for rows.Next() {
		var (
			date string
			r    domain.DailyRow
			mas  = make([]*float64, len(domain.StandardWindows))
		)
		dest := []any{&date, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume}
		for i := range mas {
			dest = append(dest, &mas[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		setMAs(&r, mas)
		out = append(out, r)
	}
	return out, rows.Err()
}
