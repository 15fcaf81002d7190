package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"spxlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ PriceStore = (*SQLiteStore)(nil)

// SQLiteStore implements PriceStore backed by a SQLite database. Dates are
// stored as YYYY-MM-DD text so they sort lexically.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the price table exists.
func NewSQLiteStore(dbPath, table string) (*SQLiteStore, error) {
	tbl, err := validTable(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: tbl}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (date TEXT PRIMARY KEY, open REAL NOT NULL, high REAL NOT NULL, low REAL NOT NULL, close REAL NOT NULL, volume INTEGER NOT NULL", s.table)
	for _, c := range maColumns() {
		fmt.Fprintf(&b, ", %s REAL", c)
	}
	b.WriteString(")")
	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// LastDate returns the most recent stored date.
func (s *SQLiteStore) LastDate(ctx context.Context) (time.Time, bool, error) {
	var last string
	q := fmt.Sprintf("SELECT COALESCE(MAX(date), '') FROM %s", s.table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&last); err != nil {
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
func (s *SQLiteStore) Append(ctx context.Context, rows []domain.DailyRow) (int, error) {
	last, have, err := s.LastDate(ctx)
	if err != nil {
		return 0, err
	}
	fresh := newerThan(rows, last, have)
	if len(fresh) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cols := append([]string{"date", "open", "high", "low", "close", "volume"}, maColumns()...)
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(date) DO NOTHING",
		s.table, strings.Join(cols, ", "), ph))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range fresh {
		args := []any{r.Date.Format(domain.DateLayout), r.Open, r.High, r.Low, r.Close, r.Volume}
		for _, p := range maPointers(r) {
			args = append(args, nullFloat(p))
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", r.Date.Format(domain.DateLayout), err)
		}
		n, _ := res.RowsAffected()
		written += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// ReadAll returns every row in ascending date order.
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]domain.DailyRow, error) {
	return s.query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY date ASC", s.selectCols(), s.table))
}

// Latest returns the n most recent rows in ascending date order.
func (s *SQLiteStore) Latest(ctx context.Context, n int) ([]domain.DailyRow, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY date DESC LIMIT ?", s.selectCols(), s.table), n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rows)
	return rows, nil
}

func (s *SQLiteStore) selectCols() string {
	return "date, open, high, low, close, volume, " + strings.Join(maColumns(), ", ")
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]domain.DailyRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []domain.DailyRow
	for rows.Next() {
		var (
			date string
			r    domain.DailyRow
			mas  = make([]sql.NullFloat64, len(domain.StandardWindows))
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
		vals := make([]*float64, len(mas))
		for i, m := range mas {
			if m.Valid {
				v := m.Float64
				vals[i] = &v
			}
		}
		setMAs(&r, vals)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
