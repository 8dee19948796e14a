package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresOption func(*PostgresStore)

func WithPostgresNowFunc(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.nowFn = now
		}
	}
}

type PostgresStore struct {
	db *sql.DB

	mu    sync.Mutex
	nowFn func() time.Time
}

var _ Store = (*PostgresStore)(nil)

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS history (
  id        BIGSERIAL PRIMARY KEY,
  item_key  TEXT NOT NULL,
  host      TEXT NOT NULL,
  clock     TIMESTAMPTZ NOT NULL,
  value     TEXT NOT NULL,
  instance  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_item_host_clock
  ON history(item_key, host, clock DESC, id DESC);
`

func NewPostgresStore(dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, mapPostgresError(err)
	}

	s := &PostgresStore{
		db:    db,
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.db.ExecContext(ctx, postgresSchemaV1); err != nil {
		_ = db.Close()
		return nil, mapPostgresError(err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) Append(ctx context.Context, v Value) error {
	v, err := normalizeValue(v, s.now)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO history (item_key, host, clock, value, instance)
VALUES ($1, $2, $3, $4, $5);
`, v.ItemKey, v.Host, v.Clock, v.Value, v.Instance)
	return mapPostgresError(err)
}

func (s *PostgresStore) Latest(ctx context.Context, itemKey, host string, limit int) ([]Value, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT item_key, host, clock, value, instance
FROM history
WHERE item_key = $1 AND host = $2
ORDER BY clock DESC, id DESC
LIMIT $3;
`, itemKey, host, normalizeLimit(limit))
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var out []Value
	for rows.Next() {
		var v Value
		if err := rows.Scan(&v.ItemKey, &v.Host, &v.Clock, &v.Value, &v.Instance); err != nil {
			return nil, err
		}
		v.Clock = v.Clock.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowFn().UTC()
}

func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %s (sqlstate %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
