package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite3 "modernc.org/sqlite"
)

// migrations[i] moves the schema from user_version i to i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS history (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  item_key  TEXT NOT NULL,
  host      TEXT NOT NULL,
  clock     INTEGER NOT NULL,
  value     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_item_host_clock
  ON history(item_key, host, clock DESC, id DESC);`,
	`ALTER TABLE history ADD COLUMN instance TEXT NOT NULL DEFAULT '';`,
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteNowFunc(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithSQLiteRetention deletes values older than maxAge on append, at most
// once per pruneInterval.
func WithSQLiteRetention(maxAge, pruneInterval time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		s.retentionMaxAge = max(maxAge, 0)
		s.pruneInterval = max(pruneInterval, 0)
	}
}

type SQLiteStore struct {
	db *sql.DB

	mu              sync.Mutex
	nowFn           func() time.Time
	retentionMaxAge time.Duration
	pruneInterval   time.Duration
	lastPrune       time.Time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("empty db path")
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:    db,
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: %s %w", pragma, err)
		}
	}
	return s.migrate(ctx)
}

// migrate applies pending migrations in one transaction, tracking progress
// in PRAGMA user_version.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("sqlite: read user_version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("sqlite: schema version %d is newer than supported %d", version, len(migrations))
	}
	if version == len(migrations) {
		return nil
	}
	for i, stmt := range migrations[version:] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate to v%d: %w", version+i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", len(migrations))); err != nil {
		return fmt.Errorf("sqlite: write user_version: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Append(ctx context.Context, v Value) error {
	v, err := normalizeValue(v, s.now)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO history (item_key, host, clock, value, instance)
VALUES (?, ?, ?, ?, ?);
`, v.ItemKey, v.Host, v.Clock.UnixNano(), v.Value, v.Instance)
	if err != nil {
		if isSQLiteBusyError(err) {
			return fmt.Errorf("sqlite: append %s: database busy: %w", v.ItemKey, err)
		}
		return err
	}
	return s.maybePrune(ctx, v.Clock)
}

func (s *SQLiteStore) Latest(ctx context.Context, itemKey, host string, limit int) ([]Value, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT item_key, host, clock, value, instance
FROM history
WHERE item_key = ? AND host = ?
ORDER BY clock DESC, id DESC
LIMIT ?;
`, itemKey, host, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Value
	for rows.Next() {
		var (
			v     Value
			clock int64
		)
		if err := rows.Scan(&v.ItemKey, &v.Host, &clock, &v.Value, &v.Instance); err != nil {
			return nil, err
		}
		v.Clock = time.Unix(0, clock).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) maybePrune(ctx context.Context, now time.Time) error {
	if s.retentionMaxAge <= 0 {
		return nil
	}
	s.mu.Lock()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < s.pruneInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastPrune = now
	s.mu.Unlock()

	cutoff := now.Add(-s.retentionMaxAge).UnixNano()
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE clock < ?;`, cutoff)
	return err
}

func (s *SQLiteStore) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowFn().UTC()
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended sqlite result codes include base code in the lower 8 bits.
	const sqliteBusyBase = 5
	return sqliteErr.Code()&0xff == sqliteBusyBase
}
