// Package history stores check results by item key and host.
package history

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrEmptyItemKey = errors.New("empty item key")

// Value is one check result.
type Value struct {
	ItemKey  string
	Host     string
	Clock    time.Time
	Value    string
	Instance string
}

// Store appends values and returns the newest ones for an item on a host.
type Store interface {
	Append(ctx context.Context, v Value) error
	// Latest returns up to limit values, newest first. limit <= 0 means 100.
	Latest(ctx context.Context, itemKey, host string, limit int) ([]Value, error)
	Close() error
}

const defaultLatestLimit = 100

// Backend names as accepted by the HistoryBackend parameter.
const (
	BackendMemory     = "memory"
	BackendSQLite     = "sqlite"
	BackendPostgreSQL = "postgresql"
)

// Options select and configure a backend.
type Options struct {
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	DBHost     string
	DBPort     int
	DBName     string
	DBSchema   string
	DBUser     string
	DBPassword string
}

// Open creates the store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		path := strings.TrimSpace(opts.SQLitePath)
		if path == "" {
			path = "monitord.db"
		}
		return NewSQLiteStore(path)
	case BackendPostgreSQL:
		return NewPostgresStore(PostgresDSN(opts))
	default:
		return nil, fmt.Errorf("unsupported history backend %q", opts.Backend)
	}
}

// PostgresDSN builds a connection URL from the DB* parameters.
func PostgresDSN(opts Options) string {
	u := url.URL{Scheme: "postgres", Path: "/" + opts.DBName}
	host := strings.TrimSpace(opts.DBHost)
	if host == "" {
		host = "localhost"
	}
	if opts.DBPort > 0 {
		host += ":" + strconv.Itoa(opts.DBPort)
	}
	u.Host = host
	switch {
	case opts.DBUser != "" && opts.DBPassword != "":
		u.User = url.UserPassword(opts.DBUser, opts.DBPassword)
	case opts.DBUser != "":
		u.User = url.User(opts.DBUser)
	}
	if opts.DBSchema != "" {
		q := url.Values{}
		q.Set("search_path", opts.DBSchema)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func normalizeValue(v Value, now func() time.Time) (Value, error) {
	v.ItemKey = strings.TrimSpace(v.ItemKey)
	if v.ItemKey == "" {
		return Value{}, ErrEmptyItemKey
	}
	if v.Clock.IsZero() {
		v.Clock = now()
	}
	v.Clock = v.Clock.UTC()
	return v, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLatestLimit
	}
	return limit
}

func sortNewestFirst(vals []Value) {
	sort.SliceStable(vals, func(i, j int) bool {
		return vals[i].Clock.After(vals[j].Clock)
	})
}
