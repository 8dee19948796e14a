// Package daemon assembles the running process for one dialect from a
// loaded configuration: the history store, the worker pool, the schedule of
// internal items and, for agents, the user-parameter registry.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nuetzliches/monitord/internal/agent"
	"github.com/nuetzliches/monitord/internal/config"
	"github.com/nuetzliches/monitord/internal/history"
	"github.com/nuetzliches/monitord/internal/poller"
)

// StatsItemKey is the internal item reporting the daemon's own process counts.
const StatsItemKey = "monitord[stats]"

// agent2 has no StartAgents parameter.
const defaultAgent2Workers = 3

// Options carries what New cannot take from the configuration.
type Options struct {
	Logger *slog.Logger
	// Store overrides the HistoryBackend parameter.
	Store history.Store
	// Instance defaults to a random UUID.
	Instance string
	// SQLitePath is used when HistoryBackend=sqlite.
	SQLitePath string
}

// Runtime is one daemon process. Create it with New, then Run.
type Runtime struct {
	dialect   config.Dialect
	host      string
	instance  string
	logger    *slog.Logger
	store     history.Store
	ownStore  bool
	pool      *poller.Pool
	scheduler *poller.Scheduler
	registry  *agent.Registry
	executor  *agent.Executor
	startedAt time.Time

	mu      sync.RWMutex
	running *config.Config
}

// StatsValue is the JSON value of StatsItemKey.
type StatsValue struct {
	Data     StatsData `json:"data"`
	Instance string    `json:"instance"`
}

type StatsData struct {
	Process map[string]ProcessCount `json:"process"`
}

type ProcessCount struct {
	Count int `json:"count"`
}

func New(cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("daemon: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	instance := opts.Instance
	if instance == "" {
		instance = uuid.NewString()
	}

	r := &Runtime{
		dialect:   cfg.Dialect,
		host:      hostName(cfg),
		instance:  instance,
		logger:    logger,
		store:     opts.Store,
		running:   cfg,
		startedAt: time.Now(),
	}

	if r.dialect.IsAgent() {
		reg, err := agent.NewRegistry(cfg.UserParameters, cfg.Int("UnsafeUserParameters") == 1)
		if err != nil {
			return nil, err
		}
		r.registry = reg
		r.executor = &agent.Executor{
			Registry: reg,
			Timeout:  time.Duration(cfg.Int("Timeout")) * time.Second,
			Dir:      cfg.String("UserParameterDir"),
		}
	}

	if r.store == nil {
		store, err := history.Open(history.Options{
			Backend:    cfg.String("HistoryBackend"),
			SQLitePath: opts.SQLitePath,
			DBHost:     cfg.String("DBHost"),
			DBPort:     cfg.Int("DBPort"),
			DBName:     cfg.String("DBName"),
			DBSchema:   cfg.String("DBSchema"),
			DBUser:     cfg.String("DBUser"),
			DBPassword: cfg.String("DBPassword"),
		})
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		r.store = store
		r.ownStore = true
	}

	r.pool = &poller.Pool{
		Workers:  workerCount(cfg),
		Executor: poller.ExecutorFunc(r.execute),
		Store:    r.store,
		Logger:   logger,
		Instance: instance,
		Timeout:  time.Duration(cfg.Int("Timeout")) * time.Second,
	}
	interval := time.Duration(cfg.Int("StatsInterval")) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	r.scheduler = &poller.Scheduler{
		Pool:   r.pool,
		Items:  []poller.Item{{Key: StatsItemKey, Host: r.host, Interval: interval}},
		Logger: logger,
	}
	return r, nil
}

// workerCount is StartPollers for server and proxy, StartAgents for agent.
func workerCount(cfg *config.Config) int {
	switch cfg.Dialect {
	case config.DialectServer, config.DialectProxy:
		return cfg.Int("StartPollers")
	case config.DialectAgent:
		return cfg.Int("StartAgents")
	default:
		return defaultAgent2Workers
	}
}

func workerKind(d config.Dialect) string {
	if d.IsAgent() {
		return "agent"
	}
	return "poller"
}

func hostName(cfg *config.Config) string {
	if v, ok := cfg.Get("Hostname"); ok && v != "" {
		return v
	}
	if cfg.Dialect == config.DialectServer {
		return "server"
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return cfg.Dialect.String()
}

// Run starts the pool and the schedule and blocks until ctx is done. With no
// workers configured it only waits.
func (r *Runtime) Run(ctx context.Context) error {
	if r.pool.Workers == 0 {
		r.logger.Warn("no_workers_configured", slog.String("dialect", r.dialect.String()))
		<-ctx.Done()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pool.Run(gctx) })
	g.Go(func() error {
		err := r.scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// Close releases the history store when the runtime opened it.
func (r *Runtime) Close() error {
	if r.ownStore && r.store != nil {
		return r.store.Close()
	}
	return nil
}

func (r *Runtime) execute(ctx context.Context, c poller.Check) (string, error) {
	if c.ItemKey == StatsItemKey {
		out, err := json.Marshal(r.statsValue())
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if r.executor != nil {
		return r.executor.Run(ctx, c.ItemKey)
	}
	return "", fmt.Errorf("%w: %s", agent.ErrUnsupportedItem, c.ItemKey)
}

func (r *Runtime) statsValue() StatsValue {
	return StatsValue{
		Data: StatsData{Process: map[string]ProcessCount{
			workerKind(r.dialect): {Count: r.pool.Workers},
		}},
		Instance: r.instance,
	}
}

// TestItem runs one agent item key outside the pool.
func (r *Runtime) TestItem(ctx context.Context, itemKey string) (string, error) {
	return r.execute(ctx, poller.Check{ItemKey: itemKey, Host: r.host})
}

// Status is the snapshot served by the status endpoint.
type Status struct {
	Dialect        string       `json:"dialect"`
	Host           string       `json:"host"`
	Instance       string       `json:"instance"`
	Uptime         string       `json:"uptime"`
	Workers        poller.Stats `json:"workers"`
	Running        bool         `json:"running"`
	UserParameters int          `json:"user_parameters,omitempty"`
	Files          []string     `json:"files"`
}

func (r *Runtime) Status() Status {
	r.mu.RLock()
	files := append([]string(nil), r.running.Files...)
	r.mu.RUnlock()

	st := Status{
		Dialect:  r.dialect.String(),
		Host:     r.host,
		Instance: r.instance,
		Uptime:   time.Since(r.startedAt).Truncate(time.Second).String(),
		Workers:  r.pool.Stats(),
		Running:  r.pool.Running(),
		Files:    files,
	}
	if r.registry != nil {
		st.UserParameters = r.registry.Len()
	}
	return st
}

// Healthy reports whether the daemon is serving: its pool runs, or it has
// no workers to run.
func (r *Runtime) Healthy() bool {
	return r.pool.Workers == 0 || r.pool.Running()
}

// History returns stored values for item on host ("" means this daemon's host).
func (r *Runtime) History(ctx context.Context, item, host string, limit int) ([]history.Value, error) {
	if host == "" {
		host = r.host
	}
	return r.store.Latest(ctx, item, host, limit)
}

func (r *Runtime) Host() string     { return r.host }
func (r *Runtime) Instance() string { return r.instance }

// Config returns the configuration currently applied.
func (r *Runtime) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Reload applies a freshly loaded configuration. User parameters are
// replaced in place; every other changed parameter is returned as needing
// a restart to take effect.
func (r *Runtime) Reload(cfg *config.Config) (restart []string, err error) {
	if cfg.Dialect != r.dialect {
		return nil, fmt.Errorf("daemon: reload with dialect %s, running %s", cfg.Dialect, r.dialect)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := config.ChangedKeys(r.running, cfg)
	hot := []string{"UserParameter", "UnsafeUserParameters"}
	for _, k := range changed {
		if k == "Include" {
			continue
		}
		if r.registry == nil || !slices.Contains(hot, k) {
			restart = append(restart, k)
		}
	}

	if r.registry != nil {
		if err := r.registry.Replace(cfg.UserParameters, cfg.Int("UnsafeUserParameters") == 1); err != nil {
			return nil, err
		}
	}
	r.running = cfg
	return restart, nil
}
