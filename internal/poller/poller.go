// Package poller runs scheduled checks on a fixed pool of workers and
// records their results in a history store.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nuetzliches/monitord/internal/history"
)

var ErrNoWorkers = errors.New("no pollers configured")

var tracer = otel.Tracer("github.com/nuetzliches/monitord/internal/poller")

// Check is one scheduled execution of an item.
type Check struct {
	ItemKey string
	Host    string
	Due     time.Time
}

type Executor interface {
	Execute(ctx context.Context, c Check) (string, error)
}

type ExecutorFunc func(ctx context.Context, c Check) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, c Check) (string, error) { return f(ctx, c) }

// Pool is a fixed set of workers. Configure the fields, then call Run; the
// worker count cannot change while the pool runs.
type Pool struct {
	Workers  int
	Executor Executor
	Store    history.Store
	Logger   *slog.Logger
	// Instance tags every stored value.
	Instance string
	// Timeout bounds one execution; 0 means no limit.
	Timeout time.Duration
	// QueueSize defaults to the worker count.
	QueueSize int

	initOnce sync.Once
	queue    chan Check
	running  atomic.Bool
	busy     atomic.Int64
	done     atomic.Int64
	failed   atomic.Int64
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers  int   `json:"workers"`
	Busy     int64 `json:"busy"`
	Executed int64 `json:"executed"`
	Failed   int64 `json:"failed"`
	Queued   int   `json:"queued"`
}

// Init prepares the queue so checks can be submitted before Run starts
// consuming them. Run calls it when needed.
func (p *Pool) Init() {
	p.initOnce.Do(func() {
		size := p.QueueSize
		if size <= 0 {
			size = max(p.Workers, 1)
		}
		p.queue = make(chan Check, size)
	})
}

// Run starts the workers and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	if p.Workers <= 0 {
		return ErrNoWorkers
	}
	if p.Executor == nil {
		return errors.New("poller: nil executor")
	}
	p.Init()
	logger := p.logger()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.Workers; i++ {
		worker := i + 1
		g.Go(func() error {
			p.work(gctx, logger.With(slog.Int("poller", worker)))
			return nil
		})
	}
	p.running.Store(true)
	logger.Info("pollers_started", slog.Int("count", p.Workers))

	err := g.Wait()
	p.running.Store(false)
	logger.Info("pollers_stopped", slog.Int64("executed", p.done.Load()))
	return err
}

// Submit queues c, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, c Check) error {
	if p.Workers <= 0 {
		return ErrNoWorkers
	}
	p.Init()
	select {
	case p.queue <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	st := Stats{
		Workers:  p.Workers,
		Busy:     p.busy.Load(),
		Executed: p.done.Load(),
		Failed:   p.failed.Load(),
	}
	p.Init()
	st.Queued = len(p.queue)
	return st
}

// Running reports whether the workers are started.
func (p *Pool) Running() bool { return p.running.Load() }

func (p *Pool) work(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.queue:
			p.execute(ctx, logger, c)
		}
	}
}

func (p *Pool) execute(ctx context.Context, logger *slog.Logger, c Check) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	ctx, span := tracer.Start(ctx, "poller.execute", trace.WithAttributes(
		attribute.String("item.key", c.ItemKey),
		attribute.String("item.host", c.Host),
	))
	defer span.End()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	value, err := p.Executor.Execute(ctx, c)
	p.done.Add(1)
	if err != nil {
		p.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute failed")
		logger.Warn("check_failed",
			slog.String("item", c.ItemKey),
			slog.String("host", c.Host),
			slog.Any("err", err),
		)
		return
	}
	if p.Store == nil {
		return
	}
	if err := p.Store.Append(ctx, history.Value{
		ItemKey:  c.ItemKey,
		Host:     c.Host,
		Value:    value,
		Instance: p.Instance,
	}); err != nil {
		span.RecordError(err)
		logger.Warn("history_append_failed",
			slog.String("item", c.ItemKey),
			slog.Any("err", err),
		)
	}
}

func (p *Pool) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
