package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Item is a check repeated every Interval.
type Item struct {
	Key      string
	Host     string
	Interval time.Duration
}

// Scheduler feeds due checks to a pool.
type Scheduler struct {
	Pool   *Pool
	Items  []Item
	Logger *slog.Logger
	// Now is used for the Due time of checks; defaults to time.Now.
	Now func() time.Time
}

// Run submits every item once immediately and then once per interval,
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Pool == nil {
		return errors.New("poller: scheduler without pool")
	}
	s.Pool.Init()
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	done := make(chan struct{}, len(s.Items))
	for _, it := range s.Items {
		if it.Interval <= 0 {
			logger.Warn("item_not_scheduled", slog.String("item", it.Key), slog.String("reason", "non-positive interval"))
			done <- struct{}{}
			continue
		}
		go func() {
			defer func() { done <- struct{}{} }()
			s.loop(ctx, logger, it, now)
		}()
	}
	for range s.Items {
		<-done
	}
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, logger *slog.Logger, it Item, now func() time.Time) {
	ticker := time.NewTicker(it.Interval)
	defer ticker.Stop()
	for {
		if err := s.Pool.Submit(ctx, Check{ItemKey: it.Key, Host: it.Host, Due: now()}); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("check_not_queued", slog.String("item", it.Key), slog.Any("err", err))
			if errors.Is(err, ErrNoWorkers) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
