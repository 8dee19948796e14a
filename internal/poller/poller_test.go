package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nuetzliches/monitord/internal/history"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPool_ExecutesAndStores(t *testing.T) {
	store := history.NewMemoryStore()
	pool := &Pool{
		Workers:  3,
		Store:    store,
		Instance: "inst-1",
		Executor: ExecutorFunc(func(_ context.Context, c Check) (string, error) {
			return "value of " + c.ItemKey, nil
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	for _, key := range []string{"a", "b", "c", "d"} {
		if err := pool.Submit(ctx, Check{ItemKey: key, Host: "h"}); err != nil {
			t.Fatalf("submit %s: %v", key, err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return pool.Stats().Executed == 4 })

	got, err := store.Latest(ctx, "c", "h", 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got) != 1 || got[0].Value != "value of c" || got[0].Instance != "inst-1" {
		t.Fatalf("latest=%+v", got)
	}
	if !pool.Running() {
		t.Fatalf("expected running pool")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop")
	}
	if pool.Running() {
		t.Fatalf("expected stopped pool")
	}
}

func TestPool_RunsWorkersConcurrently(t *testing.T) {
	const workers = 4
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	release := make(chan struct{})
	pool := &Pool{
		Workers: workers,
		Executor: ExecutorFunc(func(ctx context.Context, _ Check) (string, error) {
			mu.Lock()
			current++
			peak = max(peak, current)
			mu.Unlock()
			<-release
			mu.Lock()
			current--
			mu.Unlock()
			return "", nil
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()

	for i := 0; i < workers; i++ {
		if err := pool.Submit(ctx, Check{ItemKey: "k"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return pool.Stats().Busy == workers })
	close(release)
	waitFor(t, 2*time.Second, func() bool { return pool.Stats().Executed == workers })

	mu.Lock()
	defer mu.Unlock()
	if peak != workers {
		t.Fatalf("peak concurrency=%d, want %d", peak, workers)
	}
}

func TestPool_FailedChecksAreNotStored(t *testing.T) {
	store := history.NewMemoryStore()
	pool := &Pool{
		Workers: 1,
		Store:   store,
		Executor: ExecutorFunc(func(context.Context, Check) (string, error) {
			return "", errors.New("boom")
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()

	if err := pool.Submit(ctx, Check{ItemKey: "k"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return pool.Stats().Failed == 1 })
	if got, _ := store.Latest(ctx, "k", "", 1); len(got) != 0 {
		t.Fatalf("expected nothing stored, got %+v", got)
	}
}

func TestPool_Timeout(t *testing.T) {
	var sawDeadline atomic.Bool
	pool := &Pool{
		Workers: 1,
		Timeout: 20 * time.Millisecond,
		Executor: ExecutorFunc(func(ctx context.Context, _ Check) (string, error) {
			<-ctx.Done()
			sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return "", ctx.Err()
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()
	_ = pool.Submit(ctx, Check{ItemKey: "slow"})
	waitFor(t, 2*time.Second, func() bool { return pool.Stats().Failed == 1 })
	if !sawDeadline.Load() {
		t.Fatalf("expected deadline exceeded")
	}
}

func TestPool_NoWorkers(t *testing.T) {
	pool := &Pool{Executor: ExecutorFunc(func(context.Context, Check) (string, error) { return "", nil })}
	if err := pool.Run(context.Background()); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("run err=%v, want ErrNoWorkers", err)
	}
	if err := pool.Submit(context.Background(), Check{ItemKey: "k"}); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("submit err=%v, want ErrNoWorkers", err)
	}
}

func TestScheduler_SubmitsPeriodically(t *testing.T) {
	var count atomic.Int64
	pool := &Pool{
		Workers: 2,
		Executor: ExecutorFunc(func(context.Context, Check) (string, error) {
			count.Add(1)
			return "", nil
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()

	sched := &Scheduler{
		Pool:  pool,
		Items: []Item{{Key: "fast", Interval: 10 * time.Millisecond}, {Key: "never", Interval: 0}},
	}
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return count.Load() >= 3 })
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("scheduler err=%v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
