package history

import (
	"context"
	"sync"
	"time"
)

type MemoryOption func(*MemoryStore)

func WithNowFunc(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithMaxValues caps the values kept per item and host; older ones are
// dropped first. 0 keeps everything.
func WithMaxValues(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.maxValues = n
		}
	}
}

type seriesKey struct {
	item string
	host string
}

type MemoryStore struct {
	mu        sync.Mutex
	nowFn     func() time.Time
	series    map[seriesKey][]Value
	maxValues int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		nowFn:     time.Now,
		series:    map[seriesKey][]Value{},
		maxValues: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Append(_ context.Context, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := normalizeValue(v, s.nowFn)
	if err != nil {
		return err
	}
	k := seriesKey{item: v.ItemKey, host: v.Host}
	vals := append(s.series[k], v)
	if s.maxValues > 0 && len(vals) > s.maxValues {
		vals = append([]Value(nil), vals[len(vals)-s.maxValues:]...)
	}
	s.series[k] = vals
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, itemKey, host string, limit int) ([]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = normalizeLimit(limit)
	vals := s.series[seriesKey{item: itemKey, host: host}]
	out := make([]Value, 0, len(vals))
	// Reversed first so later appends win ties on equal clocks.
	for i := len(vals) - 1; i >= 0; i-- {
		out = append(out, vals[i])
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
