package syncer

import (
	"context"
	"sync"
	"time"
)

const lastRunTTL = 30 * 24 * time.Hour

// StateStore keeps the summary of the most recent run.
type StateStore interface {
	SaveLast(ctx context.Context, summary Summary) error
	Last(ctx context.Context) (Summary, bool, error)
}

type jsonStore interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	LastRunKey() string
}

// RedisState stores the last summary as JSON in Redis.
type RedisState struct {
	store jsonStore
}

func NewRedisState(store jsonStore) *RedisState {
	return &RedisState{store: store}
}

func (r *RedisState) SaveLast(ctx context.Context, summary Summary) error {
	return r.store.SetJSON(ctx, r.store.LastRunKey(), summary, lastRunTTL)
}

func (r *RedisState) Last(ctx context.Context) (Summary, bool, error) {
	var summary Summary
	found, err := r.store.GetJSON(ctx, r.store.LastRunKey(), &summary)
	if err != nil || !found {
		return Summary{}, false, err
	}
	return summary, true, nil
}

// MemoryState keeps the last summary in process.
type MemoryState struct {
	mu      sync.Mutex
	last    Summary
	present bool
}

func (m *MemoryState) SaveLast(_ context.Context, summary Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last, m.present = summary, true
	return nil
}

func (m *MemoryState) Last(context.Context) (Summary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.present, nil
}
