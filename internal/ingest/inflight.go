package ingest

import (
	"context"
	"sync"
)

// inflight tracks versions with a running ingestion. Each key is held by at
// most one attempt; waiters are woken when it is released.
type inflight struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newInflight() *inflight {
	return &inflight{held: make(map[string]chan struct{})}
}

// tryAcquire claims key without waiting.
func (f *inflight) tryAcquire(key string) (func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.held[key]; busy {
		return nil, false
	}
	return f.claimLocked(key), true
}

// acquire waits until key is free or ctx is done.
func (f *inflight) acquire(ctx context.Context, key string) (func(), error) {
	for {
		f.mu.Lock()
		ch, busy := f.held[key]
		if !busy {
			release := f.claimLocked(key)
			f.mu.Unlock()
			return release, nil
		}
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *inflight) claimLocked(key string) func() {
	ch := make(chan struct{})
	f.held[key] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.held, key)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// busy reports whether key is currently held.
func (f *inflight) busy(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.held[key]
	return ok
}
