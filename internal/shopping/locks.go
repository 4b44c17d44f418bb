package shopping

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ScopeLocks hands out one exclusive lock per key. Waiting honours context
// cancellation, and keys nobody holds or waits on are forgotten.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

type scopeLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewScopeLocks returns an empty lock table.
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{locks: make(map[string]*scopeLock)}
}

// Acquire blocks until key is free or ctx ends. The returned release func is
// safe to call more than once.
func (l *ScopeLocks) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &scopeLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, sl)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sl.sem.Release(1)
			l.unref(key, sl)
		})
	}, nil
}

// Len reports how many keys are held or waited on.
func (l *ScopeLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *ScopeLocks) unref(key string, sl *scopeLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, key)
	}
}
