// Package lock provides per-key mutual exclusion for booking commits. Every
// write to a staff member's calendar runs under the lock for that staff key so
// the overlap check and the insert execute as one critical section.
package lock

import (
	"context"
	"sync"
)

// Local serializes by key inside a single process. It is the default locker
// for single-instance deployments and for tests.
type Local struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocal creates an in-process keyed locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*sync.Mutex)}
}

// WithLock runs fn while holding the exclusive lock for key. Lock entries are
// retained for the life of the process; the key space is bounded by the staff
// roster so it does not grow unbounded.
func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func (l *Local) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}
