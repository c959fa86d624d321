// Package lock provides the single-flight guards that keep periodic jobs from
// overlapping with themselves, within one process or across several.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock held by another run")

// ErrLeaseLost is reported when a held lease expired before it was renewed.
var ErrLeaseLost = errors.New("lock lease lost")

// Locker hands out named, non-blocking locks.
type Locker interface {
	TryLock(ctx context.Context, name string) (unlock func(), err error)
}

// Memory guards runs inside a single process.
type Memory struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]bool)}
}

func (m *Memory) TryLock(_ context.Context, name string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] {
		return nil, ErrNotAcquired
	}
	m.held[name] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, name)
			m.mu.Unlock()
		})
	}, nil
}
