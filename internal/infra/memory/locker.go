package memory

import (
	"context"
	"sync"
	"time"
)

// Locker is a process-local sweep lease for single-instance deployments.
type Locker struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]time.Time
}

func NewLocker() *Locker {
	return &Locker{now: time.Now, leases: make(map[string]time.Time)}
}

// TryLock grants key until ttl passes or release is called.
func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, held := l.leases[key]; held && until.After(now) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.leases[key] = until
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[key].Equal(until) {
			delete(l.leases, key)
		}
	}
	return release, true, nil
}
