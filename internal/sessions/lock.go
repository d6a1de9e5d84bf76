package sessions

import (
	"context"
	"sync"
)

// Locks hands out one mutex per session id. Entries are reference counted
// and dropped when the last holder or waiter is done, so the map only
// holds sessions with a turn in flight.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{entries: map[string]*lockEntry{}}
}

// Lock blocks until the session's lock is held or ctx is done. The
// returned release function must be called exactly once.
func (l *Locks) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(id, e)
		})
	}, nil
}

func (l *Locks) unref(id string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// Len reports how many sessions currently have a holder or waiter.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
