package keylock

import "sync"

// KeyLock serializes work per key without a process-wide lock. Aggregation and
// forecasting for the same item, and score updates for the same source, take
// the key's mutex; different keys proceed in parallel.
type KeyLock struct {
	mu sync.Mutex
	m  map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *KeyLock { return &KeyLock{m: make(map[string]*entry)} }

// Lock acquires the mutex for key and returns the corresponding unlock func.
// Entries are reference-counted and removed when the last holder releases.
func (l *KeyLock) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
