package store

import "sync"

// NamedLocks provides scoped exclusive access keyed by a resource name.
// The contract is exclusivity across a full read-decide-write cycle, not
// just the write: callers wrap the whole round trip in With.
type NamedLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// Locks is the process-wide lock table used by the notification engine to
// serialize read-modify-write cycles against the backing store.
var Locks = &NamedLocks{}

func (l *NamedLocks) get(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	if mu, ok := l.m[name]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	l.m[name] = mu
	return mu
}

// With runs fn while holding the exclusive lock for the named resource.
// The lock is released on all exit paths, including panics inside fn.
func (l *NamedLocks) With(name string, fn func() error) error {
	mu := l.get(name)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
