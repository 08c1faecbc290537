package lifecycle

import (
	"context"
	"sync"
)

// keyedLock serialises work per container id. Acquisition honours ctx.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

// Lock blocks until id is free or ctx is done. The returned release func is
// safe to call more than once.
func (k *keyedLock) Lock(ctx context.Context, id string) (func(), error) {
	entry := k.ref(id)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(id, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			k.unref(id, entry)
		})
	}, nil
}

func (k *keyedLock) ref(id string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.locks[id]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		k.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (k *keyedLock) unref(id string, entry *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, id)
	}
}

// held reports how many ids currently have waiters or holders.
func (k *keyedLock) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
