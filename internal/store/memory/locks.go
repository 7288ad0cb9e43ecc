package memory

import (
	"sync"

	"chairside/backend/internal/store"
)

// keyedMutex hands out one mutex per lock key and forgets keys nobody
// holds or waits for.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[store.LockKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[store.LockKey]*keyLock)}
}

func (k *keyedMutex) lock(key store.LockKey) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

func (k *keyedMutex) unlock(key store.LockKey) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
