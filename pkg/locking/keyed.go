package locking

import "sync"

// KeyedRWMutex hands out one RWMutex per key so operations on
// different teams or courses never contend. Locks are never reclaimed;
// the key space (teams and courses of live courses) is small.
type KeyedRWMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func NewKeyedRWMutex() *KeyedRWMutex {
	return &KeyedRWMutex{locks: make(map[string]*sync.RWMutex)}
}

func (k *KeyedRWMutex) get(key string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		k.locks[key] = lock
	}
	return lock
}

func (k *KeyedRWMutex) Lock(key string) {
	k.get(key).Lock()
}

func (k *KeyedRWMutex) Unlock(key string) {
	k.get(key).Unlock()
}

func (k *KeyedRWMutex) RLock(key string) {
	k.get(key).RLock()
}

func (k *KeyedRWMutex) RUnlock(key string) {
	k.get(key).RUnlock()
}
