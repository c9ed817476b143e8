package locking

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	locks := NewKeyedRWMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("team:1")
			counter++
			locks.Unlock("team:1")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	locks := NewKeyedRWMutex()

	locks.Lock("team:1")
	defer locks.Unlock("team:1")

	done := make(chan struct{})
	go func() {
		locks.Lock("team:2")
		locks.Unlock("team:2")
		close(done)
	}()

	<-done
}

func TestReadersShareKey(t *testing.T) {
	locks := NewKeyedRWMutex()

	locks.RLock("course:1")
	defer locks.RUnlock("course:1")

	done := make(chan struct{})
	go func() {
		locks.RLock("course:1")
		locks.RUnlock("course:1")
		close(done)
	}()

	<-done
}
