package authgate

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := &keyedMutex{}

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("user-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("lost updates under the stripe lock: %d", counter)
	}
}

func TestKeyedMutexUnlockReleases(t *testing.T) {
	locks := &keyedMutex{}

	unlock := locks.lock("user-1")
	unlock()

	done := make(chan struct{})
	go func() {
		u := locks.lock("user-1")
		u()
		close(done)
	}()
	<-done
}
