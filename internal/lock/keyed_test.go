package lock

import (
	"sync"
	"testing"
)

func TestKeyedSerialisesSameKey(t *testing.T) {
	k := NewKeyed()

	const workers = 20
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("repo")
			defer k.Unlock("repo")
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()

	// holding one key must not block another key
	k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()
	<-done
	k.Unlock("a")
}

func TestKeyedUnlockUnknownKey(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on unlock of unknown key")
		}
	}()
	NewKeyed().Unlock("never-locked")
}
