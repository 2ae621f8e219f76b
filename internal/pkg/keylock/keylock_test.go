package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("user:1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, got %d", maxSeen)
	}
	if l.Len() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", l.Len())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	l := New()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLockMultipleKeysNoDeadlock(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Lock("ext:1", "id:1")()
		}()
		go func() {
			defer wg.Done()
			l.Lock("id:1", "ext:1")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock acquiring keys in different order")
	}
}

func TestUnlockIdempotent(t *testing.T) {
	l := New()
	unlock := l.Lock("k", "k")
	unlock()
	unlock()
	if l.Len() != 0 {
		t.Fatalf("expected empty table, got %d", l.Len())
	}
}
