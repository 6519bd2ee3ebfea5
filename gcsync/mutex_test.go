package gcsync_test

import (
	"sync"
	"testing"
	"time"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/gcsync"
	"github.com/embedrt/gcbind/simrt"
)

func newRuntime(t *testing.T) *simrt.Runtime {
	t.Helper()
	rt := simrt.New()
	if err := rt.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := rt.AdoptThread(); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	t.Cleanup(func() {
		rt.ReleaseThread()
		rt.AtExitHook(0)
	})
	return rt
}

// A mutator blocked on a contended lock must not stall a collection cycle:
// the blocking path parks the thread at a safepoint first. Without that,
// this test deadlocks between the lock holder's Collect and the waiter.
func TestMutex_ContendedLockAllowsCollection(t *testing.T) {
	rt := newRuntime(t)
	mu := gcsync.NewMutex(rt)

	mu.Lock()

	waiting := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rt.AdoptThread(); err != nil {
			t.Error(err)
			return
		}
		defer rt.ReleaseThread()
		close(waiting)
		mu.Lock()
		mu.Unlock()
	}()

	<-waiting
	time.Sleep(10 * time.Millisecond)

	// The second mutator is either not yet blocked (still unsafe) or parked
	// GC-safe inside Lock; in both cases the cycle must complete.
	if err := rt.Collect(gcbind.GCFull); err != nil {
		t.Fatal(err)
	}

	mu.Unlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestMutex_TryLock(t *testing.T) {
	rt := newRuntime(t)
	mu := gcsync.NewMutex(rt)

	if !mu.TryLock() {
		t.Fatal("uncontended TryLock failed")
	}
	if mu.TryLock() {
		t.Fatal("TryLock succeeded on a held mutex")
	}
	mu.Unlock()
	if !mu.TryLock() {
		t.Fatal("TryLock failed after unlock")
	}
	mu.Unlock()
}

func TestRWMutex_ReadersShareWritersExclude(t *testing.T) {
	rt := newRuntime(t)
	mu := gcsync.NewRWMutex(rt)

	mu.RLock()
	if !mu.TryRLock() {
		t.Fatal("second reader should be admitted")
	}
	if mu.TryLock() {
		t.Fatal("writer admitted while readers hold the lock")
	}
	mu.RUnlock()
	mu.RUnlock()

	mu.Lock()
	if mu.TryRLock() {
		t.Fatal("reader admitted while a writer holds the lock")
	}
	mu.Unlock()
}

func TestOnce_RunsExactlyOnce(t *testing.T) {
	rt := newRuntime(t)
	once := gcsync.NewOnce(rt)

	var calls int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.AdoptThread(); err != nil {
				t.Error(err)
				return
			}
			defer rt.ReleaseThread()
			once.Do(func() {
				mu.Lock()
				calls++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("initializer ran %d times", calls)
	}
	if !once.Done() {
		t.Fatal("Done should report completion")
	}
}
