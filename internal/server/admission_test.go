package server

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAdmissionCapacity(t *testing.T) {
	a := NewAdmission(2)

	if !a.TryAcquire() || !a.TryAcquire() {
		t.Fatal("TryAcquire failed below capacity")
	}
	if a.TryAcquire() {
		t.Fatal("TryAcquire succeeded at capacity")
	}

	a.Release()
	if !a.TryAcquire() {
		t.Error("TryAcquire failed after a Release")
	}
}

func TestAdmissionReleaseNeverNegative(t *testing.T) {
	a := NewAdmission(1)
	a.Release()
	if n := a.Active(); n != 0 {
		t.Errorf("Active() = %d after unmatched Release", n)
	}
}

// TestAdmissionStrictUnderContention verifies the limit holds when many
// connections race for the last slots.
func TestAdmissionStrictUnderContention(t *testing.T) {
	const capacity = 4
	a := NewAdmission(capacity)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.TryAcquire() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != capacity {
		t.Errorf("granted %d slots, want %d", got, capacity)
	}
	if n := a.Active(); n != capacity {
		t.Errorf("Active() = %d, want %d", n, capacity)
	}
}
