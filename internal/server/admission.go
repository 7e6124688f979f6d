package server

import "sync"

// Admission gates new connections against the capacity limit. A slot is taken
// before the handshake starts and held until the Session tears down, so
// connections still sending their name count against the limit too. Checking
// and reserving happen under one lock, which makes the limit strict.
type Admission struct {
	mu       sync.Mutex
	capacity int
	active   int
}

// NewAdmission returns an Admission allowing at most capacity concurrent slots.
func NewAdmission(capacity int) *Admission {
	return &Admission{capacity: capacity}
}

// TryAcquire reserves a slot and reports whether one was free.
func (a *Admission) TryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active >= a.capacity {
		return false
	}
	a.active++
	return true
}

// Release frees a slot taken by TryAcquire.
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active > 0 {
		a.active--
	}
}

// Active returns the number of slots in use.
func (a *Admission) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
