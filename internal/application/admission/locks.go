package admission

import "sync"

// keyedMutex hands out one mutex per workshop id. Every operation that
// mutates per-workshop state (seat count, waitlist head, enrollment status)
// runs under this lock, so concurrent admission decisions for the same
// workshop are linearized. No caller holds more than one workshop lock at a
// time across nested calls.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
