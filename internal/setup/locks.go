package setup

import "sync"

// lockTable hands out one mutex per key so that provisioning operations on
// the same record are serialized while different users proceed in parallel.
// Entries are never removed; the table grows with the number of distinct
// users seen by the process, which is bounded and small.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}
