package runtime

import (
	"sort"
	"sync"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// lockEntry is one account's lock and the number of transactions holding or
// waiting for it.
type lockEntry struct {
	mu   sync.RWMutex
	refs int
}

// LockTable hands out per-account locks: writable accounts are locked
// exclusively, read-only accounts shared. Locks are always taken in
// ascending pubkey order so two transactions can never deadlock.
type LockTable struct {
	mu      sync.Mutex
	entries map[types.Pubkey]*lockEntry
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{entries: make(map[types.Pubkey]*lockEntry)}
}

// Lock acquires the locks for metas, which must not contain duplicates, and
// returns the function releasing them.
func (t *LockTable) Lock(metas []types.AccountMeta) (unlock func()) {
	sorted := make([]types.AccountMeta, len(metas))
	copy(sorted, metas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pubkey.Less(sorted[j].Pubkey) })

	held := make([]*lockEntry, len(sorted))
	for i, meta := range sorted {
		entry := t.acquire(meta.Pubkey)
		if meta.IsWritable {
			entry.mu.Lock()
		} else {
			entry.mu.RLock()
		}
		held[i] = entry
	}

	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].IsWritable {
				held[i].mu.Unlock()
			} else {
				held[i].mu.RUnlock()
			}
			t.release(sorted[i].Pubkey)
		}
	}
}

func (t *LockTable) acquire(pubkey types.Pubkey) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[pubkey]
	if !ok {
		entry = &lockEntry{}
		t.entries[pubkey] = entry
	}
	entry.refs++
	return entry
}

func (t *LockTable) release(pubkey types.Pubkey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.entries[pubkey]
	entry.refs--
	if entry.refs == 0 {
		delete(t.entries, pubkey)
	}
}

// Len returns the number of accounts currently locked or awaited.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
