package accounts

import (
	"sort"
	"sync"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// MemoryDB is an in-memory implementation of AccountsDB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*types.Account
}

// NewMemoryDB creates a new in-memory account database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*types.Account),
	}
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *MemoryDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[pubkey]
	if !exists {
		return nil, nil
	}
	// Return a clone to prevent external modification
	return account.Clone(), nil
}

// SetAccount stores an account.
func (db *MemoryDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts[pubkey] = account.Clone()
	return nil
}

// DeleteAccount removes an account.
func (db *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, pubkey)
	return nil
}

// HasAccount returns true if the account exists.
func (db *MemoryDB) HasAccount(pubkey types.Pubkey) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[pubkey]
	return exists
}

// GetAccountsCount returns the total number of accounts.
func (db *MemoryDB) GetAccountsCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.accounts))
}

// Commit applies the batch under a single write lock.
func (db *MemoryDB) Commit(batch map[types.Pubkey]*types.Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for pubkey, account := range batch {
		if account == nil {
			delete(db.accounts, pubkey)
			continue
		}
		db.accounts[pubkey] = account.Clone()
	}
	return nil
}

// ForEach visits accounts in pubkey order so exports are deterministic.
func (db *MemoryDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	db.mu.RLock()
	keys := make([]types.Pubkey, 0, len(db.accounts))
	for pubkey := range db.accounts {
		keys = append(keys, pubkey)
	}
	snapshot := make(map[types.Pubkey]*types.Account, len(keys))
	for _, pubkey := range keys {
		snapshot[pubkey] = db.accounts[pubkey].Clone()
	}
	db.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for _, pubkey := range keys {
		if err := fn(pubkey, snapshot[pubkey]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[types.Pubkey]*types.Account)
	return nil
}

// Ensure MemoryDB implements AccountsDB.
var _ AccountsDB = (*MemoryDB)(nil)
