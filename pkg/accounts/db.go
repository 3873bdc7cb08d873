// Package accounts provides account storage for the x1-rewards host.
package accounts

import (
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// Commit stores every account in the batch atomically: either all of them
	// become visible or none do. A nil account deletes the entry.
	Commit(batch map[types.Pubkey]*types.Account) error

	// ForEach calls fn for every stored account. Iteration stops at the first
	// error returned by fn.
	ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// Close closes the database.
	Close() error
}
