package accounts

import (
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

const (
	// accountKeyPrefix is the prefix for account keys in BadgerDB.
	accountKeyPrefix = "account:"
)

// BadgerDB is a persistent implementation of AccountsDB using BadgerDB.
type BadgerDB struct {
	log   *logrus.Entry
	db    *badger.DB
	count atomic.Uint64
}

// NewBadgerDB creates a new BadgerDB account database at the specified path.
// An empty path opens an in-memory instance.
func NewBadgerDB(path string) (*BadgerDB, error) {
	log := logrus.StandardLogger().WithField("type", "accounts/badger")

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger db")
	}

	bdb := &BadgerDB{
		log: log,
		db:  db,
	}

	count, err := bdb.countAccounts()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to count accounts")
	}
	bdb.count.Store(count)

	log.WithFields(logrus.Fields{
		"path":     path,
		"accounts": count,
	}).Debug("opened account store")

	return bdb, nil
}

// makeAccountKey creates the key for an account.
func makeAccountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, len(accountKeyPrefix)+32)
	copy(key, accountKeyPrefix)
	copy(key[len(accountKeyPrefix):], pubkey[:])
	return key
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *BadgerDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	var account *types.Account

	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeAccountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var deserErr error
			account, deserErr = DeserializeAccount(val)
			return deserErr
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get account %s", pubkey)
	}

	return account, nil
}

// SetAccount stores an account.
func (db *BadgerDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	return db.Commit(map[types.Pubkey]*types.Account{pubkey: account})
}

// DeleteAccount removes an account.
func (db *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	return db.Commit(map[types.Pubkey]*types.Account{pubkey: nil})
}

// Commit writes the whole batch inside one badger transaction.
func (db *BadgerDB) Commit(batch map[types.Pubkey]*types.Account) error {
	var added, removed uint64

	err := db.db.Update(func(txn *badger.Txn) error {
		for pubkey, account := range batch {
			key := makeAccountKey(pubkey)

			_, err := txn.Get(key)
			exists := err == nil
			if err != nil && err != badger.ErrKeyNotFound {
				return err
			}

			if account == nil {
				if !exists {
					continue
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				removed++
				continue
			}

			data, err := SerializeAccount(account)
			if err != nil {
				return errors.Wrapf(err, "account %s", pubkey)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			if !exists {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to commit accounts")
	}

	db.count.Add(added)
	if removed > 0 {
		db.count.Add(^(removed - 1)) // Decrement by removed
	}
	return nil
}

// HasAccount returns true if the account exists.
func (db *BadgerDB) HasAccount(pubkey types.Pubkey) bool {
	var exists bool

	_ = db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(makeAccountKey(pubkey))
		exists = err == nil
		return nil
	})

	return exists
}

// GetAccountsCount returns the total number of accounts.
func (db *BadgerDB) GetAccountsCount() uint64 {
	return db.count.Load()
}

// ForEach iterates accounts in key order, which is pubkey order.
func (db *BadgerDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	return db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(accountKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var pubkey types.Pubkey
			copy(pubkey[:], item.Key()[len(accountKeyPrefix):])

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			account, err := DeserializeAccount(val)
			if err != nil {
				return errors.Wrapf(err, "account %s", pubkey)
			}
			if err := fn(pubkey, account); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (db *BadgerDB) Close() error {
	return db.db.Close()
}

// countAccounts counts all accounts in the database.
func (db *BadgerDB) countAccounts() (uint64, error) {
	var count uint64

	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Only need keys for counting
		opts.Prefix = []byte(accountKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// badgerLogger routes badger's internal logging to logrus, demoting its
// info chatter to debug.
type badgerLogger struct {
	*logrus.Entry
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Entry.Debugf(format, args...)
}

// Ensure BadgerDB implements AccountsDB.
var _ AccountsDB = (*BadgerDB)(nil)
