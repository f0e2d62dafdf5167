package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const USER_KEY_PREFIX = "user:"

type BadgerStoreConfig struct {
	// Path is the database directory; ignored when InMemory is set
	Path       string `mapstructure:"path"`
	InMemory   bool   `mapstructure:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// BadgerStore keeps hashes in a badger database under "user:<name>" keys.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(ctx context.Context, cfg BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger accounts store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).WithSyncWrites(cfg.SyncWrites)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts database at %q: %w", cfg.Path, err)
	}
	return &BadgerStore{db: db}, nil
}

func userKey(user string) []byte {
	return []byte(USER_KEY_PREFIX + user)
}

func (s *BadgerStore) Lookup(user string) ([]byte, bool, error) {
	var hash []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(user))
		if err != nil {
			return err
		}
		hash, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %q: %w", user, err)
	}
	return hash, true, nil
}

func (s *BadgerStore) Insert(user string, hash []byte) (bool, error) {
	var inserted bool
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(user))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		inserted = true
		return txn.Set(userKey(user), hash)
	})
	if err != nil {
		return false, fmt.Errorf("insert %q: %w", user, err)
	}
	return inserted, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
