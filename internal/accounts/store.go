package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const (
	STORE_MEMORY = "memory"
	STORE_BADGER = "badger"
)

var (
	ErrUnknownStore = errors.New("unknown accounts store type")
	ErrEmptyName    = errors.New("user name is empty")
)

// Store persists password hashes by user name.
type Store interface {
	// Lookup returns the stored hash; ok is false for an unknown user.
	Lookup(user string) (hash []byte, ok bool, err error)
	// Insert stores hash unless user already exists, reporting whether it did.
	Insert(user string, hash []byte) (bool, error)
	Close() error
}

// OpenStore builds the store named by storeType from its option map.
func OpenStore(ctx context.Context, storeType string, options map[string]any) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch storeType {
	case STORE_MEMORY, "":
		var cfg MemoryStoreConfig
		if err := mapstructure.Decode(options, &cfg); err != nil {
			return nil, fmt.Errorf("invalid memory store options: %w", err)
		}
		return NewMemoryStore(cfg), nil
	case STORE_BADGER:
		var cfg BadgerStoreConfig
		if err := mapstructure.Decode(options, &cfg); err != nil {
			return nil, fmt.Errorf("invalid badger store options: %w", err)
		}
		return NewBadgerStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, storeType)
	}
}
