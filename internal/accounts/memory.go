package accounts

import (
	"sync"

	"github.com/wuyongjia/hashmap"
)

const DEFAULT_MEMORY_CAPACITY = 1024

type MemoryStoreConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// MemoryStore keeps hashes in process memory; nothing survives a restart.
type MemoryStore struct {
	mu    sync.Mutex
	users *hashmap.HM
}

func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	var capacity = cfg.Capacity
	if capacity <= 0 {
		capacity = DEFAULT_MEMORY_CAPACITY
	}
	return &MemoryStore{users: hashmap.New(capacity)}
}

func (s *MemoryStore) Lookup(user string) ([]byte, bool, error) {
	var v = s.users.Get(user)
	if v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (s *MemoryStore) Insert(user string, hash []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users.Exists(user) {
		return false, nil
	}
	var stored = make([]byte, len(hash))
	copy(stored, hash)
	s.users.Put(user, stored)
	return true, nil
}

func (s *MemoryStore) Len() int {
	return s.users.GetCount()
}

func (s *MemoryStore) Close() error {
	return nil
}
