package ridinglookup

import (
	"context"
	"sync"
)

/*
Store persists one opaque state blob per actor name. Coordinators load their blob on
cold start and save the whole blob after every mutation; nothing finer grained is
required of an implementation.

Load returns (nil, nil) when nothing has been saved under name yet.
*/
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, blob []byte) error
	Close() error
}

// MemoryStore is a Store that lives and dies with the process.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (ms *MemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	blob, ok := ms.blobs[name]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}

func (ms *MemoryStore) Save(_ context.Context, name string, blob []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.blobs[name] = append([]byte(nil), blob...)
	ms.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (ms *MemoryStore) Saves() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.saves
}

func (ms *MemoryStore) Close() error {
	return nil
}
