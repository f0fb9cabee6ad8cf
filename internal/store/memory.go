package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store with the same optimistic concurrency
// semantics as the SQL store. It backs tests and single-node dev mode.
//
// Versions are tracked per key and survive deletion, so a key that is deleted
// and recreated between a transaction's read and its commit still conflicts.
type MemoryStore struct {
	mu          sync.Mutex
	data        map[string][]byte
	versions    map[string]uint64
	maxAttempts int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:        make(map[string][]byte),
		versions:    make(map[string]uint64),
		maxAttempts: DefaultMaxAttempts,
	}
}

// WithMaxAttempts overrides the conflict retry budget. Zero restores the default.
func (s *MemoryStore) WithMaxAttempts(n int) *MemoryStore {
	if n <= 0 {
		n = DefaultMaxAttempts
	}
	s.maxAttempts = n
	return s
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Txn) error) error {
	return runWithRetry(ctx, s.maxAttempts, func() error {
		tx := &memTxn{
			store:  s,
			reads:  make(map[string]uint64),
			writes: make(map[string]pendingWrite),
		}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

func (s *MemoryStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	data, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}

type pendingWrite struct {
	data   []byte
	delete bool
}

type memTxn struct {
	store  *MemoryStore
	reads  map[string]uint64 // key -> version observed (0 = never written)
	writes map[string]pendingWrite
}

func (t *memTxn) read(key string) ([]byte, bool) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = t.store.versions[key]
	}
	data, ok := t.store.data[key]
	return data, ok
}

func (t *memTxn) Get(key string, dst interface{}) (bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.delete {
			return false, nil
		}
		if err := json.Unmarshal(w.data, dst); err != nil {
			return false, fmt.Errorf("store: decode %s: %w", key, err)
		}
		return true, nil
	}
	data, ok := t.read(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (t *memTxn) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	t.writes[key] = pendingWrite{data: data}
	return nil
}

func (t *memTxn) Update(key string, fields map[string]interface{}) error {
	var current map[string]interface{}
	ok, err := t.Get(key, &current)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAbsent, key)
	}
	for k, v := range fields {
		current[k] = v
	}
	return t.Set(key, current)
}

func (t *memTxn) Delete(key string) {
	// record the current version so a concurrent recreate conflicts
	t.read(key)
	t.writes[key] = pendingWrite{delete: true}
}

func (t *memTxn) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for key, seen := range t.reads {
		if t.store.versions[key] != seen {
			return ErrConflict
		}
	}
	for key, w := range t.writes {
		t.store.versions[key]++
		if w.delete {
			delete(t.store.data, key)
		} else {
			t.store.data[key] = w.data
		}
	}
	return nil
}
