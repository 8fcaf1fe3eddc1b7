package storage

import (
	"sync"

	"github.com/google/btree"
)

// degree of the underlying B-tree.
const degree = 32

// Entry is one stored key-value pair.
type Entry struct {
	Key   int64  `json:"key"`
	Value string `json:"value"`
}

func entryLess(a, b Entry) bool {
	return a.Key < b.Key
}

// Store defines the interface for replica storage.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key int64) (string, bool)
	// Put overwrites or creates key.
	Put(key int64, value string)
	// Delete removes key. It reports whether the key existed.
	Delete(key int64) bool
	// Len returns the number of keys.
	Len() int
	// Entries returns all entries ordered by key.
	Entries() []Entry
}

// InMemoryStore is a thread-safe, B-tree backed Store.
type InMemoryStore struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Entry]
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tree: btree.NewG[Entry](degree, entryLess),
	}
}

// Get retrieves a value by key.
func (s *InMemoryStore) Get(key int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tree.Get(Entry{Key: key})
	return e.Value, ok
}

// Put stores value under key.
func (s *InMemoryStore) Put(key int64, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.ReplaceOrInsert(Entry{Key: key, Value: value})
}

// Delete removes key if present.
func (s *InMemoryStore) Delete(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.tree.Delete(Entry{Key: key})
	return existed
}

// Len returns the number of stored keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tree.Len()
}

// Entries returns a snapshot of all entries in key order.
func (s *InMemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, s.tree.Len())
	s.tree.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
