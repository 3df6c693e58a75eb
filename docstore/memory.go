// ABOUTME: In-memory Store implementation for tests and dev mode.
// ABOUTME: Same semantics as the SQLite store, including update timestamps for the retention sweep.
package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/allen-cell-animated/packing-workbench/recipe"
)

type memoryEntry struct {
	data      map[string]any
	updatedAt time.Time
}

// MemoryStore is a map-backed Store. Documents are deep-cloned on the way in
// and out so callers never share structure with the store.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]memoryEntry

	// Now is the clock used for update timestamps. Overridable in tests;
	// defaults to time.Now.
	Now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]memoryEntry),
		Now:         time.Now,
	}
}

func (s *MemoryStore) QueryByID(_ context.Context, collection, id string) (Doc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.collections[collection][id]
	if !ok {
		return Doc{}, false, nil
	}
	return Doc{ID: id, Data: recipe.CloneDocument(entry.data)}, true, nil
}

func (s *MemoryStore) QueryByIDs(_ context.Context, collection string, ids []string) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []Doc
	for _, id := range ids {
		if entry, ok := s.collections[collection][id]; ok {
			docs = append(docs, Doc{ID: id, Data: recipe.CloneDocument(entry.data)})
		}
	}
	return docs, nil
}

func (s *MemoryStore) QueryAll(_ context.Context, collection string) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []Doc
	for id, entry := range s.collections[collection] {
		docs = append(docs, Doc{ID: id, Data: recipe.CloneDocument(entry.data)})
	}
	return docs, nil
}

func (s *MemoryStore) QueryUpdatedBefore(_ context.Context, collection string, cutoff time.Time) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []Doc
	for id, entry := range s.collections[collection] {
		if entry.updatedAt.Before(cutoff) {
			docs = append(docs, Doc{ID: id, Data: recipe.CloneDocument(entry.data)})
		}
	}
	return docs, nil
}

func (s *MemoryStore) Put(_ context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]memoryEntry)
		s.collections[collection] = coll
	}
	coll[id] = memoryEntry{data: recipe.CloneDocument(data), updatedAt: s.Now()}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}
