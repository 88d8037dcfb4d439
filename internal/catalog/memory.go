package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/soundjacket/metapub/internal/models"
)

// MemoryStore keeps catalog entries in process. Used for dry runs and tests.
type MemoryStore struct {
	entries map[string]models.CatalogEntry
	saves   int
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]models.CatalogEntry),
	}
}

func (s *MemoryStore) Save(ctx context.Context, entry models.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(entry.MetaHash, entry.Index)] = entry
	s.saves++
	return nil
}

func (s *MemoryStore) Get(metaHash string, index int) (models.CatalogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.entries[entryKey(metaHash, index)]
	return entry, exists
}

// All returns the stored entries ordered by root then index
func (s *MemoryStore) All() []models.CatalogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.CatalogEntry, 0, len(s.entries))
	for _, v := range s.entries {
		result = append(result, v)
	}
	sortEntries(result)
	return result
}

// Saves counts Save calls, including overwrites
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStore) Find(ctx context.Context, metaHash string) ([]models.CatalogEntry, error) {
	var result []models.CatalogEntry
	for _, e := range s.All() {
		if e.MetaHash == metaHash {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) Flush(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func sortEntries(entries []models.CatalogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MetaHash != entries[j].MetaHash {
			return entries[i].MetaHash < entries[j].MetaHash
		}
		return entries[i].Index < entries[j].Index
	})
}
