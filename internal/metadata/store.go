package metadata

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/skillbase/ragengine/internal/domain"
)

// Store is an append-only mapping from vector row id to chunk content and
// provenance. It is serialized as a JSON side-car next to the index file and
// must always be written in the same persistence transaction.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]domain.MetadataEntry
}

// NewStore creates an empty metadata store.
func NewStore() *Store {
	return &Store{entries: make(map[int64]domain.MetadataEntry)}
}

// Put records the entry for its row id. Overwriting an existing row id is a
// programming error; rows are immutable once written.
func (s *Store) Put(entry domain.MetadataEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.RowID]; ok {
		return domain.Errorf(domain.KindValidation, "row id %d already has a metadata entry", entry.RowID)
	}
	s.entries[entry.RowID] = entry
	return nil
}

// Get returns the entry for a row id.
func (s *Store) Get(rowID int64) (domain.MetadataEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[rowID]
	if !ok {
		return domain.MetadataEntry{}, domain.Errorf(domain.KindNotFound, "no metadata entry for row id %d", rowID)
	}
	return entry, nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Truncate removes every entry with row id >= rows, mirroring an index
// truncation to the same prefix.
func (s *Store) Truncate(rows int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.entries {
		if id >= rows {
			delete(s.entries, id)
		}
	}
	return nil
}

// Reset discards all entries.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[int64]domain.MetadataEntry)
}

// Save writes the row-id-keyed map as JSON to path.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	keyed := make(map[string]domain.MetadataEntry, len(s.entries))
	for id, entry := range s.entries {
		keyed[strconv.FormatInt(id, 10)] = entry
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(keyed, "", "  ")
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "encode metadata", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.NewError(domain.KindIndexIO, "write metadata file", err)
	}
	return nil
}

// Load replaces the store contents with the map stored at path. A missing or
// corrupt file fails without mutating the store.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "read metadata file", err)
	}
	var keyed map[string]domain.MetadataEntry
	if err := json.Unmarshal(data, &keyed); err != nil {
		return domain.NewError(domain.KindIndexIO, "decode metadata", err)
	}
	entries := make(map[int64]domain.MetadataEntry, len(keyed))
	for key, entry := range keyed {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return domain.Errorf(domain.KindIndexIO, "bad row id key %q in metadata file", key)
		}
		entry.RowID = id
		entries[id] = entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	return nil
}

var _ domain.MetadataStore = (*Store)(nil)
