package tagstore

import "sync"

// MemoryStore is an in-memory implementation of the Store interface.
// This is primarily useful for testing and nodes that don't need
// persistence.
type MemoryStore struct {
	mu   sync.RWMutex
	tags map[uint32][]byte
}

// NewMemoryStore creates a new in-memory tag store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tags: make(map[uint32][]byte),
	}
}

// StoreTag writes value under tag, replacing any prior value.
func (s *MemoryStore) StoreTag(tag uint32, value []byte) error {
	if len(value) > MaxValueSize {
		return ErrValueTooBig
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tags[tag] = append([]byte(nil), value...)
	return nil
}

// GetTag returns a copy of the value stored under tag.
func (s *MemoryStore) GetTag(tag uint32) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.tags[tag]
	if !exists {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// DeleteTag removes the value under tag, if any.
func (s *MemoryStore) DeleteTag(tag uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tags, tag)
	return nil
}

// Tags returns all occupied tags.
func (s *MemoryStore) Tags() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := make([]uint32, 0, len(s.tags))
	for tag := range s.tags {
		tags = append(tags, tag)
	}
	return tags
}
