// Package memory provides an in-memory implementation of the replygate.Store interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// Storage implements replygate.Store using an in-memory map
type Storage struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		docs: make(map[string][]byte),
	}
}

// Get implements replygate.Store
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, replygate.ErrNotFound
	}

	// Return a copy to prevent external mutations
	return append([]byte(nil), doc...), nil
}

// Set implements replygate.Store
func (s *Storage) Set(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("invalid key")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = append([]byte(nil), doc...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, key)
	return nil
}

// Ping always succeeds
func (s *Storage) Ping(_ context.Context) error {
	return nil
}

// Len returns the number of stored documents
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string][]byte)
}
