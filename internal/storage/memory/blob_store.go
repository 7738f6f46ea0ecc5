// Package memory provides in-process adapters for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/equipment-crawler/internal/storage"
)

// Object is an uploaded blob.
type Object struct {
	Data        []byte
	ContentType string
}

// BlobStore stores uploads in memory and returns memory:// URLs.
type BlobStore struct {
	mu      sync.RWMutex
	namer   storage.ObjectNamer
	objects map[string]Object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore(namer storage.ObjectNamer) *BlobStore {
	return &BlobStore{
		namer:   namer,
		objects: make(map[string]Object),
	}
}

// Upload stores a copy of data under a fresh name.
func (s *BlobStore) Upload(_ context.Context, data []byte, filenameHint, contentType string) (string, error) {
	name, err := s.namer.Name(filenameHint)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return fmt.Sprintf("memory://%s", name), nil
}

// Object returns a stored blob by name.
func (s *BlobStore) Object(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
