package assets

import (
	"fmt"
	"strings"
	"sync"
)

// BlobScheme prefixes refs handed out by a BlobStore.
const BlobScheme = "blob:"

// BlobStore keeps uploaded image bytes in memory behind opaque "blob:" refs,
// so a local file can be shown before any service has seen it.
// Safe for concurrent use.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	next  uint64
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Register stores a copy of data and returns its ref. name only decorates
// the ref for logging.
func (s *BlobStore) Register(name string, data []byte) string {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	ref := fmt.Sprintf("%slightsim/%d", BlobScheme, s.next)
	if name != "" {
		ref += "/" + strings.ReplaceAll(name, "/", "_")
	}
	s.blobs[ref] = buf
	return ref
}

// Get returns the bytes behind ref.
func (s *BlobStore) Get(ref string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	return b, ok
}

// Revoke drops ref. Loads already in flight keep their copy.
func (s *BlobStore) Revoke(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
}

// Len reports how many blobs are registered.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
