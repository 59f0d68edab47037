package audio

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BlobPrefix marks handles minted by a BlobStore.
const BlobPrefix = "blob:"

// BlobStore keeps clips addressable by opaque handles until they are revoked.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*Clip
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]*Clip)}
}

// Create registers clip and returns its handle.
func (s *BlobStore) Create(clip *Clip) string {
	handle := BlobPrefix + uuid.NewString()
	s.mu.Lock()
	s.blobs[handle] = clip
	s.mu.Unlock()
	return handle
}

// Open returns the clip behind handle.
func (s *BlobStore) Open(handle string) (*Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clip, ok := s.blobs[handle]
	return clip, ok
}

// Revoke drops handle. It reports whether the handle was live.
func (s *BlobStore) Revoke(handle string) bool {
	s.mu.Lock()
	_, ok := s.blobs[handle]
	delete(s.blobs, handle)
	s.mu.Unlock()
	if ok {
		log.Debug().Str("handle", handle).Msg("Revoked audio blob")
	}
	return ok
}

// Len returns the number of live handles.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsBlobHandle reports whether handle looks like one minted by a BlobStore.
func IsBlobHandle(handle string) bool {
	return strings.HasPrefix(handle, BlobPrefix)
}
