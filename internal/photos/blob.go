// Package photos stores player photos and hands out signed URLs for them.
package photos

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/humanwheel-leaderboard/internal/domain"
)

// Blob is a stored photo
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// BlobStore is the photo bucket. It has no transactional link to the
// player records.
type BlobStore interface {
	Put(ctx context.Context, blob Blob) error
	Get(ctx context.Context, name string) (Blob, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// MemoryBlobStore keeps photos in process memory
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryBlobStore creates an empty bucket
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]Blob)}
}

// Put stores a photo, replacing one with the same name
func (m *MemoryBlobStore) Put(_ context.Context, blob Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[blob.Name] = blob
	return nil
}

// Get returns a photo by name
func (m *MemoryBlobStore) Get(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[name]
	if !ok {
		return Blob{}, domain.ErrPhotoNotFound
	}
	return b, nil
}

// List returns all photo names in sorted order
func (m *MemoryBlobStore) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.blobs))
	for n := range m.blobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a photo; a missing photo is not an error
func (m *MemoryBlobStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}
