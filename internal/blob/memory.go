package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process memory. Used in tests and when no
// blob directory is writable.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

func (s *MemoryStore) Put(ctx context.Context, prefix string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := newRef(prefix, contentType)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	return ref, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

// Len reports how many blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
