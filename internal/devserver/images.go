package devserver

import (
	"sync"

	"github.com/google/uuid"
)

type image struct {
	contentType string
	data        []byte
}

// imageStore keeps uploaded profile images in memory.
type imageStore struct {
	mu    sync.RWMutex
	items map[string]image
}

func newImageStore() *imageStore {
	return &imageStore{items: make(map[string]image)}
}

func (s *imageStore) put(contentType string, data []byte) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.items[id] = image{contentType: contentType, data: data}
	s.mu.Unlock()
	return id
}

func (s *imageStore) get(id string) (image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.items[id]
	return img, ok
}
