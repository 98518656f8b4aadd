package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pawtrace-qr/internal/ports/objstore"
)

var ErrAlreadyExists = errors.New("object already exists")

// store guarda objetos en memoria; sirve para dev y tests (el bucket real
// del hosting queda afuera de este core).
type store struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewStore(baseURL string) objstore.Store {
	return &store{
		objects: make(map[string][]byte),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *store) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("object path required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[path]; exists && !upsert {
		return "", ErrAlreadyExists
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = cp

	return s.baseURL + "/" + path, nil
}

// Get existe para tests/dev; no es parte del port.
func (s *store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[strings.TrimLeft(path, "/")]
	return b, ok
}
