// Package memory is an in-process blob.Store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/TomaszGol/iOS-Messenger/internal/blob"
	"github.com/TomaszGol/iOS-Messenger/internal/errs"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Store keeps objects in a map and serves them under BaseURL.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

var _ blob.Store = (*Store)(nil)

// New returns an empty store. URLs are baseURL + "/" + escaped path.
func New(baseURL string) *Store {
	if baseURL == "" {
		baseURL = "mem://blob"
	}
	return &Store{objects: make(map[string]Object), baseURL: baseURL}
}

func (s *Store) Put(_ context.Context, objectPath string, data []byte, contentType string) error {
	if objectPath == "" {
		return fmt.Errorf("blob path: %w", errs.ErrInvalidArgument)
	}
	s.mu.Lock()
	s.objects[objectPath] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *Store) DownloadURL(_ context.Context, objectPath string) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[objectPath]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("blob %s: %w", objectPath, errs.ErrNotFound)
	}
	return s.baseURL + "/" + url.PathEscape(objectPath), nil
}

// Object returns a stored object, for assertions.
func (s *Store) Object(objectPath string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[objectPath]
	return o, ok
}
