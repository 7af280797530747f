package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
)

type DocumentStore struct {
	mu       sync.RWMutex
	docs     map[string]ports.Document
	revision int64
	closed   bool
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]ports.Document)}
}

func (s *DocumentStore) Get(_ context.Context, key string) (ports.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ports.Document{}, cerrors.ErrStoreUnavailable
	}
	doc, ok := s.docs[key]
	if !ok {
		return ports.Document{}, cerrors.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *DocumentStore) List(_ context.Context, prefix string) ([]ports.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cerrors.ErrStoreUnavailable
	}
	result := make([]ports.Document, 0)
	for key, doc := range s.docs {
		if strings.HasPrefix(key, prefix) {
			result = append(result, copyDoc(doc))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *DocumentStore) Create(_ context.Context, key string, value []byte) (ports.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ports.Document{}, false, cerrors.ErrStoreUnavailable
	}
	if existing, ok := s.docs[key]; ok {
		return copyDoc(existing), false, nil
	}
	doc := s.write(key, value)
	return copyDoc(doc), true, nil
}

func (s *DocumentStore) CompareAndSwap(_ context.Context, key string, expectedVersion int64, value []byte) (ports.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ports.Document{}, false, cerrors.ErrStoreUnavailable
	}
	current, ok := s.docs[key]
	if !ok || current.Version != expectedVersion {
		return ports.Document{}, false, nil
	}
	doc := s.write(key, value)
	return copyDoc(doc), true, nil
}

func (s *DocumentStore) Put(_ context.Context, key string, value []byte) (ports.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ports.Document{}, cerrors.ErrStoreUnavailable
	}
	return copyDoc(s.write(key, value)), nil
}

// Delete removes key. The engine never deletes documents; this exists for
// operators and tests.
func (s *DocumentStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
}

func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// write must be called with mu held. Versions come from one store-wide
// revision counter, like etcd's ModRevision.
func (s *DocumentStore) write(key string, value []byte) ports.Document {
	s.revision++
	doc := ports.Document{Key: key, Value: append([]byte(nil), value...), Version: s.revision}
	s.docs[key] = doc
	return doc
}

func copyDoc(doc ports.Document) ports.Document {
	doc.Value = append([]byte(nil), doc.Value...)
	return doc
}
