package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider keeps collections in process memory. Used by tests and as
// the zero-config development backend.
type MemoryProvider struct {
	mu          sync.Mutex
	collections map[string]*memoryStore
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{collections: make(map[string]*memoryStore)}
}

func (p *MemoryProvider) Collection(_ context.Context, name string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.collections[name]; ok {
		return s, nil
	}
	s := &memoryStore{records: make(map[string]memoryRecord)}
	p.collections[name] = s
	return s, nil
}

func (p *MemoryProvider) Close() error { return nil }

type memoryRecord struct {
	data     []byte
	etag     string
	modified time.Time
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

func (s *memoryStore) Get(_ context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrInvalidData
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	data := make([]byte, len(rec.data))
	copy(data, rec.data)
	return &Record{Data: data, ETag: rec.etag}, nil
}

func (s *memoryStore) Put(_ context.Context, key string, data []byte, opts *PutOptions) (string, error) {
	if key == "" {
		return "", ErrInvalidData
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[key]
	if opts != nil {
		if opts.IfNoneMatchAny && exists {
			return "", ErrConflict
		}
		if opts.IfMatch != "" && (!exists || existing.etag != opts.IfMatch) {
			return "", ErrConflict
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	etag := uuid.NewString()
	s.records[key] = memoryRecord{data: stored, etag: etag, modified: time.Now()}
	return etag, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidData
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *memoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.records))
	for key, rec := range s.records {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entries = append(entries, Entry{Key: key, Size: int64(len(rec.data)), LastModified: rec.modified})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
