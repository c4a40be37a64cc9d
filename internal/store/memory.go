package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/feichai0017/document-summarizer/internal/models"
)

// MemoryStore keeps documents in a map. Suitable for a single process.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*models.Document), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return ErrAlreadyExists
	}
	stamp(doc, s.now(), true)
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return models.ErrNotFound
	}
	stamp(doc, s.now(), false)
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryStore) IncrementRetry(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	doc.RetryCount++
	return doc.RetryCount, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) ListStalePending(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	var stale []*models.Document
	for _, doc := range s.docs {
		if doc.SummaryStatus == models.StatusPending && doc.SummaryUpdatedAt.Before(before) {
			stale = append(stale, doc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].SummaryUpdatedAt.Before(stale[j].SummaryUpdatedAt)
	})
	ids := make([]string, 0, len(stale))
	for _, doc := range stale {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}
