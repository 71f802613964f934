package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps entries in a map. Uniqueness checks and writes share one
// critical section, which is what makes it a faithful stand-in for the
// database's unique index.
type MemStore struct {
	mu sync.RWMutex
	m  map[string]Entry
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]Entry{}}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) List(_ context.Context, q Query) ([]Entry, int, error) {
	needle := strings.ToLower(q.Search)

	s.mu.RLock()
	matched := make([]Entry, 0, len(s.m))
	for _, e := range s.m {
		if q.ActiveOnly && !e.IsActive {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if q.Offset >= total {
		return []Entry{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < total {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total, nil
}

func (s *MemStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.m[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemStore) TitleTaken(_ context.Context, title, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.titleTakenLocked(title, excludeID), nil
}

func (s *MemStore) titleTakenLocked(title, excludeID string) bool {
	for id, e := range s.m {
		if id != excludeID && e.Title == title {
			return true
		}
	}
	return false
}

func (s *MemStore) Create(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.titleTakenLocked(e.Title, "") {
		return Entry{}, ErrConflict
	}

	e.ID = uuid.NewString()
	s.m[e.ID] = e
	return e, nil
}

func (s *MemStore) Replace(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.m[e.ID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if s.titleTakenLocked(e.Title, e.ID) {
		return Entry{}, ErrConflict
	}

	e.CreatedBy = cur.CreatedBy
	e.CreatedAt = cur.CreatedAt
	e.ViewCount = cur.ViewCount
	s.m[e.ID] = e
	return e, nil
}

func (s *MemStore) Apply(_ context.Context, id string, p Patch, at time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if p.Title != nil && s.titleTakenLocked(*p.Title, id) {
		return Entry{}, ErrConflict
	}

	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.IconURL != nil {
		if *p.IconURL == "" {
			e.IconURL = nil
		} else {
			v := *p.IconURL
			e.IconURL = &v
		}
	}
	if p.EmbedCode != nil {
		e.EmbedCode = *p.EmbedCode
	}
	if p.ExternalKbRef != nil {
		e.ExternalKbRef = *p.ExternalKbRef
	}
	if p.ExternalFlowRef != nil {
		e.ExternalFlowRef = *p.ExternalFlowRef
	}
	if p.IsActive != nil {
		e.IsActive = *p.IsActive
	}
	if p.ViewCount != nil {
		e.ViewCount = *p.ViewCount
	}
	if p.IncrementViews {
		e.ViewCount++
	}
	e.UpdatedAt = at

	s.m[id] = e
	return e, nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return ErrNotFound
	}
	delete(s.m, id)
	return nil
}

func (s *MemStore) BulkSetActive(_ context.Context, ids []string, active bool, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		e, ok := s.m[id]
		if !ok {
			continue
		}
		e.IsActive = active
		e.UpdatedAt = at
		s.m[id] = e
		n++
	}
	return n, nil
}

func (s *MemStore) BulkDelete(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.m[id]; ok {
			delete(s.m, id)
			n++
		}
	}
	return n, nil
}
