package auth

import (
	"context"
	"strings"
	"sync"
)

type MemStore struct {
	mu   sync.RWMutex
	byID map[string]Account
}

func NewMemStore(accounts ...Account) *MemStore {
	s := &MemStore{byID: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		s.byID[a.ID] = a
	}
	return s
}

func (s *MemStore) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = a
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) FindByLogin(_ context.Context, login string) (Account, error) {
	login = strings.TrimSpace(login)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var byName *Account
	for _, a := range s.byID {
		if strings.EqualFold(a.Email, login) {
			return a, nil
		}
		if a.DisplayName == login && byName == nil {
			a := a
			byName = &a
		}
	}
	if byName != nil {
		return *byName, nil
	}
	return Account{}, ErrIdentityNotFound
}

func (s *MemStore) FindByID(_ context.Context, id string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return a.Identity, nil
}
