package store

import (
	"context"
	"maps"
	"sync"

	"vcregistry/internal/directory/models"
	"vcregistry/internal/ledger"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/sentinel"
)

// Error Contract:
// - Return sentinel.ErrNotFound when the requested entity does not exist
// - Return ledger.ErrReadOnly for writes on a frozen (committed) snapshot
// - Return nil for successful operations

// InMemoryStore keeps verifiers and the signing key reverse index in memory.
// The in-memory ledger stages writes on a Clone and freezes it on commit, so a
// frozen store is the published state and never changes again.
type InMemoryStore struct {
	mu        sync.RWMutex
	verifiers map[domain.Address]models.Verifier
	keys      map[domain.Address]domain.Address
	frozen    bool
}

// NewInMemoryStore constructs an empty, writable store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		verifiers: make(map[domain.Address]models.Verifier),
		keys:      make(map[domain.Address]domain.Address),
	}
}

// Clone returns a writable deep copy.
func (s *InMemoryStore) Clone() *InMemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &InMemoryStore{
		verifiers: maps.Clone(s.verifiers),
		keys:      maps.Clone(s.keys),
	}
}

// Freeze makes the store read-only.
func (s *InMemoryStore) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

func (s *InMemoryStore) FindByAccount(_ context.Context, account domain.Address) (*models.Verifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifiers[account]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

func (s *InMemoryStore) Save(_ context.Context, v *models.Verifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	s.verifiers[v.Account] = *v
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, account domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	if _, ok := s.verifiers[account]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.verifiers, account)
	return nil
}

func (s *InMemoryStore) AccountForKey(_ context.Context, signingKey domain.Address) (domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.keys[signingKey]
	if !ok {
		return domain.Address{}, sentinel.ErrNotFound
	}
	return account, nil
}

func (s *InMemoryStore) BindKey(_ context.Context, signingKey, account domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	s.keys[signingKey] = account
	return nil
}

func (s *InMemoryStore) UnbindKey(_ context.Context, signingKey domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	delete(s.keys, signingKey)
	return nil
}
