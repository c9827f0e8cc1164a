package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"vcregistry/internal/attestation/models"
	"vcregistry/internal/ledger"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/sentinel"
)

// InMemoryStore keeps verification records and their id sequences in memory.
// Like the directory store it is staged on a Clone and frozen on commit.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[domain.VerificationID]models.Verification
	bySubject map[domain.Address][]domain.VerificationID
	byIssuer  map[domain.Address][]domain.VerificationID
	frozen    bool
}

// NewInMemoryStore constructs an empty, writable store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[domain.VerificationID]models.Verification),
		bySubject: make(map[domain.Address][]domain.VerificationID),
		byIssuer:  make(map[domain.Address][]domain.VerificationID),
	}
}

// Clone returns a writable copy. Sequences are clipped so appends on the copy
// reallocate instead of writing into the frozen store's backing arrays.
func (s *InMemoryStore) Clone() *InMemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &InMemoryStore{
		records:   maps.Clone(s.records),
		bySubject: clipAll(s.bySubject),
		byIssuer:  clipAll(s.byIssuer),
	}
}

func clipAll(in map[domain.Address][]domain.VerificationID) map[domain.Address][]domain.VerificationID {
	out := make(map[domain.Address][]domain.VerificationID, len(in))
	for k, v := range in {
		out[k] = slices.Clip(v)
	}
	return out
}

// Freeze makes the store read-only.
func (s *InMemoryStore) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.VerificationID) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

func (s *InMemoryStore) Save(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	s.records[v.UUID] = *v
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.VerificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *InMemoryStore) AppendToSubject(_ context.Context, subject domain.Address, id domain.VerificationID) error {
	return s.appendTo(s.bySubject, subject, id)
}

func (s *InMemoryStore) AppendToVerifier(_ context.Context, verifier domain.Address, id domain.VerificationID) error {
	return s.appendTo(s.byIssuer, verifier, id)
}

func (s *InMemoryStore) appendTo(index map[domain.Address][]domain.VerificationID, key domain.Address, id domain.VerificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ledger.ErrReadOnly
	}
	index[key] = append(index[key], id)
	return nil
}

func (s *InMemoryStore) SubjectSequence(_ context.Context, subject domain.Address) ([]domain.VerificationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bySubject[subject]), nil
}

func (s *InMemoryStore) VerifierSequence(_ context.Context, verifier domain.Address) ([]domain.VerificationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byIssuer[verifier]), nil
}
