// Package identitytest provides an in-memory identity store for tests.
package identitytest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
)

// MemoryStore implements identity.Store with the same uniqueness and version
// rules as the Postgres repository.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*identity.Record

	// FailFindExternal makes FindByExternalID fail for the given ids.
	FailFindExternal map[string]error
	// Writes counts successful Create and Update calls.
	Writes int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:          make(map[uuid.UUID]*identity.Record),
		FailFindExternal: make(map[string]error),
	}
}

// Put inserts rec directly, bypassing uniqueness checks.
func (s *MemoryStore) Put(rec *identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Version == 0 {
		rec.Version = 1
	}
	s.records[rec.ID] = rec.Clone()
}

// Get returns a copy of the stored record or nil.
func (s *MemoryStore) Get(id uuid.UUID) *identity.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec.Clone()
	}
	return nil
}

func (s *MemoryStore) find(match func(*identity.Record) bool) *identity.Record {
	for _, rec := range s.records {
		if match(rec) {
			return rec.Clone()
		}
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(r *identity.Record) bool {
		return r.Email.Valid && strings.EqualFold(r.Email.String, email)
	}), nil
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(r *identity.Record) bool {
		return strings.EqualFold(r.Username, username)
	}), nil
}

func (s *MemoryStore) FindByExternalID(_ context.Context, externalID string) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailFindExternal[externalID]; err != nil {
		return nil, err
	}
	return s.find(func(r *identity.Record) bool {
		return r.ExternalID.Valid && r.ExternalID.String == externalID
	}), nil
}

func (s *MemoryStore) FindOwner(_ context.Context) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(r *identity.Record) bool { return r.IsOwner }), nil
}

func (s *MemoryStore) checkUnique(rec *identity.Record) error {
	for id, other := range s.records {
		if id == rec.ID {
			continue
		}
		if rec.ExternalID.Valid && other.ExternalID.Valid && rec.ExternalID.String == other.ExternalID.String {
			return identity.ErrConflictingLink
		}
		if rec.Email.Valid && other.Email.Valid && strings.EqualFold(rec.Email.String, other.Email.String) {
			return identity.ErrEmailTaken
		}
		if strings.EqualFold(rec.Username, other.Username) {
			return identity.ErrUsernameTaken
		}
	}
	return nil
}

func (s *MemoryStore) Create(_ context.Context, rec *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return errors.New("duplicate id")
	}
	if err := s.checkUnique(rec); err != nil {
		return err
	}
	rec.Version = 1
	s.records[rec.ID] = rec.Clone()
	s.Writes++
	return nil
}

func (s *MemoryStore) Update(_ context.Context, rec *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.ID]
	if !ok || current.Version != rec.Version {
		return identity.ErrStaleRecord
	}
	if err := s.checkUnique(rec); err != nil {
		return err
	}
	rec.Version++
	stored := rec.Clone()
	stored.IsOwner = current.IsOwner
	stored.CreatedAt = current.CreatedAt
	stored.LastLoginAt = current.LastLoginAt
	s.records[rec.ID] = stored
	s.Writes++
	return nil
}

func (s *MemoryStore) TouchLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.LastLoginAt.Time, rec.LastLoginAt.Valid = at, true
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.IsOwner {
		return identity.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*identity.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) ListByRole(ctx context.Context, label string) ([]*identity.Record, error) {
	all, _ := s.ListAll(ctx)
	out := make([]*identity.Record, 0)
	for _, rec := range all {
		for _, r := range rec.Roles {
			if r == label {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}
