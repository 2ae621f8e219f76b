package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/identity/identitytest"
	"github.com/kcrp/rp-dashboard/internal/pkg/jwt"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

type memRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]uuid.UUID
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{tokens: make(map[string]uuid.UUID)}
}

func (s *memRefreshStore) Save(_ context.Context, hash string, userID uuid.UUID, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[hash] = userID
	return nil
}

func (s *memRefreshStore) Take(_ context.Context, hash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[hash]
	if !ok {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	delete(s.tokens, hash)
	return id, nil
}

func (s *memRefreshStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, hash)
	return nil
}

type failingReader struct{}

func (failingReader) FindByID(context.Context, uuid.UUID) (*identity.Record, error) {
	return nil, errors.New("connection refused")
}

func setup(t *testing.T) (*Authority, *identitytest.MemoryStore, *identity.Record) {
	t.Helper()
	store := identitytest.NewMemoryStore()
	rec := &identity.Record{ID: uuid.New(), Username: "deputy", Status: identity.StatusActive}
	rec.SetRoles(roles.Set{roles.Civilian})
	store.Put(rec)

	authority := NewAuthority(jwt.NewService("test-secret", time.Minute, time.Hour), store, newMemRefreshStore())
	return authority, store, store.Get(rec.ID)
}

func TestAuthenticateReadsCurrentRoles(t *testing.T) {
	authority, store, rec := setup(t)
	ctx := context.Background()

	tokens, err := authority.Issue(ctx, rec)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// roles change after the token was issued
	updated := store.Get(rec.ID)
	updated.SetRoles(roles.NewSet(roles.Staff, roles.Civilian))
	store.Put(updated)

	got, err := authority.Authenticate(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !got.RoleSet().Has(roles.Staff) {
		t.Fatalf("expected fresh roles with Staff, got %v", got.RoleSet())
	}
}

func TestAuthenticateRejectsBannedRegardlessOfRole(t *testing.T) {
	authority, store, rec := setup(t)
	ctx := context.Background()

	tokens, err := authority.Issue(ctx, rec)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	banned := store.Get(rec.ID)
	banned.SetRoles(roles.NewSet(roles.Director))
	banned.Status = identity.StatusBanned
	store.Put(banned)

	if _, err := authority.Authenticate(ctx, tokens.AccessToken); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}
	if _, err := authority.Issue(ctx, store.Get(rec.ID)); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected issue to refuse banned account, got %v", err)
	}
}

func TestAuthenticateInvalidTokens(t *testing.T) {
	authority, store, rec := setup(t)
	ctx := context.Background()

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := authority.Authenticate(ctx, raw); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated for %q, got %v", raw, err)
		}
	}

	other := jwt.NewService("other-secret", time.Minute, time.Hour)
	forged, _ := other.GenerateAccessToken(rec.ID)
	if _, err := authority.Authenticate(ctx, forged); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected forged token rejected, got %v", err)
	}

	tokens, _ := authority.Issue(ctx, rec)
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := authority.Authenticate(ctx, tokens.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected deleted identity rejected, got %v", err)
	}
}

func TestAuthenticateStoreFailureIsNotASession(t *testing.T) {
	jwtSvc := jwt.NewService("test-secret", time.Minute, time.Hour)
	authority := NewAuthority(jwtSvc, failingReader{}, newMemRefreshStore())
	token, _ := jwtSvc.GenerateAccessToken(uuid.New())

	rec, err := authority.Authenticate(context.Background(), token)
	if err == nil || rec != nil {
		t.Fatalf("expected error and no record, got %v %v", rec, err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected store failure to be distinct from unauthenticated")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	authority, _, rec := setup(t)
	ctx := context.Background()

	first, err := authority.Issue(ctx, rec)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, second, err := authority.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.ID != rec.ID || second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected rotated token for same user")
	}
	if _, _, err := authority.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected reused token rejected, got %v", err)
	}

	if err := authority.Revoke(ctx, second.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := authority.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}
	if _, _, err := authority.Refresh(ctx, ""); !errors.Is(err, ErrRefreshTokenRequired) {
		t.Fatalf("expected ErrRefreshTokenRequired, got %v", err)
	}
}
