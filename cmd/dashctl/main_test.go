package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcrp/rp-dashboard/internal/domain/admin"
	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/identity/identitytest"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

type storeRepo struct {
	store *identitytest.MemoryStore
}

func (s storeRepo) ListUsers(ctx context.Context, filter admin.UserFilter) ([]*identity.Record, int, error) {
	all, _ := s.store.ListAll(ctx)
	out := []*identity.Record{}
	for _, rec := range all {
		if filter.Role != "" && !rec.RoleSet().Has(roles.Label(filter.Role)) {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

type harness struct {
	store  *identitytest.MemoryStore
	audit  *audit.MemoryRepository
	deputy *identity.Record
	open   connector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := identitytest.NewMemoryStore()
	engine := identity.NewEngine(store, roles.MustTable(map[string][]roles.Label{"staffRoleId": {roles.Staff}}))
	auditRepo := &audit.MemoryRepository{}

	deputy := &identity.Record{ID: uuid.New(), Username: "deputy", Status: identity.StatusActive}
	deputy.SetRoles(roles.NewSet(roles.KCSO, roles.Civilian))
	store.Put(deputy)

	d := &deps{
		engine: engine,
		admin:  admin.NewService(storeRepo{store}, engine, audit.NewService(auditRepo)),
	}
	return &harness{
		store:  store,
		audit:  auditRepo,
		deputy: deputy,
		open: func(context.Context) (*deps, func(), error) {
			return d, func() {}, nil
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd(h.open)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUsersGrantAddsRoles(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("users", "grant", "deputy", "Staff")
	require.NoError(t, err)
	assert.Contains(t, out, "deputy now holds")

	set := h.store.Get(h.deputy.ID).RoleSet()
	assert.True(t, set.Has(roles.Staff))
	assert.True(t, set.Has(roles.KCSO), "existing roles are kept")
	assert.Equal(t, []string{audit.ActionRolesSet}, h.audit.Actions())
}

func TestUsersGrantReplace(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("users", "grant", h.deputy.ID.String(), "MSP", "--replace")
	require.NoError(t, err)

	set := h.store.Get(h.deputy.ID).RoleSet()
	assert.True(t, set.Has(roles.MSP))
	assert.False(t, set.Has(roles.KCSO))
}

func TestUsersGrantErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("users", "grant", "nobody", "Staff")
	assert.True(t, errors.Is(err, identity.ErrNotFound), "got %v", err)

	_, err = h.run("users", "grant", "deputy", "Admin")
	assert.ErrorIs(t, err, roles.ErrInvalidRole)

	_, err = h.run("users", "grant", "deputy")
	assert.Error(t, err)

	assert.Empty(t, h.audit.Actions())
}

func TestUsersList(t *testing.T) {
	h := newHarness(t)
	other := &identity.Record{ID: uuid.New(), Username: "civ", Status: identity.StatusActive}
	other.SetRoles(roles.NewSet(roles.Civilian))
	h.store.Put(other)

	out, err := h.run("users", "list", "--role", "KCSO")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "deputy")
	assert.Equal(t, "1 of 1", lines[2])
}

func TestMigrateDownRejectsZeroSteps(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("migrate", "down", "--steps", "0")
	assert.EqualError(t, err, "--steps must be at least 1")
}

func TestSyncTriggerNeedsRedis(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("sync", "--trigger")
	assert.ErrorContains(t, err, "needs Redis")
}
