package admin

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/identity/identitytest"
	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

type storeRepo struct {
	store *identitytest.MemoryStore
}

func (s storeRepo) ListUsers(ctx context.Context, filter UserFilter) ([]*identity.Record, int, error) {
	all, _ := s.store.ListAll(ctx)
	out := []*identity.Record{}
	for _, rec := range all {
		if filter.Role != "" && !rec.RoleSet().Has(roles.Label(filter.Role)) {
			continue
		}
		if filter.Status != "" && string(rec.Status) != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

type fixture struct {
	store    *identitytest.MemoryStore
	audit    *audit.MemoryRepository
	handler  *Handler
	director *identity.Record
	owner    *identity.Record
	target   *identity.Record
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := identitytest.NewMemoryStore()
	engine := identity.NewEngine(store, roles.MustTable(map[string][]roles.Label{"staffRoleId": {roles.Staff}}))
	auditRepo := &audit.MemoryRepository{}

	f := &fixture{
		store:    store,
		audit:    auditRepo,
		handler:  NewHandler(NewService(storeRepo{store}, engine, audit.NewService(auditRepo))),
		director: newRecord("director", roles.Director),
		owner:    newRecord("owner", roles.Director),
		target:   newRecord("deputy", roles.KCSO),
	}
	f.owner.IsOwner = true
	store.Put(f.director)
	store.Put(f.owner)
	store.Put(f.target)
	return f
}

func newRecord(name string, labels ...roles.Label) *identity.Record {
	rec := &identity.Record{ID: uuid.New(), Username: name, Status: identity.StatusActive}
	rec.SetRoles(roles.NewSet(labels...))
	return rec
}

func withIdentity(rec *identity.Record) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), rec)))
		})
	}
}

func (f *fixture) serve(as *identity.Record, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rr := httptest.NewRecorder()
	f.handler.Routes(withIdentity(as)).ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Error == nil {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
	return resp.Error.Code
}

func TestStaffReadsDirectorWrites(t *testing.T) {
	f := newFixture(t)
	staff := newRecord("mod", roles.Staff)
	path := "/users/" + f.target.ID.String() + "/roles"

	tests := []struct {
		name   string
		as     *identity.Record
		method string
		path   string
		body   any
		code   int
	}{
		{"civilian list", newRecord("civ"), http.MethodGet, "/users", nil, http.StatusForbidden},
		{"staff list", staff, http.MethodGet, "/users", nil, http.StatusOK},
		{"staff roles vocabulary", staff, http.MethodGet, "/roles", nil, http.StatusOK},
		{"staff set roles", staff, http.MethodPut, path, SetRolesRequest{Roles: []string{"Staff"}}, http.StatusForbidden},
		{"staff audit", staff, http.MethodGet, "/audit", nil, http.StatusForbidden},
		{"director audit", f.director, http.MethodGet, "/audit", nil, http.StatusOK},
		{"bad id", f.director, http.MethodGet, "/users/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown user", f.director, http.MethodGet, "/users/" + uuid.NewString(), nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := f.serve(tt.as, tt.method, tt.path, tt.body); rr.Code != tt.code {
				t.Fatalf("expected %d, got %d body=%s", tt.code, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSetRoles(t *testing.T) {
	f := newFixture(t)
	path := "/users/" + f.target.ID.String() + "/roles"

	rr := f.serve(f.director, http.MethodPut, path, SetRolesRequest{Roles: []string{"Staff", "kcso", "User"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	got := f.store.Get(f.target.ID).RoleSet()
	if !got.Has(roles.Staff) || !got.Has(roles.KCSO) || !got.Has(roles.Civilian) {
		t.Fatalf("unexpected roles %v", got)
	}

	rr = f.serve(f.director, http.MethodPut, path, SetRolesRequest{Roles: []string{"Admin"}})
	if rr.Code != http.StatusUnprocessableEntity || errorCode(t, rr) != response.CodeInvalidRole {
		t.Fatalf("expected INVALID_ROLE, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.serve(f.director, http.MethodPut, "/users/"+f.owner.ID.String()+"/roles", SetRolesRequest{Roles: []string{"Civilian"}})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected owner protected, got %d", rr.Code)
	}

	if actions := f.audit.Actions(); len(actions) != 1 || actions[0] != audit.ActionRolesSet {
		t.Fatalf("expected one roles_set audit entry, got %v", actions)
	}
}

func TestSetRolesOnLinkedUser(t *testing.T) {
	f := newFixture(t)
	linked := newRecord("trooper", roles.Staff)
	linked.ExternalID = sql.NullString{String: "D7", Valid: true}
	f.store.Put(linked)
	path := "/users/" + linked.ID.String() + "/roles"

	rr := f.serve(f.director, http.MethodPut, path, SetRolesRequest{Roles: []string{"MSP"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	got := f.store.Get(linked.ID).RoleSet()
	if !got.Has(roles.Staff) || !got.Has(roles.MSP) {
		t.Fatalf("expected Discord Staff kept next to MSP, got %v", got)
	}

	plain := newRecord("cadet", roles.MSP)
	plain.ExternalID = sql.NullString{String: "D8", Valid: true}
	f.store.Put(plain)
	rr = f.serve(f.director, http.MethodPut, "/users/"+plain.ID.String()+"/roles", SetRolesRequest{Roles: []string{"Staff"}})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != response.CodeRoleManaged {
		t.Fatalf("expected ROLE_MANAGED_BY_DISCORD, got %d %s", rr.Code, rr.Body.String())
	}
	if f.store.Get(plain.ID).RoleSet().Has(roles.Staff) {
		t.Fatalf("expected no Staff grant")
	}
}

func TestSetStatusAndDelete(t *testing.T) {
	f := newFixture(t)
	statusPath := "/users/" + f.target.ID.String() + "/status"

	if rr := f.serve(f.director, http.MethodPut, statusPath, SetStatusRequest{Status: "suspended"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if rr := f.serve(f.director, http.MethodPut, statusPath, SetStatusRequest{Status: "banned"}); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !f.store.Get(f.target.ID).IsBanned() {
		t.Fatalf("expected target banned")
	}

	self := "/users/" + f.director.ID.String()
	if rr := f.serve(f.director, http.MethodPut, self+"/status", SetStatusRequest{Status: "banned"}); rr.Code != http.StatusForbidden {
		t.Fatalf("expected self ban refused, got %d", rr.Code)
	}
	if rr := f.serve(f.director, http.MethodDelete, self, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected self delete refused, got %d", rr.Code)
	}
	if rr := f.serve(f.director, http.MethodDelete, "/users/"+f.owner.ID.String(), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected owner delete refused, got %d", rr.Code)
	}

	target := "/users/" + f.target.ID.String()
	if rr := f.serve(f.director, http.MethodDelete, target, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := f.serve(f.director, http.MethodDelete, target, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}

	want := []string{audit.ActionStatusSet, audit.ActionUserDeleted}
	if got := f.audit.Actions(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected audit %v, got %v", want, got)
	}
}

func TestListUsersFilters(t *testing.T) {
	f := newFixture(t)

	rr := f.serve(f.director, http.MethodGet, "/users?role=kcso", nil)
	var out struct {
		Data UserListResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Data.Total != 1 || out.Data.Users[0].ID != f.target.ID {
		t.Fatalf("expected only the deputy, got %+v", out.Data)
	}

	if rr := f.serve(f.director, http.MethodGet, "/users?role=Admin", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown role filter, got %d", rr.Code)
	}
	if rr := f.serve(f.director, http.MethodGet, "/users?status=gone", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", rr.Code)
	}
}
