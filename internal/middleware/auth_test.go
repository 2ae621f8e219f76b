package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

type fakeAuthenticator struct {
	records map[string]*identity.Record
	err     error
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, raw string) (*identity.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[raw]
	if !ok {
		return nil, session.ErrUnauthenticated
	}
	if rec.IsBanned() {
		return nil, session.ErrAccountBanned
	}
	return rec, nil
}

func newRecord(status identity.Status, labels ...roles.Label) *identity.Record {
	rec := &identity.Record{ID: uuid.New(), Username: "tester", Status: status}
	rec.SetRoles(roles.NewSet(labels...))
	return rec
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *response.ErrorInfo {
	t.Helper()
	var resp response.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
	return resp.Error
}

func TestAuthMiddlewareAcceptsBearerAndCookie(t *testing.T) {
	rec := newRecord(identity.StatusActive, roles.Civilian)
	auth := &fakeAuthenticator{records: map[string]*identity.Record{"good": rec}}

	var seen uuid.UUID
	protected := Auth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen != rec.ID {
		t.Fatalf("expected 200 for bearer, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "good"})
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for cookie, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	banned := newRecord(identity.StatusBanned, roles.Director)
	auth := &fakeAuthenticator{records: map[string]*identity.Record{"banned": banned}}
	protected := Auth(auth)(http.HandlerFunc(okHandler))

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, response.CodeUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized, response.CodeUnauthorized},
		{"unknown", "Bearer nope", http.StatusUnauthorized, response.CodeUnauthorized},
		{"banned director", "Bearer banned", http.StatusForbidden, response.CodeAccountBanned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			if got := decodeError(t, w).Code; got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
		})
	}
}

func TestAuthMiddlewareDeniesOnLookupError(t *testing.T) {
	auth := &fakeAuthenticator{err: errors.New("db down")}
	called := false
	protected := Auth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer any")
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if called {
		t.Fatalf("handler must not run when the lookup fails")
	}
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestOptionalAuthContinuesAnonymously(t *testing.T) {
	auth := &fakeAuthenticator{records: map[string]*identity.Record{}}
	var got *identity.Record
	h := OptionalAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback", nil)
	req.Header.Set("Authorization", "Bearer stale")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || got != nil {
		t.Fatalf("expected anonymous pass-through, got %d %v", w.Code, got)
	}
}

func serveGate(t *testing.T, mw func(http.Handler) http.Handler, rec *identity.Record, pattern, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.With(mw).Get(pattern, okHandler)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if rec != nil {
		req = req.WithContext(WithIdentity(req.Context(), rec))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRoles(t *testing.T) {
	cases := []struct {
		name   string
		rec    *identity.Record
		status int
	}{
		{"no identity", nil, http.StatusUnauthorized},
		{"civilian", newRecord(identity.StatusActive, roles.Civilian), http.StatusForbidden},
		{"staff", newRecord(identity.StatusActive, roles.Staff), http.StatusOK},
		{"director bypass", newRecord(identity.StatusActive, roles.Director), http.StatusOK},
		{"banned staff", newRecord(identity.StatusBanned, roles.Staff), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serveGate(t, RequireRoles(roles.Staff), tc.rec, "/staff", "/staff")
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestRequireRolesReportsRequiredRoles(t *testing.T) {
	w := serveGate(t, RequireRoles(roles.Staff), newRecord(identity.StatusActive, roles.KCSO), "/staff", "/staff")
	info := decodeError(t, w)
	if info.Details["required_roles"] != "Director,Staff" {
		t.Fatalf("expected required roles Director,Staff, got %q", info.Details["required_roles"])
	}
}

func TestRequireDepartmentEdit(t *testing.T) {
	kcsoCommand := newRecord(identity.StatusActive, roles.KCSOCommand, roles.KCSO)
	director := newRecord(identity.StatusActive, roles.Director)
	staff := newRecord(identity.StatusActive, roles.Staff)

	cases := []struct {
		name   string
		rec    *identity.Record
		path   string
		status int
	}{
		{"own department", kcsoCommand, "/departments/kcso/documents", http.StatusOK},
		{"other department", kcsoCommand, "/departments/msp/documents", http.StatusForbidden},
		{"director kcso", director, "/departments/kcso/documents", http.StatusOK},
		{"director msp", director, "/departments/msp/documents", http.StatusOK},
		{"staff is not command", staff, "/departments/mfd/documents", http.StatusForbidden},
		{"unknown department", director, "/departments/fbi/documents", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serveGate(t, RequireDepartmentEdit("dept"), tc.rec, "/departments/{dept}/documents", tc.path)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestRequireDepartmentView(t *testing.T) {
	member := newRecord(identity.StatusActive, roles.MFD)
	if w := serveGate(t, RequireDepartmentView("dept"), member, "/departments/{dept}", "/departments/mfd"); w.Code != http.StatusOK {
		t.Fatalf("expected member to view own department, got %d", w.Code)
	}
	if w := serveGate(t, RequireDepartmentView("dept"), member, "/departments/{dept}", "/departments/kcso"); w.Code != http.StatusForbidden {
		t.Fatalf("expected member denied other department, got %d", w.Code)
	}
	staff := newRecord(identity.StatusActive, roles.Staff)
	if w := serveGate(t, RequireDepartmentView("dept"), staff, "/departments/{dept}", "/departments/kcso"); w.Code != http.StatusOK {
		t.Fatalf("expected staff to view, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewIPRateLimiter(1, 2, time.Minute)
	h := RateLimit(rl)(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of 2 then 429, got %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected other IP unaffected, got %d", w.Code)
	}

	rl.evict(time.Now().Add(2 * time.Minute))
	if len(rl.limiters) != 0 {
		t.Fatalf("expected idle limiters evicted")
	}
}
