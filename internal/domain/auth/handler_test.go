package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/identity/identitytest"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/jwt"
	"github.com/kcrp/rp-dashboard/internal/pkg/password"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

func init() {
	password.UseMinCost()
}

type fakeDiscord struct {
	profile     discord.Profile
	lookup      discord.MemberLookup
	exchangeErr error
}

func (f *fakeDiscord) AuthCodeURL(state string) string {
	return "https://discord.test/authorize?state=" + state
}

func (f *fakeDiscord) ExchangeCode(context.Context, string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "discord-token"}, nil
}

func (f *fakeDiscord) FetchProfile(context.Context, *oauth2.Token) (*discord.Profile, error) {
	p := f.profile
	return &p, nil
}

func (f *fakeDiscord) FetchGuildMember(context.Context, string) discord.MemberLookup {
	return f.lookup
}

type memRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]uuid.UUID
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
		return uuid.Nil, session.ErrInvalidRefreshToken
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

type memLinkStore struct {
	mu      sync.Mutex
	markers map[string]uuid.UUID
}

func (s *memLinkStore) Save(_ context.Context, state string, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[state] = userID
	return nil
}

func (s *memLinkStore) Take(_ context.Context, state string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.markers[state]
	delete(s.markers, state)
	return id, nil
}

type fixture struct {
	handler *Handler
	engine  *identity.Engine
	store   *identitytest.MemoryStore
	discord *fakeDiscord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table := roles.MustTable(map[string][]roles.Label{
		"staffRoleId": {roles.Staff},
		"kcsoRoleId":  {roles.KCSO},
	})
	store := identitytest.NewMemoryStore()
	engine := identity.NewEngine(store, table)
	authority := session.NewAuthority(jwt.NewService("test-secret", time.Minute, time.Hour), store,
		&memRefreshStore{tokens: make(map[string]uuid.UUID)})

	dc := &fakeDiscord{
		profile: discord.Profile{ID: "D1", Username: "deputy"},
	}
	dc.lookup = discord.Member{GuildMember: discord.GuildMember{User: dc.profile, Roles: []string{"staffRoleId"}}}

	svc := NewService(engine, authority, dc, &memLinkStore{markers: make(map[string]uuid.UUID)})
	h := NewHandler(svc, CookieConfig{RefreshTTL: time.Hour}, "https://dash.test")
	return &fixture{handler: h, engine: engine, store: store, discord: dc}
}

// startDiscord runs the first leg and returns the state cookie.
func (f *fixture) startDiscord(t *testing.T, caller *identity.Record, query string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/discord"+query, nil)
	if caller != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	f.handler.DiscordLogin(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d body=%s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == stateCookieName {
			if !strings.Contains(rr.Header().Get("Location"), c.Value) {
				t.Fatalf("expected state in authorize url, got %s", rr.Header().Get("Location"))
			}
			return c
		}
	}
	t.Fatal("expected state cookie")
	return nil
}

func (f *fixture) callback(t *testing.T, caller *identity.Record, state *http.Cookie, stateParam string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=abc&state="+url.QueryEscape(stateParam), nil)
	if state != nil {
		req.AddCookie(state)
	}
	if caller != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	f.handler.DiscordCallback(rr, req)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	return rr
}

func location(t *testing.T, rr *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	u, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	return u
}

func hasCookie(rr *httptest.ResponseRecorder, name string) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func TestDiscordCallbackCreatesAccount(t *testing.T) {
	f := newFixture(t)
	state := f.startDiscord(t, nil, "")

	rr := f.callback(t, nil, state, state.Value)
	loc := location(t, rr)
	if loc.Path != "/dashboard" || loc.Query().Get("welcome") != "1" {
		t.Fatalf("expected welcome redirect, got %s", loc)
	}
	if !hasCookie(rr, middleware.AccessCookieName) || !hasCookie(rr, refreshCookieName) {
		t.Fatal("expected session cookies")
	}

	rec, _ := f.store.FindByExternalID(context.Background(), "D1")
	if rec == nil || !rec.RoleSet().Has(roles.Staff) {
		t.Fatalf("expected D1 with Staff, got %+v", rec)
	}
	if !rec.LastLoginAt.Valid {
		t.Fatal("expected last login to be recorded")
	}

	// second sign-in reuses the record
	state = f.startDiscord(t, nil, "")
	rr = f.callback(t, nil, state, state.Value)
	if location(t, rr).Query().Get("welcome") != "" {
		t.Fatalf("expected returning user redirect, got %s", location(t, rr))
	}
	all, _ := f.store.ListAll(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected one identity, got %d", len(all))
	}
}

func TestDiscordCallbackErrors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture)
		badSt   bool
		want    string
	}{
		{
			name:    "not a guild member",
			prepare: func(f *fixture) { f.discord.lookup = discord.NotAMember{UserID: "D1"} },
			want:    "not_guild_member",
		},
		{
			name: "discord unavailable",
			prepare: func(f *fixture) {
				f.discord.lookup = discord.LookupError{UserID: "D1", Err: discord.ErrUnavailable}
			},
			want: "discord_unavailable",
		},
		{
			name:    "invalid code",
			prepare: func(f *fixture) { f.discord.exchangeErr = discord.ErrInvalidCode },
			want:    "invalid_request",
		},
		{
			name:  "state mismatch",
			badSt: true,
			want:  "invalid_request",
		},
		{
			name: "banned account",
			prepare: func(f *fixture) {
				res, _ := f.engine.Reconcile(context.Background(), identity.Snapshot{ExternalID: "D1", Username: "deputy"}, identity.SourceSync)
				_, _ = f.engine.SetStatus(context.Background(), res.Record.ID, identity.StatusBanned)
			},
			want: "banned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			state := f.startDiscord(t, nil, "")
			param := state.Value
			if tt.badSt {
				param = "forged"
			}

			rr := f.callback(t, nil, state, param)
			loc := location(t, rr)
			if loc.Path != "/login" || loc.Query().Get("error") != tt.want {
				t.Fatalf("expected error=%s, got %s", tt.want, loc)
			}
			if hasCookie(rr, middleware.AccessCookieName) {
				t.Fatal("no session must be issued")
			}
		})
	}

	t.Run("not a member leaves store untouched", func(t *testing.T) {
		f := newFixture(t)
		f.discord.lookup = discord.NotAMember{UserID: "D1"}
		state := f.startDiscord(t, nil, "")
		f.callback(t, nil, state, state.Value)
		if f.store.Writes != 0 {
			t.Fatalf("expected no writes, got %d", f.store.Writes)
		}
	})
}

func TestDiscordLinkFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local, err := f.engine.Register(ctx, "deputy@example.com", "deputy", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// link mode without a session is rejected
	req := httptest.NewRequest(http.MethodGet, "/auth/discord?mode=link", nil)
	rr := httptest.NewRecorder()
	f.handler.DiscordLogin(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	state := f.startDiscord(t, local, "?mode=link")

	// a different session cannot finish someone else's link
	other, _ := f.engine.Register(ctx, "other@example.com", "other", "password123")
	rr = f.callback(t, other, state, state.Value)
	if location(t, rr).Query().Get("error") != "link_expired" {
		t.Fatalf("expected link_expired, got %s", location(t, rr))
	}

	state = f.startDiscord(t, local, "?mode=link")
	rr = f.callback(t, local, state, state.Value)
	loc := location(t, rr)
	if loc.Path != "/account" || loc.Query().Get("linked") != "1" {
		t.Fatalf("expected linked redirect, got %s", loc)
	}

	linked := f.store.Get(local.ID)
	if linked.ExternalID.String != "D1" || !linked.RoleSet().Has(roles.Staff) {
		t.Fatalf("expected D1 linked with Staff, got %+v", linked)
	}

	// the same Discord account cannot be linked to a second identity
	state = f.startDiscord(t, other, "?mode=link")
	rr = f.callback(t, other, state, state.Value)
	if location(t, rr).Query().Get("error") != "conflicting_link" {
		t.Fatalf("expected conflicting_link, got %s", location(t, rr))
	}
	if f.store.Get(other.ID).IsLinked() {
		t.Fatal("second identity must stay unlinked")
	}
}

func TestLoginHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.engine.Register(ctx, "staff@example.com", "staffer", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	login := func(pw string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(LoginRequest{Email: "staff@example.com", Password: pw})
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		f.handler.Login(rr, req)
		return rr
	}

	if rr := login("wrong-password"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr := login("password123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		Data struct {
			User struct {
				PrimaryRole string `json:"primary_role"`
			} `json:"user"`
			Tokens struct {
				AccessToken  string `json:"access_token"`
				RefreshToken string `json:"refresh_token"`
			} `json:"tokens"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Data.Tokens.AccessToken == "" || out.Data.Tokens.RefreshToken == "" {
		t.Fatal("expected tokens in response")
	}
	if out.Data.User.PrimaryRole != string(roles.Civilian) {
		t.Fatalf("expected Civilian, got %s", out.Data.User.PrimaryRole)
	}
	if !hasCookie(rr, middleware.AccessCookieName) {
		t.Fatal("expected access cookie")
	}

	if _, err := f.engine.SetStatus(ctx, rec.ID, identity.StatusBanned); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if rr := login("password123"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for banned account, got %d", rr.Code)
	}
}

func TestRefreshFromCookie(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.engine.Register(context.Background(), "a@example.com", "alpha", "password123")
	result, err := f.handler.service.issue(context.Background(), rec)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: result.Tokens.RefreshToken})
	rr := httptest.NewRecorder()
	f.handler.Refresh(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// rotated: the old token no longer works
	req = httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: result.Tokens.RefreshToken})
	rr = httptest.NewRecorder()
	f.handler.Refresh(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestPermissionHandler(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Reconcile(context.Background(), identity.Snapshot{
		ExternalID: "D1", Username: "deputy", RoleIDs: []string{"kcsoRoleId"},
	}, identity.SourceSync)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	tests := []struct {
		label string
		code  int
		allow bool
	}{
		{"KCSO", http.StatusOK, true},
		{"Staff", http.StatusOK, false},
		{"user", http.StatusOK, true},
		{"Admin", http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/permissions/"+tt.label, nil)
		req = req.WithContext(middleware.WithIdentity(req.Context(), res.Record))
		rr := httptest.NewRecorder()
		f.handler.Routes(passthrough, passthrough).ServeHTTP(rr, req)

		if rr.Code != tt.code {
			t.Fatalf("%s: expected %d, got %d", tt.label, tt.code, rr.Code)
		}
		if tt.code != http.StatusOK {
			continue
		}
		var out struct {
			Data PermissionResponse `json:"data"`
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
		if out.Data.Allowed != tt.allow {
			t.Fatalf("%s: expected allowed=%v, got %v", tt.label, tt.allow, out.Data.Allowed)
		}
	}
}

func passthrough(next http.Handler) http.Handler { return next }
