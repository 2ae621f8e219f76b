package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

type memRepo struct {
	mu      sync.Mutex
	players map[int64]string
	online  map[int64]bool
	logs    []*LogEntry
	bans    []*Ban
}

func newMemRepo() *memRepo {
	return &memRepo{
		players: map[int64]string{1: "Ann", 2: "Bob"},
		online:  map[int64]bool{1: true, 2: true},
	}
}

func (m *memRepo) appendLog(playerID int64, moderatorID uuid.UUID, action Action, reason, duration string) *LogEntry {
	e := &LogEntry{
		ID:          int64(len(m.logs) + 1),
		PlayerID:    playerID,
		PlayerName:  m.players[playerID],
		ModeratorID: nullUUID(moderatorID),
		Action:      action,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	e.Duration.String, e.Duration.Valid = duration, duration != ""
	m.logs = append(m.logs, e)
	return e
}

func (m *memRepo) activeBan(playerID int64, now time.Time) *Ban {
	for _, b := range m.bans {
		if b.PlayerID == playerID && b.Active && (!b.ExpiresAt.Valid || b.ExpiresAt.Time.After(now)) {
			return b
		}
	}
	return nil
}

func (m *memRepo) Record(_ context.Context, playerID int64, moderatorID uuid.UUID, action Action, reason string) (*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[playerID]; !ok {
		return nil, ErrPlayerNotFound
	}
	if action == ActionKick {
		m.online[playerID] = false
	}
	return m.appendLog(playerID, moderatorID, action, reason, ""), nil
}

func (m *memRepo) CreateBan(_ context.Context, playerID int64, moderatorID uuid.UUID, reason string, d BanDuration, now time.Time) (*Ban, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[playerID]; !ok {
		return nil, ErrPlayerNotFound
	}
	if m.activeBan(playerID, now) != nil {
		return nil, ErrAlreadyBanned
	}
	b := &Ban{
		ID:          int64(len(m.bans) + 1),
		PlayerID:    playerID,
		PlayerName:  m.players[playerID],
		ModeratorID: nullUUID(moderatorID),
		Reason:      reason,
		Duration:    d.Text,
		Active:      true,
		CreatedAt:   now,
	}
	if exp := d.ExpiresAt(now); exp != nil {
		b.ExpiresAt.Time, b.ExpiresAt.Valid = *exp, true
	}
	m.bans = append(m.bans, b)
	m.online[playerID] = false
	m.appendLog(playerID, moderatorID, ActionBan, reason, d.Text)
	return b, nil
}

func (m *memRepo) LiftBan(_ context.Context, playerID int64, moderatorID uuid.UUID, reason string, now time.Time) (*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[playerID]; !ok {
		return nil, ErrPlayerNotFound
	}
	b := m.activeBan(playerID, now)
	if b == nil {
		return nil, ErrNotBanned
	}
	b.Active = false
	return m.appendLog(playerID, moderatorID, ActionUnban, reason, ""), nil
}

func (m *memRepo) ListActiveBans(_ context.Context, now time.Time) ([]*Ban, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Ban{}
	for id := range m.players {
		if b := m.activeBan(id, now); b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memRepo) History(_ context.Context, playerID *int64, limit int) ([]*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*LogEntry{}
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if playerID == nil || m.logs[i].PlayerID == *playerID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memRepo) Recent(_ context.Context, action Action, limit int) ([]*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*LogEntry{}
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].Action == action {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memRepo) StaffStats(context.Context, []string, int) (*StaffStats, error) {
	return &StaffStats{TopOffenders: []*Offender{}}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func TestBanLifecycle(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	ctx := context.Background()
	mod := uuid.New()

	ban, err := svc.Ban(ctx, mod, &BanRequest{PlayerID: 1, Reason: "RDM", Duration: "1 day"})
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if !ban.ExpiresAt.Valid || repo.online[1] {
		t.Fatalf("expected expiring ban and player offline, got %+v online=%v", ban, repo.online[1])
	}

	if _, err := svc.Ban(ctx, mod, &BanRequest{PlayerID: 1, Reason: "again", Duration: Permanent}); err != ErrAlreadyBanned {
		t.Fatalf("expected ErrAlreadyBanned, got %v", err)
	}

	active, _ := svc.ActiveBans(ctx)
	if len(active) != 1 {
		t.Fatalf("expected one active ban, got %d", len(active))
	}

	if _, err := svc.Unban(ctx, mod, &ActionRequest{PlayerID: 1, Reason: "appeal"}); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, err := svc.Unban(ctx, mod, &ActionRequest{PlayerID: 1, Reason: "appeal"}); err != ErrNotBanned {
		t.Fatalf("expected ErrNotBanned, got %v", err)
	}

	// a lifted ban does not block a new one
	if _, err := svc.Ban(ctx, mod, &BanRequest{PlayerID: 1, Reason: "RDM again", Duration: Permanent}); err != nil {
		t.Fatalf("re-ban: %v", err)
	}

	if len(pub.events) != 3 {
		t.Fatalf("expected 3 live events, got %v", pub.events)
	}
}

func TestExpiredBanIsNotActive(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	if _, err := svc.Ban(context.Background(), uuid.New(), &BanRequest{PlayerID: 2, Reason: "fail RP", Duration: "1 hour"}); err != nil {
		t.Fatalf("ban: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	active, _ := svc.ActiveBans(context.Background())
	if len(active) != 0 {
		t.Fatalf("expected expired ban excluded, got %d", len(active))
	}
	if _, err := svc.Unban(context.Background(), uuid.New(), &ActionRequest{PlayerID: 2, Reason: "late"}); err != ErrNotBanned {
		t.Fatalf("expected ErrNotBanned for expired ban, got %v", err)
	}
}

func TestKickAndRecentActions(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	mod := uuid.New()

	if _, err := svc.Warn(ctx, mod, &ActionRequest{PlayerID: 2, Reason: "language"}); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if _, err := svc.Kick(ctx, mod, &ActionRequest{PlayerID: 2, Reason: "AFK"}); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if repo.online[2] {
		t.Fatalf("expected kicked player offline")
	}
	if _, err := svc.Warn(ctx, mod, &ActionRequest{PlayerID: 42, Reason: "ghost"}); err != ErrPlayerNotFound {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}

	recent, err := svc.RecentActions(ctx)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent.Warns) != 1 || len(recent.Kicks) != 1 || len(recent.Bans) != 0 {
		t.Fatalf("unexpected recent actions %+v", recent)
	}

	id := int64(2)
	history, _ := svc.History(ctx, &id)
	if len(history) != 2 || history[0].Action != ActionKick {
		t.Fatalf("expected newest first history, got %+v", history)
	}
}

func withIdentity(rec *identity.Record) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), rec)))
		})
	}
}

func caller(labels ...roles.Label) *identity.Record {
	rec := &identity.Record{ID: uuid.New(), Username: "caller", Status: identity.StatusActive}
	rec.SetRoles(roles.NewSet(labels...))
	return rec
}

func post(router http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	return rr
}

func TestModerationRoutes(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))

	tests := []struct {
		name string
		rec  *identity.Record
		path string
		body any
		code int
	}{
		{"civilian denied", caller(), "/warn", ActionRequest{PlayerID: 1, Reason: "spam"}, http.StatusForbidden},
		{"command denied", caller(roles.KCSOCommand), "/kick", ActionRequest{PlayerID: 1, Reason: "spam"}, http.StatusForbidden},
		{"staff warns", caller(roles.Staff), "/warn", ActionRequest{PlayerID: 1, Reason: "spam"}, http.StatusCreated},
		{"short reason", caller(roles.Staff), "/warn", ActionRequest{PlayerID: 1, Reason: "x"}, http.StatusUnprocessableEntity},
		{"unknown player", caller(roles.Staff), "/kick", ActionRequest{PlayerID: 9, Reason: "spam"}, http.StatusNotFound},
		{"bad duration", caller(roles.Staff), "/ban", BanRequest{PlayerID: 1, Reason: "RDM", Duration: "2 weeks"}, http.StatusUnprocessableEntity},
		{"missing duration", caller(roles.Staff), "/ban", BanRequest{PlayerID: 1, Reason: "RDM"}, http.StatusUnprocessableEntity},
		{"director bans", caller(roles.Director), "/ban", BanRequest{PlayerID: 1, Reason: "RDM", Duration: "3 days"}, http.StatusCreated},
		{"double ban", caller(roles.Staff), "/ban", BanRequest{PlayerID: 1, Reason: "RDM", Duration: Permanent}, http.StatusConflict},
		{"unban", caller(roles.Staff), "/unban", ActionRequest{PlayerID: 1, Reason: "appeal"}, http.StatusOK},
		{"unban twice", caller(roles.Staff), "/unban", ActionRequest{PlayerID: 1, Reason: "appeal"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(h.Routes(withIdentity(tt.rec)), tt.path, tt.body)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d body=%s", tt.code, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestHistoryResponseDefaultsModeratorName(t *testing.T) {
	repo := newMemRepo()
	repo.appendLog(1, uuid.Nil, ActionWarn, "automatic", "")
	router := NewHandler(NewService(repo)).Routes(withIdentity(caller(roles.Staff)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?player_id=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		Data []LogEntryResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].ModeratorName != "System" {
		t.Fatalf("expected System moderator, got %+v", out.Data)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?player_id=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad player id, got %d", rr.Code)
	}
}

func TestStaffRoutesRequireStaff(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))
	for _, path := range []string{"/stats", "/recent-actions"} {
		rr := httptest.NewRecorder()
		h.StaffRoutes(withIdentity(caller(roles.MSP))).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rr.Code)
		}

		rr = httptest.NewRecorder()
		h.StaffRoutes(withIdentity(caller(roles.Staff))).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}
