package player_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kcrp/rp-dashboard/internal/domain/player"
	"github.com/kcrp/rp-dashboard/internal/pkg/database/dbtest"
)

func createTestPlayer(t *testing.T, db *sqlx.DB, name string, kills int, online bool) int64 {
	t.Helper()
	var id int64
	err := db.Get(&id, `
		INSERT INTO players (username, kills, online, cash_money)
		VALUES ($1, $2, $3, 0)
		RETURNING id
	`, name, kills, online)
	if err != nil {
		t.Fatalf("create player failed: %v", err)
	}
	return id
}

func TestAddMoneyConcurrent(t *testing.T) {
	db := dbtest.Open(t)
	repo := player.NewRepository(db)
	svc := player.NewService(repo)
	id := createTestPlayer(t, db, "Jimmy", 0, true)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddMoney(context.Background(), uuid.Nil, &player.AddMoneyRequest{PlayerID: id, Amount: 5, Account: "cash"})
			if err != nil {
				t.Errorf("add money: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.CashMoney != 5*workers {
		t.Fatalf("expected cash %d, got %d", 5*workers, p.CashMoney)
	}

	var logs int
	if err := db.Get(&logs, `SELECT COUNT(*) FROM moderation_logs WHERE player_id = $1 AND action = 'money_added'`, id); err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logs != workers {
		t.Fatalf("expected %d log entries, got %d", workers, logs)
	}
}

func TestAddMoneyUnknownPlayer(t *testing.T) {
	db := dbtest.Open(t)
	svc := player.NewService(player.NewRepository(db))

	_, err := svc.AddMoney(context.Background(), uuid.Nil, &player.AddMoneyRequest{PlayerID: 424242, Amount: 5, Account: "bank"})
	if err != player.ErrPlayerNotFound {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestLeaderboardAndOnline(t *testing.T) {
	db := dbtest.Open(t)
	svc := player.NewService(player.NewRepository(db))
	ctx := context.Background()

	board, err := svc.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("empty leaderboard: %v", err)
	}
	if board.MostKills != nil {
		t.Fatalf("expected empty leaderboard, got %+v", board.MostKills)
	}

	createTestPlayer(t, db, "Ann", 3, true)
	createTestPlayer(t, db, "Bob", 12, false)

	board, err = svc.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if board.MostKills == nil || board.MostKills.Username != "Bob" || board.MostKills.Value != 12 {
		t.Fatalf("expected Bob with 12 kills, got %+v", board.MostKills)
	}

	online, err := svc.ListOnline(ctx)
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if len(online) != 1 || online[0].Username != "Ann" {
		t.Fatalf("expected Ann online, got %+v", online)
	}

	counts, err := svc.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 2 || counts.Online != 1 {
		t.Fatalf("expected 2/1, got %+v", counts)
	}
}
