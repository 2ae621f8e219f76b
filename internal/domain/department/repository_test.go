package department_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/department"
	"github.com/kcrp/rp-dashboard/internal/pkg/database/dbtest"
)

func TestSeededRosterAndDocuments(t *testing.T) {
	db := dbtest.Open(t)
	repo := department.NewRepository(db)
	ctx := context.Background()

	command, err := repo.ListCommand(ctx)
	if err != nil {
		t.Fatalf("list command: %v", err)
	}
	perDept := map[string]int{}
	for _, m := range command {
		perDept[m.Department]++
	}
	for _, d := range []string{"kcso", "msp", "mfd"} {
		if perDept[d] < 1 {
			t.Fatalf("expected seeded command for %s, got %v", d, perDept)
		}
	}

	m := &department.CommandMember{Department: "mfd", Name: "Test Chief", Rank: "Captain"}
	if err := repo.AddCommand(ctx, m); err != nil {
		t.Fatalf("add command: %v", err)
	}
	t.Cleanup(func() { _ = repo.RemoveCommand(context.Background(), "mfd", m.ID) })
	if m.ID == 0 || m.RankOrder <= perDept["mfd"] {
		t.Fatalf("expected appended entry, got %+v", m)
	}

	if err := repo.RemoveCommand(ctx, "kcso", m.ID); err != department.ErrCommandNotFound {
		t.Fatalf("expected ErrCommandNotFound across departments, got %v", err)
	}

	docs, err := repo.ListDocuments(ctx)
	if err != nil || len(docs) == 0 {
		t.Fatalf("list documents: %v (%d)", err, len(docs))
	}
	doc := docs[0]
	updated, err := repo.UpdateDocument(ctx, doc.Department, doc.ID, doc.Title, doc.Content, uuid.Nil)
	if err != nil {
		t.Fatalf("update document: %v", err)
	}
	if updated.UpdatedBy.Valid || updated.UpdatedAt.Before(doc.UpdatedAt) {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := repo.UpdateDocument(ctx, "nope", doc.ID, "x", "", uuid.Nil); err != department.ErrDocumentNotFound {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
