package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if err := st.Put(ctx, "backups/2026/snap.json", strings.NewReader(`{"ok":true}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := st.Exists(ctx, "backups/2026/snap.json")
	if err != nil || !ok {
		t.Fatalf("expected object to exist, got %v %v", ok, err)
	}

	rc, err := st.Get(ctx, "backups/2026/snap.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}

	if err := st.Delete(ctx, "backups/2026/snap.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, "backups/2026/snap.json"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if _, err := st.Get(ctx, "backups/2026/snap.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	st, _ := NewLocalStorage(t.TempDir())
	if err := st.Put(context.Background(), "../escape.json", strings.NewReader("x"), ""); err == nil {
		t.Fatalf("expected traversal key rejected")
	}
}
