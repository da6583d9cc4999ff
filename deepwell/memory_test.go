package deepwell

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_UniqueKeysFollowUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id, err := store.InsertUser(ctx, UserRecord{User: User{Name: "Alice", Email: "alice@example.com"}})
	if err != nil {
		t.Fatalf("insert err: %v", err)
	}
	if _, err := store.InsertUser(ctx, UserRecord{User: User{Name: "alice", Email: "x@example.com"}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	rec, _ := store.UserByID(ctx, id)
	renamed := rec.User
	renamed.Name = "Alicia"
	if err := store.UpdateUser(ctx, renamed); err != nil {
		t.Fatalf("update err: %v", err)
	}
	if old, _ := store.UserByName(ctx, "alice"); old != nil {
		t.Fatalf("old name must be released, got %+v", old)
	}
	if _, err := store.InsertUser(ctx, UserRecord{User: User{Name: "alice", Email: "new@example.com"}}); err != nil {
		t.Fatalf("expected released name to be reusable, got %v", err)
	}
	if err := store.UpdateUser(ctx, User{ID: 42}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var ids []SessionID
	for i := 0; i < 3; i++ {
		id, err := store.InsertSession(ctx, Session{UserID: 7})
		if err != nil {
			t.Fatalf("insert session err: %v", err)
		}
		ids = append(ids, id)
	}
	if err := store.DeleteSessions(ctx, ids[:1]); err != nil {
		t.Fatalf("delete err: %v", err)
	}
	left, _ := store.SessionsByUser(ctx, 7)
	if len(left) != 2 || left[0].SessionID != ids[1] || left[1].SessionID != ids[2] {
		t.Fatalf("unexpected sessions: %+v", left)
	}
	if gone, _ := store.SessionByID(ctx, ids[0]); gone != nil {
		t.Fatalf("deleted session still present")
	}
}
