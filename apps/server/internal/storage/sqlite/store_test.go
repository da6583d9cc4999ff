package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"deepwell-rpc/deepwell"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), MemoryPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Users(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	id, err := store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "Alice", Email: "alice@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if err != nil {
		t.Fatalf("InsertUser err: %v", err)
	}

	_, err = store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "ALICE", Email: "other@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if !errors.Is(err, deepwell.ErrConflict) {
		t.Fatalf("expected ErrConflict for case-folded duplicate, got %v", err)
	}

	byName, err := store.UserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("UserByName err: %v", err)
	}
	want := &deepwell.UserRecord{
		User:         deepwell.User{ID: id, Name: "Alice", Email: "alice@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	}
	if diff := cmp.Diff(want, byName); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	missing, err := store.UserByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Fatalf("expected no user, got %+v, %v", missing, err)
	}

	updated := byName.User
	updated.About = "hello"
	updated.UpdatedAt = now.Add(time.Minute)
	if err := store.UpdateUser(ctx, updated); err != nil {
		t.Fatalf("UpdateUser err: %v", err)
	}
	again, err := store.UserByID(ctx, id)
	if err != nil || again == nil || again.About != "hello" || !again.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Fatalf("update not persisted: %+v, %v", again, err)
	}

	if err := store.UpdateUser(ctx, deepwell.User{ID: 404, Name: "x", Email: "x@example.com"}); !errors.Is(err, deepwell.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	recs, err := store.UsersByIDs(ctx, []deepwell.UserID{404, id})
	if err != nil || len(recs) != 1 || recs[0].ID != id {
		t.Fatalf("UsersByIDs = %+v, %v", recs, err)
	}
}

func TestStore_FoldsNonASCIIKeys(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	id, err := store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "Ärger", Email: "ÉLODIE@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if err != nil {
		t.Fatalf("InsertUser err: %v", err)
	}

	byName, err := store.UserByName(ctx, "ärger")
	if err != nil || byName == nil || byName.ID != id {
		t.Fatalf("UserByName(ärger) = %+v, %v", byName, err)
	}
	byEmail, err := store.UserByEmail(ctx, "élodie@EXAMPLE.com")
	if err != nil || byEmail == nil || byEmail.ID != id {
		t.Fatalf("UserByEmail(élodie) = %+v, %v", byEmail, err)
	}

	_, err = store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "ärger", Email: "other@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if !errors.Is(err, deepwell.ErrConflict) {
		t.Fatalf("expected ErrConflict for a non-ASCII case variant, got %v", err)
	}

	otherID, err := store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "Öl", Email: "oel@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if err != nil {
		t.Fatalf("InsertUser err: %v", err)
	}
	renamed := deepwell.User{ID: otherID, Name: "ÄRGER", Email: "oel@example.com", CreatedAt: now, UpdatedAt: now}
	if err := store.UpdateUser(ctx, renamed); !errors.Is(err, deepwell.ErrConflict) {
		t.Fatalf("expected ErrConflict renaming onto a case variant, got %v", err)
	}
}

func TestStore_Sessions(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	userID, err := store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "bob", Email: "bob@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if err != nil {
		t.Fatalf("InsertUser err: %v", err)
	}

	var ids []deepwell.SessionID
	for i := 0; i < 3; i++ {
		id, err := store.InsertSession(ctx, deepwell.Session{
			UserID:    userID,
			IPAddress: "10.0.0.1",
			LoginTime: now,
			ExpiresAt: now.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertSession err: %v", err)
		}
		ids = append(ids, id)
	}

	got, err := store.SessionByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("SessionByID err: %v", err)
	}
	want := &deepwell.Session{SessionID: ids[0], UserID: userID, IPAddress: "10.0.0.1", LoginTime: now, ExpiresAt: now.Add(time.Hour)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}

	if err := store.DeleteSessions(ctx, ids[:2]); err != nil {
		t.Fatalf("DeleteSessions err: %v", err)
	}
	left, err := store.SessionsByUser(ctx, userID)
	if err != nil || len(left) != 1 || left[0].SessionID != ids[2] {
		t.Fatalf("SessionsByUser = %+v, %v", left, err)
	}
}

func TestStore_WithServer(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	srv, err := deepwell.NewServer(deepwell.Config{Store: store, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewServer err: %v", err)
	}

	userID, err := srv.CreateUser(ctx, "carol", "carol@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	if _, err := srv.CreateUser(ctx, "Carol", "c2@example.com", "correct horse"); !errors.Is(err, deepwell.ErrNameExists) {
		t.Fatalf("expected ErrNameExists, got %v", err)
	}

	session, err := srv.TryLogin(ctx, "CAROL@example.com", "correct horse", "")
	if err != nil {
		t.Fatalf("TryLogin err: %v", err)
	}
	if _, err := srv.TryLogin(ctx, "carol", "wrong horse", ""); !errors.Is(err, deepwell.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if err := srv.CheckSession(ctx, session.SessionID, userID); err != nil {
		t.Fatalf("CheckSession err: %v", err)
	}
	if err := srv.EndSession(ctx, session.SessionID, userID); err != nil {
		t.Fatalf("EndSession err: %v", err)
	}
	if err := srv.CheckSession(ctx, session.SessionID, userID); !errors.Is(err, deepwell.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	n, err := store.LoginAttemptCount(ctx, userID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 login attempts, got %d (%v)", n, err)
	}
	if pong, err := srv.Ping(ctx); err != nil || pong != "pong!" {
		t.Fatalf("Ping = %q, %v", pong, err)
	}
}

func TestOpen_FileIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deepwell.db")
	ctx := context.Background()

	store, err := Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if _, err := store.InsertUser(ctx, deepwell.UserRecord{
		User:         deepwell.User{Name: "dave", Email: "dave@example.com"},
		PasswordHash: []byte("hash"),
	}); err != nil {
		t.Fatalf("InsertUser err: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}

	reopened, err := Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen err: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.UserByName(ctx, "dave")
	if err != nil || rec == nil {
		t.Fatalf("expected persisted user, got %+v, %v", rec, err)
	}
}
