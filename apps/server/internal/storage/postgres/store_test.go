package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"

	"deepwell-rpc/deepwell"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return New(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users \(name,email,name_key,email_key,password_hash`).
		WithArgs("Alice", "alice@example.com", "alice", "alice@example.com", []byte("hash"), "", "", "", "", "", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.InsertUser(context.Background(), deepwell.UserRecord{
		User:         deepwell.User{Name: "Alice", Email: "alice@example.com", CreatedAt: now, UpdatedAt: now},
		PasswordHash: []byte("hash"),
	})
	if err != nil {
		t.Fatalf("InsertUser err: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	expectationsMet(t, mock)
}

func TestInsertUser_UniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.InsertUser(context.Background(), deepwell.UserRecord{User: deepwell.User{Name: "alice"}})
	if !errors.Is(err, deepwell.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestUserByName(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE name_key = \$1 LIMIT 1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			int64(3), "alice", "alice@example.com", []byte("hash"),
			"", "https://example.com", "hi", "", "", created, created,
		))

	rec, err := store.UserByName(context.Background(), " Alice ")
	if err != nil {
		t.Fatalf("UserByName err: %v", err)
	}
	want := &deepwell.UserRecord{
		User: deepwell.User{
			ID: 3, Name: "alice", Email: "alice@example.com",
			Website: "https://example.com", About: "hi",
			CreatedAt: created, UpdatedAt: created,
		},
		PasswordHash: []byte("hash"),
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	expectationsMet(t, mock)
}

func TestUserByEmail_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email_key = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	rec, err := store.UserByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("UserByEmail err: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
	expectationsMet(t, mock)
}

func TestUserKeysFoldNonASCII(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE name_key = \$1`).
		WithArgs("ärger").
		WillReturnRows(sqlmock.NewRows(userColumns))
	if _, err := store.UserByName(ctx, "ÄRGER"); err != nil {
		t.Fatalf("UserByName err: %v", err)
	}

	mock.ExpectExec(`UPDATE users SET about = \$1, email = \$2, email_key = \$3, gender = \$4, location = \$5, name = \$6, name_key = \$7`).
		WithArgs("", "ÉLODIE@example.com", "élodie@example.com", "", "", "Ärger", "ärger", sqlmock.AnyArg(), "", "", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	user := deepwell.User{ID: 5, Name: "Ärger", Email: "ÉLODIE@example.com", UpdatedAt: time.Now().UTC()}
	if err := store.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser err: %v", err)
	}
	expectationsMet(t, mock)
}

func TestUpdateUser(t *testing.T) {
	store, mock := newMockStore(t)
	user := deepwell.User{ID: 5, Name: "alice", Email: "alice@example.com", UpdatedAt: time.Now().UTC()}

	mock.ExpectExec(`UPDATE users SET .+ WHERE id = \$11`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("UpdateUser err: %v", err)
	}

	mock.ExpectExec(`UPDATE users SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.UpdateUser(context.Background(), user); !errors.Is(err, deepwell.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE users SET`).WillReturnError(&pq.Error{Code: "23505"})
	if err := store.UpdateUser(context.Background(), user); !errors.Is(err, deepwell.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestUsersByIDs(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id IN \(\$1,\$2\) ORDER BY id`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(int64(1), "a", "a@example.com", []byte("h"), "", "", "", "", "", now, now))

	recs, err := store.UsersByIDs(context.Background(), []deepwell.UserID{1, 2})
	if err != nil {
		t.Fatalf("UsersByIDs err: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != 1 {
		t.Fatalf("unexpected records: %+v", recs)
	}

	if recs, err := store.UsersByIDs(context.Background(), nil); err != nil || recs != nil {
		t.Fatalf("empty lookup should not query, got %v, %v", recs, err)
	}
	expectationsMet(t, mock)
}

func TestSessions(t *testing.T) {
	store, mock := newMockStore(t)
	login := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	expires := login.Add(time.Hour)

	mock.ExpectQuery(`INSERT INTO sessions \(user_id,ip_address,login_time,expires_at\)`).
		WithArgs(int64(4), "10.0.0.1", login, expires).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	id, err := store.InsertSession(context.Background(), deepwell.Session{
		UserID: 4, IPAddress: "10.0.0.1", LoginTime: login, ExpiresAt: expires,
	})
	if err != nil || id != 11 {
		t.Fatalf("InsertSession = %d, %v", id, err)
	}

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE user_id = \$1 ORDER BY id`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(int64(11), int64(4), "10.0.0.1", login, expires).
			AddRow(int64(12), int64(4), "", login, expires))
	sessions, err := store.SessionsByUser(context.Background(), 4)
	if err != nil {
		t.Fatalf("SessionsByUser err: %v", err)
	}
	want := []deepwell.Session{
		{SessionID: 11, UserID: 4, IPAddress: "10.0.0.1", LoginTime: login, ExpiresAt: expires},
		{SessionID: 12, UserID: 4, LoginTime: login, ExpiresAt: expires},
	}
	if diff := cmp.Diff(want, sessions); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	if missing, err := store.SessionByID(context.Background(), 99); err != nil || missing != nil {
		t.Fatalf("expected no session, got %+v, %v", missing, err)
	}

	mock.ExpectExec(`DELETE FROM sessions WHERE id IN \(\$1,\$2\)`).
		WithArgs(int64(11), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	if err := store.DeleteSessions(context.Background(), []deepwell.SessionID{11, 12}); err != nil {
		t.Fatalf("DeleteSessions err: %v", err)
	}
	expectationsMet(t, mock)
}

func TestInsertLoginAttempt_UnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO login_attempts`).
		WithArgs(nil, "ghost", "", false, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.InsertLoginAttempt(context.Background(), deepwell.LoginAttempt{
		UsernameOrEmail: "ghost",
		AttemptedAt:     at,
	})
	if err != nil {
		t.Fatalf("InsertLoginAttempt err: %v", err)
	}
	expectationsMet(t, mock)
}
