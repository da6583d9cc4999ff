package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deepwell-rpc/deepwell"
)

func TestAPI_SessionLifecycle(t *testing.T) {
	f := newFixture(t, false, Options{})
	ctx := context.Background()

	userID, err := f.api.CreateUser(ctx, "alice", "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	session, err := f.api.Login(ctx, "alice", "correct horse", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if err := f.api.CheckSession(ctx, session.SessionID, userID); err != nil {
		t.Fatalf("CheckSession err: %v", err)
	}
	if err := f.api.Logout(ctx, session.SessionID, userID); err != nil {
		t.Fatalf("Logout err: %v", err)
	}
	err = f.api.CheckSession(ctx, session.SessionID, userID)
	if !errors.Is(err, deepwell.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession after logout, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("domain failure must not look like an unavailable core")
	}
}

func TestAPI_LogoutOthers(t *testing.T) {
	f := newFixture(t, false, Options{})
	ctx := context.Background()

	userID, err := f.api.CreateUser(ctx, "alice", "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	keep, err := f.api.Login(ctx, "alice", "correct horse", "")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	other, err := f.api.Login(ctx, "alice@example.com", "correct horse", "")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}

	ended, err := f.api.LogoutOthers(ctx, keep.SessionID, userID)
	if err != nil {
		t.Fatalf("LogoutOthers err: %v", err)
	}
	if len(ended) != 1 || ended[0].SessionID != other.SessionID {
		t.Fatalf("unexpected ended sessions: %+v", ended)
	}
}

func TestAPI_GetUsersFromIDsKeepsOrder(t *testing.T) {
	f := newFixture(t, false, Options{})
	ctx := context.Background()

	first, err := f.api.CreateUser(ctx, "first", "first@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	third, err := f.api.CreateUser(ctx, "third", "third@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}

	users, err := f.api.GetUsersFromIDs(ctx, []deepwell.UserID{first, 9999, third})
	if err != nil {
		t.Fatalf("GetUsersFromIDs err: %v", err)
	}
	if len(users) != 3 || users[0] == nil || users[1] != nil || users[2] == nil {
		t.Fatalf("unexpected result shape: %+v", users)
	}
	if users[0].ID != first || users[2].ID != third {
		t.Fatalf("results out of order: %d, %d", users[0].ID, users[2].ID)
	}
}

func TestAPI_GetUsersFromIDsRejectsTooMany(t *testing.T) {
	f := newFixture(t, false, Options{})

	ids := make([]deepwell.UserID, MaxUserIDs+1)
	for i := range ids {
		ids[i] = deepwell.UserID(i + 1)
	}
	_, err := f.api.GetUsersFromIDs(context.Background(), ids)
	if deepwell.KindOf(err) != deepwell.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	// Exactly the limit is fine; it also orders the check below after the owner.
	if _, err := f.api.GetUsersFromIDs(context.Background(), ids[:MaxUserIDs]); err != nil {
		t.Fatalf("expected %d ids to be accepted, got %v", MaxUserIDs, err)
	}
	f.core.mu.Lock()
	calls := f.core.batchCalls
	f.core.mu.Unlock()
	if calls != 1 {
		t.Fatalf("oversized request reached the core: %d calls", calls)
	}
}

func TestAPI_EmptyLookupsReachCore(t *testing.T) {
	f := newFixture(t, false, Options{})
	ctx := context.Background()

	user, err := f.api.GetUserFromName(ctx, "  ")
	if err != nil || user != nil {
		t.Fatalf("expected no user for an empty name, got %v, %v", user, err)
	}
	user, err = f.api.GetUserFromEmail(ctx, "")
	if err != nil || user != nil {
		t.Fatalf("expected no user for an empty email, got %v, %v", user, err)
	}
	if _, err := f.api.Login(ctx, "", "pw", ""); deepwell.KindOf(err) != deepwell.KindAuthenticationFailed {
		t.Fatalf("expected authentication failure for an empty login, got %v", err)
	}
	if diff := cmp.Diff([]string{"  "}, f.core.seenNames()); diff != "" {
		t.Fatalf("empty name lookup did not reach the core (-want +got):\n%s", diff)
	}
}

func TestAPI_MiscCalls(t *testing.T) {
	f := newFixture(t, false, Options{})
	ctx := context.Background()

	version, err := f.api.Protocol(ctx)
	if err != nil || version != deepwell.ProtocolVersion {
		t.Fatalf("Protocol = %q, %v", version, err)
	}
	pong, err := f.api.Ping(ctx)
	if err != nil || pong != "pong!" {
		t.Fatalf("Ping = %q, %v", pong, err)
	}
	now, err := f.api.Time(ctx)
	if err != nil || now <= 0 {
		t.Fatalf("Time = %v, %v", now, err)
	}
}

func TestAPI_EditAndLookup(t *testing.T) {
	f := newFixture(t, false, Options{})
	ctx := context.Background()

	id, err := f.api.CreateUser(ctx, "alice", "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	location := "Lisbon"
	if err := f.api.EditUser(ctx, id, deepwell.UserMetadata{Location: &location}); err != nil {
		t.Fatalf("EditUser err: %v", err)
	}
	user, err := f.api.GetUserFromEmail(ctx, "ALICE@example.com")
	if err != nil || user == nil || user.Location != "Lisbon" {
		t.Fatalf("GetUserFromEmail = %+v, %v", user, err)
	}
	byID, err := f.api.GetUserFromID(ctx, id)
	if err != nil || byID == nil || byID.Name != "alice" {
		t.Fatalf("GetUserFromID = %+v, %v", byID, err)
	}
	if err := f.api.EditUser(ctx, id+100, deepwell.UserMetadata{Location: &location}); !errors.Is(err, deepwell.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
