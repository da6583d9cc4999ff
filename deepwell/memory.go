package deepwell

import (
	"context"
	"sort"
	"strings"
)

// MemoryStore keeps everything in maps. Like Server it has no locking of its own:
// it must only be used from the goroutine that owns the Server.
type MemoryStore struct {
	nextUserID    UserID
	nextSessionID SessionID

	users         map[UserID]UserRecord
	usersByName   map[string]UserID // lower-cased name -> user
	usersByEmail  map[string]UserID // lower-cased email -> user
	sessions      map[SessionID]Session
	loginAttempts []LoginAttempt
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[UserID]UserRecord),
		usersByName:  make(map[string]UserID),
		usersByEmail: make(map[string]UserID),
		sessions:     make(map[SessionID]Session),
	}
}

// FoldKey is the form under which stores index user names and emails, so that
// uniqueness and lookups ignore case the same way on every backend.
func FoldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) InsertUser(_ context.Context, rec UserRecord) (UserID, error) {
	nameKey, emailKey := FoldKey(rec.Name), FoldKey(rec.Email)
	if _, exists := m.usersByName[nameKey]; exists {
		return 0, ErrConflict
	}
	if _, exists := m.usersByEmail[emailKey]; exists {
		return 0, ErrConflict
	}

	m.nextUserID++
	rec.ID = m.nextUserID
	m.users[rec.ID] = rec
	m.usersByName[nameKey] = rec.ID
	m.usersByEmail[emailKey] = rec.ID
	return rec.ID, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user User) error {
	prev, exists := m.users[user.ID]
	if !exists {
		return ErrUserNotFound
	}
	nameKey, emailKey := FoldKey(user.Name), FoldKey(user.Email)
	if owner, taken := m.usersByName[nameKey]; taken && owner != user.ID {
		return ErrConflict
	}
	if owner, taken := m.usersByEmail[emailKey]; taken && owner != user.ID {
		return ErrConflict
	}

	delete(m.usersByName, FoldKey(prev.Name))
	delete(m.usersByEmail, FoldKey(prev.Email))
	m.users[user.ID] = UserRecord{User: user, PasswordHash: prev.PasswordHash}
	m.usersByName[nameKey] = user.ID
	m.usersByEmail[emailKey] = user.ID
	return nil
}

func (m *MemoryStore) UserByID(_ context.Context, id UserID) (*UserRecord, error) {
	rec, exists := m.users[id]
	if !exists {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) UsersByIDs(_ context.Context, ids []UserID) ([]UserRecord, error) {
	out := make([]UserRecord, 0, len(ids))
	for _, id := range ids {
		if rec, exists := m.users[id]; exists {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) UserByName(ctx context.Context, name string) (*UserRecord, error) {
	id, exists := m.usersByName[FoldKey(name)]
	if !exists {
		return nil, nil
	}
	return m.UserByID(ctx, id)
}

func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	id, exists := m.usersByEmail[FoldKey(email)]
	if !exists {
		return nil, nil
	}
	return m.UserByID(ctx, id)
}

func (m *MemoryStore) InsertSession(_ context.Context, session Session) (SessionID, error) {
	m.nextSessionID++
	session.SessionID = m.nextSessionID
	m.sessions[session.SessionID] = session
	return session.SessionID, nil
}

func (m *MemoryStore) SessionByID(_ context.Context, id SessionID) (*Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, nil
	}
	return &session, nil
}

func (m *MemoryStore) SessionsByUser(_ context.Context, userID UserID) ([]Session, error) {
	var out []Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *MemoryStore) DeleteSessions(_ context.Context, ids []SessionID) error {
	for _, id := range ids {
		delete(m.sessions, id)
	}
	return nil
}

func (m *MemoryStore) InsertLoginAttempt(_ context.Context, attempt LoginAttempt) error {
	m.loginAttempts = append(m.loginAttempts, attempt)
	return nil
}

// LoginAttempts returns the recorded attempts, oldest first.
func (m *MemoryStore) LoginAttempts() []LoginAttempt {
	return append([]LoginAttempt(nil), m.loginAttempts...)
}
