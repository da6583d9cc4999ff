package deepwell

import (
	"context"
	"errors"
)

// ErrConflict is returned by a Store when a unique name or email constraint fails.
var ErrConflict = errors.New("unique constraint violated")

// Store is the persistence contract behind Server. Lookups that find nothing return
// a nil record and a nil error. Name and email lookups are case-insensitive.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	InsertUser(ctx context.Context, rec UserRecord) (UserID, error)
	UpdateUser(ctx context.Context, user User) error
	UserByID(ctx context.Context, id UserID) (*UserRecord, error)
	UsersByIDs(ctx context.Context, ids []UserID) ([]UserRecord, error)
	UserByName(ctx context.Context, name string) (*UserRecord, error)
	UserByEmail(ctx context.Context, email string) (*UserRecord, error)

	InsertSession(ctx context.Context, session Session) (SessionID, error)
	SessionByID(ctx context.Context, id SessionID) (*Session, error)
	SessionsByUser(ctx context.Context, userID UserID) ([]Session, error)
	DeleteSessions(ctx context.Context, ids []SessionID) error

	InsertLoginAttempt(ctx context.Context, attempt LoginAttempt) error
}
