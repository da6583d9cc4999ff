// Package sqlite stores deepwell users and sessions in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"deepwell-rpc/deepwell"
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	connectTimeout = 5 * time.Second
)

var userColumns = []string{
	"id", "name", "email", "password_hash",
	"user_page", "website", "about", "gender", "location",
	"created_at_ms", "updated_at_ms",
}

var sessionColumns = []string{"id", "user_id", "ip_address", "login_time_ms", "expires_at_ms"}

type Store struct {
	db *sql.DB
}

var _ deepwell.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		parent := filepath.Dir(path)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: the database is only used from the core owner, and an
	// in-memory database lives exactly as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("sqlite store opened")
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertUser(ctx context.Context, rec deepwell.UserRecord) (deepwell.UserID, error) {
	query, args, err := sq.Insert("users").
		Columns("name", "email", "name_key", "email_key", "password_hash", "user_page", "website", "about", "gender", "location", "created_at_ms", "updated_at_ms").
		Values(rec.Name, rec.Email, deepwell.FoldKey(rec.Name), deepwell.FoldKey(rec.Email), rec.PasswordHash, rec.UserPage, rec.Website, rec.About, rec.Gender, rec.Location,
			toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building user insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, deepwell.ErrConflict
		}
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return deepwell.UserID(id), nil
}

func (s *Store) UpdateUser(ctx context.Context, user deepwell.User) error {
	query, args, err := sq.Update("users").
		Set("name", user.Name).
		Set("email", user.Email).
		Set("name_key", deepwell.FoldKey(user.Name)).
		Set("email_key", deepwell.FoldKey(user.Email)).
		Set("user_page", user.UserPage).
		Set("website", user.Website).
		Set("about", user.About).
		Set("gender", user.Gender).
		Set("location", user.Location).
		Set("updated_at_ms", toMillis(user.UpdatedAt)).
		Where(sq.Eq{"id": int64(user.ID)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return deepwell.ErrConflict
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return deepwell.ErrUserNotFound
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id deepwell.UserID) (*deepwell.UserRecord, error) {
	return s.userWhere(ctx, sq.Eq{"id": int64(id)})
}

func (s *Store) UserByName(ctx context.Context, name string) (*deepwell.UserRecord, error) {
	return s.userWhere(ctx, sq.Eq{"name_key": deepwell.FoldKey(name)})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*deepwell.UserRecord, error) {
	return s.userWhere(ctx, sq.Eq{"email_key": deepwell.FoldKey(email)})
}

func (s *Store) UsersByIDs(ctx context.Context, ids []deepwell.UserID) ([]deepwell.UserRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	query, args, err := sq.Select(userColumns...).From("users").Where(sq.Eq{"id": raw}).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building users query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var out []deepwell.UserRecord
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Store) userWhere(ctx context.Context, pred sq.Sqlizer) (*deepwell.UserRecord, error) {
	query, args, err := sq.Select(userColumns...).From("users").Where(pred).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}
	rec, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*deepwell.UserRecord, error) {
	var (
		rec                  deepwell.UserRecord
		id                   int64
		createdMs, updatedMs int64
	)
	err := row.Scan(
		&id, &rec.Name, &rec.Email, &rec.PasswordHash,
		&rec.UserPage, &rec.Website, &rec.About, &rec.Gender, &rec.Location,
		&createdMs, &updatedMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	rec.ID = deepwell.UserID(id)
	rec.CreatedAt = fromMillis(createdMs)
	rec.UpdatedAt = fromMillis(updatedMs)
	return &rec, nil
}

func (s *Store) InsertSession(ctx context.Context, session deepwell.Session) (deepwell.SessionID, error) {
	query, args, err := sq.Insert("sessions").
		Columns("user_id", "ip_address", "login_time_ms", "expires_at_ms").
		Values(int64(session.UserID), session.IPAddress, toMillis(session.LoginTime), toMillis(session.ExpiresAt)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building session insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return deepwell.SessionID(id), nil
}

func (s *Store) SessionByID(ctx context.Context, id deepwell.SessionID) (*deepwell.Session, error) {
	query, args, err := sq.Select(sessionColumns...).From("sessions").Where(sq.Eq{"id": int64(id)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	session, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

func (s *Store) SessionsByUser(ctx context.Context, userID deepwell.UserID) ([]deepwell.Session, error) {
	query, args, err := sq.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"user_id": int64(userID)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building sessions query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []deepwell.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	return out, rows.Err()
}

func scanSession(row scanner) (*deepwell.Session, error) {
	var (
		session            deepwell.Session
		id, userID         int64
		loginMs, expiresMs int64
	)
	if err := row.Scan(&id, &userID, &session.IPAddress, &loginMs, &expiresMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	session.SessionID = deepwell.SessionID(id)
	session.UserID = deepwell.UserID(userID)
	session.LoginTime = fromMillis(loginMs)
	session.ExpiresAt = fromMillis(expiresMs)
	return &session, nil
}

func (s *Store) DeleteSessions(ctx context.Context, ids []deepwell.SessionID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	query, args, err := sq.Delete("sessions").Where(sq.Eq{"id": raw}).ToSql()
	if err != nil {
		return fmt.Errorf("building session delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting sessions: %w", err)
	}
	return nil
}

func (s *Store) InsertLoginAttempt(ctx context.Context, attempt deepwell.LoginAttempt) error {
	var userID sql.NullInt64
	if attempt.UserID != 0 {
		userID = sql.NullInt64{Int64: int64(attempt.UserID), Valid: true}
	}
	query, args, err := sq.Insert("login_attempts").
		Columns("user_id", "username_or_email", "ip_address", "success", "attempted_at_ms").
		Values(userID, attempt.UsernameOrEmail, attempt.IPAddress, attempt.Success, toMillis(attempt.AttemptedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building login attempt insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting login attempt: %w", err)
	}
	return nil
}

// LoginAttemptCount reports how many attempts were recorded for userID.
func (s *Store) LoginAttemptCount(ctx context.Context, userID deepwell.UserID) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("login_attempts").Where(sq.Eq{"user_id": int64(userID)}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting login attempts: %w", err)
	}
	return n, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
