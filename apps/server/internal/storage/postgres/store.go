// Package postgres stores deepwell users and sessions in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"deepwell-rpc/deepwell"
)

const connectTimeout = 5 * time.Second

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "name", "email", "password_hash",
	"user_page", "website", "about", "gender", "location",
	"created_at", "updated_at",
}

var sessionColumns = []string{"id", "user_id", "ip_address", "login_time", "expires_at"}

type Store struct {
	db *sql.DB
}

var _ deepwell.Store = (*Store)(nil)

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
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
	query, args, err := psq.Insert("users").
		Columns("name", "email", "name_key", "email_key", "password_hash", "user_page", "website", "about", "gender", "location", "created_at", "updated_at").
		Values(rec.Name, rec.Email, deepwell.FoldKey(rec.Name), deepwell.FoldKey(rec.Email), rec.PasswordHash, rec.UserPage, rec.Website, rec.About, rec.Gender, rec.Location, rec.CreatedAt, rec.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building user insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, deepwell.ErrConflict
		}
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return deepwell.UserID(id), nil
}

func (s *Store) UpdateUser(ctx context.Context, user deepwell.User) error {
	query, args, err := psq.Update("users").
		SetMap(map[string]any{
			"name":       user.Name,
			"email":      user.Email,
			"name_key":   deepwell.FoldKey(user.Name),
			"email_key":  deepwell.FoldKey(user.Email),
			"user_page":  user.UserPage,
			"website":    user.Website,
			"about":      user.About,
			"gender":     user.Gender,
			"location":   user.Location,
			"updated_at": user.UpdatedAt,
		}).
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
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n == 0 {
		return deepwell.ErrUserNotFound
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id deepwell.UserID) (*deepwell.UserRecord, error) {
	return s.userWhere(ctx, sq.Eq{"id": int64(id)})
}

func (s *Store) UsersByIDs(ctx context.Context, ids []deepwell.UserID) ([]deepwell.UserRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psq.Select(userColumns...).
		From("users").
		Where(sq.Eq{"id": int64s(ids)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building users query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *Store) UserByName(ctx context.Context, name string) (*deepwell.UserRecord, error) {
	return s.userWhere(ctx, sq.Eq{"name_key": deepwell.FoldKey(name)})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*deepwell.UserRecord, error) {
	return s.userWhere(ctx, sq.Eq{"email_key": deepwell.FoldKey(email)})
}

func (s *Store) userWhere(ctx context.Context, pred sq.Sqlizer) (*deepwell.UserRecord, error) {
	query, args, err := psq.Select(userColumns...).From("users").Where(pred).Limit(1).ToSql()
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
		rec deepwell.UserRecord
		id  int64
	)
	err := row.Scan(
		&id, &rec.Name, &rec.Email, &rec.PasswordHash,
		&rec.UserPage, &rec.Website, &rec.About, &rec.Gender, &rec.Location,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	rec.ID = deepwell.UserID(id)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (s *Store) InsertSession(ctx context.Context, session deepwell.Session) (deepwell.SessionID, error) {
	query, args, err := psq.Insert("sessions").
		Columns("user_id", "ip_address", "login_time", "expires_at").
		Values(int64(session.UserID), session.IPAddress, session.LoginTime, session.ExpiresAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building session insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	return deepwell.SessionID(id), nil
}

func (s *Store) SessionByID(ctx context.Context, id deepwell.SessionID) (*deepwell.Session, error) {
	query, args, err := psq.Select(sessionColumns...).From("sessions").Where(sq.Eq{"id": int64(id)}).ToSql()
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
	query, args, err := psq.Select(sessionColumns...).
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
	defer func() { _ = rows.Close() }()

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
		session    deepwell.Session
		id, userID int64
	)
	if err := row.Scan(&id, &userID, &session.IPAddress, &session.LoginTime, &session.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	session.SessionID = deepwell.SessionID(id)
	session.UserID = deepwell.UserID(userID)
	session.LoginTime = session.LoginTime.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
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
	query, args, err := psq.Delete("sessions").Where(sq.Eq{"id": raw}).ToSql()
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
	query, args, err := psq.Insert("login_attempts").
		Columns("user_id", "username_or_email", "ip_address", "success", "attempted_at").
		Values(userID, attempt.UsernameOrEmail, attempt.IPAddress, attempt.Success, attempt.AttemptedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building login attempt insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting login attempt: %w", err)
	}
	return nil
}

func int64s(ids []deepwell.UserID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
