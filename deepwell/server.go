package deepwell

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
)

// ProtocolVersion is bumped whenever the RPC surface changes incompatibly.
const ProtocolVersion = "0"

const (
	DefaultSessionTTL = 30 * 24 * time.Hour
	defaultCacheSize  = 1024
	maxNameLength     = 64
	pong              = "pong!"
)

type Config struct {
	Store      Store
	SessionTTL time.Duration
	Blacklist  PasswordBlacklist

	// Optional.
	BcryptCost int
	CacheSize  int
	Clock      func() time.Time
}

// Server holds the user and session logic. It is NOT safe for concurrent use:
// a single goroutine must own it and serialize every call.
type Server struct {
	store      Store
	sessionTTL time.Duration
	blacklist  PasswordBlacklist
	bcryptCost int
	now        func() time.Time
	users      *lru.Cache[UserID, User]
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("deepwell: store is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("deepwell: bcrypt cost %d out of range", cfg.BcryptCost)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Blacklist == nil {
		cfg.Blacklist = PasswordBlacklist{}
	}

	users, err := lru.New[UserID, User](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("deepwell: user cache: %w", err)
	}

	return &Server{
		store:      cfg.Store,
		sessionTTL: cfg.SessionTTL,
		blacklist:  cfg.Blacklist,
		bcryptCost: cfg.BcryptCost,
		now:        cfg.Clock,
		users:      users,
	}, nil
}

func (s *Server) Close() error {
	s.users.Purge()
	return s.store.Close()
}

// Misc

func (s *Server) Protocol() string {
	return ProtocolVersion
}

func (s *Server) Ping(ctx context.Context) (string, error) {
	if err := s.store.Ping(ctx); err != nil {
		return "", Internal(fmt.Errorf("ping store: %w", err))
	}
	return pong, nil
}

// Time returns the wall clock as fractional unix seconds.
func (s *Server) Time() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}

// Sessions

// TryLogin authenticates by user name or email and opens a new session.
func (s *Server) TryLogin(ctx context.Context, usernameOrEmail, password, remoteAddress string) (Session, error) {
	key := strings.TrimSpace(usernameOrEmail)
	now := s.now().UTC()
	attempt := LoginAttempt{
		UsernameOrEmail: key,
		IPAddress:       strings.TrimSpace(remoteAddress),
		AttemptedAt:     now,
	}

	rec, err := s.lookupLogin(ctx, key)
	if err != nil {
		return Session{}, err
	}
	if rec == nil || !checkPassword(rec.PasswordHash, password) {
		if rec != nil {
			attempt.UserID = rec.ID
		}
		if err := s.store.InsertLoginAttempt(ctx, attempt); err != nil {
			return Session{}, Internal(fmt.Errorf("record login attempt: %w", err))
		}
		return Session{}, ErrAuthenticationFailed
	}

	attempt.UserID = rec.ID
	attempt.Success = true
	if err := s.store.InsertLoginAttempt(ctx, attempt); err != nil {
		return Session{}, Internal(fmt.Errorf("record login attempt: %w", err))
	}

	session := Session{
		UserID:    rec.ID,
		IPAddress: attempt.IPAddress,
		LoginTime: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	id, err := s.store.InsertSession(ctx, session)
	if err != nil {
		return Session{}, Internal(fmt.Errorf("insert session: %w", err))
	}
	session.SessionID = id
	return session, nil
}

func (s *Server) lookupLogin(ctx context.Context, key string) (*UserRecord, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := s.store.UserByName(ctx, key)
	if err != nil {
		return nil, Internal(fmt.Errorf("lookup user by name: %w", err))
	}
	if rec != nil || !strings.Contains(key, "@") {
		return rec, nil
	}
	rec, err = s.store.UserByEmail(ctx, key)
	if err != nil {
		return nil, Internal(fmt.Errorf("lookup user by email: %w", err))
	}
	return rec, nil
}

// CheckSession succeeds when the session exists, belongs to userID, and has not expired.
func (s *Server) CheckSession(ctx context.Context, sessionID SessionID, userID UserID) error {
	_, err := s.validSession(ctx, sessionID, userID)
	return err
}

func (s *Server) validSession(ctx context.Context, sessionID SessionID, userID UserID) (*Session, error) {
	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, Internal(fmt.Errorf("lookup session: %w", err))
	}
	if session == nil || session.UserID != userID {
		return nil, ErrInvalidSession
	}
	if session.Expired(s.now()) {
		if err := s.store.DeleteSessions(ctx, []SessionID{session.SessionID}); err != nil {
			return nil, Internal(fmt.Errorf("delete expired session: %w", err))
		}
		return nil, ErrInvalidSession
	}
	return session, nil
}

// EndSession logs a single session out.
func (s *Server) EndSession(ctx context.Context, sessionID SessionID, userID UserID) error {
	if _, err := s.validSession(ctx, sessionID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteSessions(ctx, []SessionID{sessionID}); err != nil {
		return Internal(fmt.Errorf("delete session: %w", err))
	}
	return nil
}

// EndOtherSessions logs out every session of userID except sessionID and returns
// the sessions that were removed.
func (s *Server) EndOtherSessions(ctx context.Context, sessionID SessionID, userID UserID) ([]Session, error) {
	if _, err := s.validSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	all, err := s.store.SessionsByUser(ctx, userID)
	if err != nil {
		return nil, Internal(fmt.Errorf("list sessions: %w", err))
	}

	others := make([]Session, 0, len(all))
	ids := make([]SessionID, 0, len(all))
	for _, session := range all {
		if session.SessionID == sessionID {
			continue
		}
		others = append(others, session)
		ids = append(ids, session.SessionID)
	}
	if len(ids) == 0 {
		return others, nil
	}
	if err := s.store.DeleteSessions(ctx, ids); err != nil {
		return nil, Internal(fmt.Errorf("delete sessions: %w", err))
	}
	return others, nil
}

// Users

func (s *Server) CreateUser(ctx context.Context, name, email, password string) (UserID, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if err := validateName(name); err != nil {
		return 0, err
	}
	if err := validateEmail(email); err != nil {
		return 0, err
	}
	if err := s.validatePassword(password); err != nil {
		return 0, err
	}
	if err := s.checkUnique(ctx, 0, name, email); err != nil {
		return 0, err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	id, err := s.store.InsertUser(ctx, UserRecord{
		User: User{
			Name:      name,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return 0, ErrNameExists
		}
		return 0, Internal(fmt.Errorf("insert user: %w", err))
	}
	return id, nil
}

func (s *Server) EditUser(ctx context.Context, userID UserID, changes UserMetadata) error {
	rec, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return Internal(fmt.Errorf("lookup user: %w", err))
	}
	if rec == nil {
		return ErrUserNotFound
	}
	if changes.IsEmpty() {
		return nil
	}

	user := rec.User
	if changes.Name != nil {
		name := strings.TrimSpace(*changes.Name)
		if err := validateName(name); err != nil {
			return err
		}
		user.Name = name
	}
	if changes.Email != nil {
		email := strings.TrimSpace(*changes.Email)
		if err := validateEmail(email); err != nil {
			return err
		}
		user.Email = email
	}
	if err := s.checkUnique(ctx, userID, user.Name, user.Email); err != nil {
		return err
	}
	applyOptional(&user.UserPage, changes.UserPage)
	applyOptional(&user.Website, changes.Website)
	applyOptional(&user.About, changes.About)
	applyOptional(&user.Gender, changes.Gender)
	applyOptional(&user.Location, changes.Location)
	user.UpdatedAt = s.now().UTC()

	// The cached copy is stale from here on, whatever the store says.
	s.users.Remove(userID)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return ErrNameExists
		case errors.Is(err, ErrUserNotFound):
			return ErrUserNotFound
		}
		return Internal(fmt.Errorf("update user: %w", err))
	}
	s.users.Add(userID, user)
	return nil
}

func applyOptional(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func (s *Server) checkUnique(ctx context.Context, self UserID, name, email string) error {
	byName, err := s.store.UserByName(ctx, name)
	if err != nil {
		return Internal(fmt.Errorf("lookup user by name: %w", err))
	}
	if byName != nil && byName.ID != self {
		return ErrNameExists
	}
	byEmail, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return Internal(fmt.Errorf("lookup user by email: %w", err))
	}
	if byEmail != nil && byEmail.ID != self {
		return ErrEmailExists
	}
	return nil
}

func (s *Server) GetUserFromID(ctx context.Context, userID UserID) (*User, error) {
	if user, ok := s.users.Get(userID); ok {
		return &user, nil
	}
	rec, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, Internal(fmt.Errorf("lookup user: %w", err))
	}
	return s.remember(rec), nil
}

// GetUsersFromIDs returns one entry per requested id, in request order, with nil
// for ids that do not exist.
func (s *Server) GetUsersFromIDs(ctx context.Context, userIDs []UserID) ([]*User, error) {
	found := make(map[UserID]User, len(userIDs))
	var missing []UserID
	for _, id := range userIDs {
		if user, ok := s.users.Get(id); ok {
			found[id] = user
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		recs, err := s.store.UsersByIDs(ctx, missing)
		if err != nil {
			return nil, Internal(fmt.Errorf("lookup users: %w", err))
		}
		for i := range recs {
			found[recs[i].ID] = *s.remember(&recs[i])
		}
	}

	out := make([]*User, len(userIDs))
	for i, id := range userIDs {
		if user, ok := found[id]; ok {
			out[i] = &user
		}
	}
	return out, nil
}

func (s *Server) GetUserFromName(ctx context.Context, name string) (*User, error) {
	rec, err := s.store.UserByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, Internal(fmt.Errorf("lookup user by name: %w", err))
	}
	return s.remember(rec), nil
}

func (s *Server) GetUserFromEmail(ctx context.Context, email string) (*User, error) {
	rec, err := s.store.UserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, Internal(fmt.Errorf("lookup user by email: %w", err))
	}
	return s.remember(rec), nil
}

func (s *Server) remember(rec *UserRecord) *User {
	if rec == nil {
		return nil
	}
	user := rec.User
	s.users.Add(user.ID, user)
	return &user
}

func validateName(name string) error {
	if name == "" {
		return InvalidArgument("user name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return InvalidArgument("user name must be at most %d characters", maxNameLength)
	}
	if strings.Contains(name, "@") {
		return InvalidArgument("user name must not contain '@'")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return InvalidArgument("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return InvalidArgument("invalid email address %q", email)
	}
	return nil
}
