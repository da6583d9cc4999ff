package deepwell

import "time"

type UserID int64

type SessionID int64

// User is the public view of an account. Password material never leaves the store.
type User struct {
	ID        UserID    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UserPage  string    `json:"user_page"`
	Website   string    `json:"website"`
	About     string    `json:"about"`
	Gender    string    `json:"gender"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserMetadata lists profile changes for EditUser. Nil fields are left unchanged.
type UserMetadata struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	UserPage *string `json:"user_page,omitempty"`
	Website  *string `json:"website,omitempty"`
	About    *string `json:"about,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Location *string `json:"location,omitempty"`
}

func (m UserMetadata) IsEmpty() bool {
	return m.Name == nil && m.Email == nil && m.UserPage == nil && m.Website == nil &&
		m.About == nil && m.Gender == nil && m.Location == nil
}

type Session struct {
	SessionID SessionID `json:"session_id"`
	UserID    UserID    `json:"user_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	LoginTime time.Time `json:"login_time"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginAttempt is an audit row written for every TryLogin call.
type LoginAttempt struct {
	UserID          UserID // zero when no account matched
	UsernameOrEmail string
	IPAddress       string
	Success         bool
	AttemptedAt     time.Time
}

// UserRecord is a user row as persisted, including the password hash.
type UserRecord struct {
	User
	PasswordHash []byte
}
