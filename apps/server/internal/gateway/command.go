package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"deepwell-rpc/deepwell"
)

// Command is one queued call against the core. The set of commands is closed:
// only this package can implement it.
type Command interface {
	Kind() string
	meta() *commandMeta
	fail(err error) bool
}

type commandMeta struct {
	id       uuid.UUID
	ctx      context.Context
	enqueued time.Time
}

func (m *commandMeta) meta() *commandMeta { return m }

func (m *commandMeta) stamp(ctx context.Context) {
	m.id = uuid.New()
	m.ctx = ctx
	m.enqueued = time.Now()
}

// detached returns the caller's context stripped of its deadline. A command that
// has been accepted runs to completion even if the caller stops waiting.
func (m *commandMeta) detached() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(m.ctx)
}

type protocolCmd struct {
	commandMeta
	replyTo[string]
}

type pingCmd struct {
	commandMeta
	replyTo[string]
}

type timeCmd struct {
	commandMeta
	replyTo[float64]
}

type loginCmd struct {
	commandMeta
	replyTo[deepwell.Session]
	usernameOrEmail string
	password        string
	remoteAddress   string
}

type logoutCmd struct {
	commandMeta
	replyTo[struct{}]
	sessionID deepwell.SessionID
	userID    deepwell.UserID
}

type logoutOthersCmd struct {
	commandMeta
	replyTo[[]deepwell.Session]
	sessionID deepwell.SessionID
	userID    deepwell.UserID
}

type checkSessionCmd struct {
	commandMeta
	replyTo[struct{}]
	sessionID deepwell.SessionID
	userID    deepwell.UserID
}

type createUserCmd struct {
	commandMeta
	replyTo[deepwell.UserID]
	name     string
	email    string
	password string
}

type editUserCmd struct {
	commandMeta
	replyTo[struct{}]
	userID  deepwell.UserID
	changes deepwell.UserMetadata
}

type getUserFromIDCmd struct {
	commandMeta
	replyTo[*deepwell.User]
	userID deepwell.UserID
}

type getUsersFromIDsCmd struct {
	commandMeta
	replyTo[[]*deepwell.User]
	userIDs []deepwell.UserID
}

type getUserFromNameCmd struct {
	commandMeta
	replyTo[*deepwell.User]
	name string
}

type getUserFromEmailCmd struct {
	commandMeta
	replyTo[*deepwell.User]
	email string
}

func (*protocolCmd) Kind() string         { return "protocol" }
func (*pingCmd) Kind() string             { return "ping" }
func (*timeCmd) Kind() string             { return "time" }
func (*loginCmd) Kind() string            { return "login" }
func (*logoutCmd) Kind() string           { return "logout" }
func (*logoutOthersCmd) Kind() string     { return "logout_others" }
func (*checkSessionCmd) Kind() string     { return "check_session" }
func (*createUserCmd) Kind() string       { return "create_user" }
func (*editUserCmd) Kind() string         { return "edit_user" }
func (*getUserFromIDCmd) Kind() string    { return "get_user_from_id" }
func (*getUsersFromIDsCmd) Kind() string  { return "get_users_from_ids" }
func (*getUserFromNameCmd) Kind() string  { return "get_user_from_name" }
func (*getUserFromEmailCmd) Kind() string { return "get_user_from_email" }
