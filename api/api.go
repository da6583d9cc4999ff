// Package api defines the deepwell RPC surface: service and method names, wire
// messages, the gRPC service descriptor and the error mapping shared by the
// server and its clients.
package api

import "deepwell-rpc/deepwell"

// ProtocolVersion must match between client and server.
const ProtocolVersion = deepwell.ProtocolVersion

const ServiceName = "deepwell.v0.Deepwell"

// Method names, as used on the WebSocket transport and in logs.
const (
	MethodProtocol         = "protocol"
	MethodPing             = "ping"
	MethodTime             = "time"
	MethodLogin            = "login"
	MethodLogout           = "logout"
	MethodLogoutOthers     = "logout_others"
	MethodCheckSession     = "check_session"
	MethodCreateUser       = "create_user"
	MethodEditUser         = "edit_user"
	MethodGetUserFromID    = "get_user_from_id"
	MethodGetUsersFromIDs  = "get_users_from_ids"
	MethodGetUserFromName  = "get_user_from_name"
	MethodGetUserFromEmail = "get_user_from_email"
)

type Empty struct{}

type ProtocolResponse struct {
	Version string `json:"version"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type TimeResponse struct {
	// Seconds since the unix epoch.
	Time float64 `json:"time"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
	RemoteAddress   string `json:"remote_address,omitempty"`
}

type LoginResponse struct {
	Session deepwell.Session `json:"session"`
}

// SessionRequest names a session of a user. It is the request of logout,
// logout_others and check_session.
type SessionRequest struct {
	SessionID deepwell.SessionID `json:"session_id"`
	UserID    deepwell.UserID    `json:"user_id"`
}

type LogoutOthersResponse struct {
	Sessions []deepwell.Session `json:"sessions"`
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserResponse struct {
	UserID deepwell.UserID `json:"user_id"`
}

type EditUserRequest struct {
	UserID  deepwell.UserID       `json:"user_id"`
	Changes deepwell.UserMetadata `json:"changes"`
}

type GetUserFromIDRequest struct {
	UserID deepwell.UserID `json:"user_id"`
}

type GetUsersFromIDsRequest struct {
	UserIDs []deepwell.UserID `json:"user_ids"`
}

type GetUserFromNameRequest struct {
	Name string `json:"name"`
}

type GetUserFromEmailRequest struct {
	Email string `json:"email"`
}

// UserResponse carries an optional user; User is nil when none matched.
type UserResponse struct {
	User *deepwell.User `json:"user"`
}

type UsersResponse struct {
	Users []*deepwell.User `json:"users"`
}
