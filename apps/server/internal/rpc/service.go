package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"deepwell-rpc/api"
	"deepwell-rpc/apps/server/internal/gateway"
	"deepwell-rpc/apps/server/internal/logging"
)

// Service adapts gateway.API to the gRPC service interface.
type Service struct {
	api     *gateway.API
	log     zerolog.Logger
	timeout time.Duration
}

var _ api.DeepwellServer = (*Service)(nil)

// NewService wraps a. Calls that arrive without a deadline get timeout, when it
// is positive.
func NewService(a *gateway.API, log zerolog.Logger, timeout time.Duration) *Service {
	return &Service{
		api:     a,
		log:     logging.Component(log, "rpc"),
		timeout: timeout,
	}
}

func (s *Service) begin(ctx context.Context, method string) (context.Context, context.CancelFunc) {
	s.log.Info().Str(logging.MethodField, method).Msgf("Method: %s", method)
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// toStatus maps gateway and domain failures onto gRPC status errors.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, gateway.ErrQueueClosed) {
		return api.Unavailable(err)
	}
	return api.ToStatus(err)
}

func (s *Service) Protocol(ctx context.Context, _ *api.Empty) (*api.ProtocolResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodProtocol)
	defer cancel()
	version, err := s.api.Protocol(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ProtocolResponse{Version: version}, nil
}

func (s *Service) Ping(ctx context.Context, _ *api.Empty) (*api.PingResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodPing)
	defer cancel()
	pong, err := s.api.Ping(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.PingResponse{Message: pong}, nil
}

func (s *Service) Time(ctx context.Context, _ *api.Empty) (*api.TimeResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodTime)
	defer cancel()
	now, err := s.api.Time(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TimeResponse{Time: now}, nil
}

func (s *Service) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodLogin)
	defer cancel()
	session, err := s.api.Login(ctx, req.UsernameOrEmail, req.Password, req.RemoteAddress)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.LoginResponse{Session: session}, nil
}

func (s *Service) Logout(ctx context.Context, req *api.SessionRequest) (*api.Empty, error) {
	ctx, cancel := s.begin(ctx, api.MethodLogout)
	defer cancel()
	if err := s.api.Logout(ctx, req.SessionID, req.UserID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Service) LogoutOthers(ctx context.Context, req *api.SessionRequest) (*api.LogoutOthersResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodLogoutOthers)
	defer cancel()
	sessions, err := s.api.LogoutOthers(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.LogoutOthersResponse{Sessions: sessions}, nil
}

func (s *Service) CheckSession(ctx context.Context, req *api.SessionRequest) (*api.Empty, error) {
	ctx, cancel := s.begin(ctx, api.MethodCheckSession)
	defer cancel()
	if err := s.api.CheckSession(ctx, req.SessionID, req.UserID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Service) CreateUser(ctx context.Context, req *api.CreateUserRequest) (*api.CreateUserResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodCreateUser)
	defer cancel()
	id, err := s.api.CreateUser(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CreateUserResponse{UserID: id}, nil
}

func (s *Service) EditUser(ctx context.Context, req *api.EditUserRequest) (*api.Empty, error) {
	ctx, cancel := s.begin(ctx, api.MethodEditUser)
	defer cancel()
	if err := s.api.EditUser(ctx, req.UserID, req.Changes); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Service) GetUserFromID(ctx context.Context, req *api.GetUserFromIDRequest) (*api.UserResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodGetUserFromID)
	defer cancel()
	user, err := s.api.GetUserFromID(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UserResponse{User: user}, nil
}

func (s *Service) GetUsersFromIDs(ctx context.Context, req *api.GetUsersFromIDsRequest) (*api.UsersResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodGetUsersFromIDs)
	defer cancel()
	users, err := s.api.GetUsersFromIDs(ctx, req.UserIDs)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UsersResponse{Users: users}, nil
}

func (s *Service) GetUserFromName(ctx context.Context, req *api.GetUserFromNameRequest) (*api.UserResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodGetUserFromName)
	defer cancel()
	user, err := s.api.GetUserFromName(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UserResponse{User: user}, nil
}

func (s *Service) GetUserFromEmail(ctx context.Context, req *api.GetUserFromEmailRequest) (*api.UserResponse, error) {
	ctx, cancel := s.begin(ctx, api.MethodGetUserFromEmail)
	defer cancel()
	user, err := s.api.GetUserFromEmail(ctx, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UserResponse{User: user}, nil
}
