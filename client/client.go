// Package client is a Go client for the deepwell gRPC service. Calls are retried
// on timeout, reconnecting between attempts.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"deepwell-rpc/api"
	"deepwell-rpc/deepwell"
)

// MaxAttempts is how many times a call is tried before giving up.
const MaxAttempts = 5

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned once every attempt of a call has timed out.
var ErrTimeout = errors.New("remote server not responding in time")

type Options struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	Logger  zerolog.Logger
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Client is safe for concurrent use.
type Client struct {
	addr     string
	timeout  time.Duration
	log      zerolog.Logger
	dialOpts []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
	stub *api.DeepwellClient
}

// New creates a client for addr. The connection is established lazily.
func New(addr string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	c := &Client{
		addr:     addr,
		timeout:  opts.Timeout,
		log:      opts.Logger.With().Str("component", "client").Logger(),
		dialOpts: append(dialOpts, opts.DialOptions...),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := grpc.NewClient(c.addr, c.dialOpts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.stub = api.NewDeepwellClient(conn)
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (c *Client) current() *api.DeepwellClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stub
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func retry[R any](ctx context.Context, c *Client, method string, call func(context.Context, *api.DeepwellClient) (R, error)) (R, error) {
	c.log.Info().Str("method", method).Msgf("Method: %s", method)

	var zero R
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := call(attemptCtx, c.current())
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !timedOut {
			return zero, api.FromStatus(err)
		}

		c.log.Warn().
			Str("method", method).
			Int("attempt", attempt).
			Msgf("Remote call timed out (%.3f seconds)", c.timeout.Seconds())
		c.log.Debug().Msg("Attempting to reconnect to source")
		if err := c.connect(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to reconnect to remote server")
			return zero, err
		}
	}
	return zero, ErrTimeout
}

// Protocol returns the server protocol version and warns when it differs from
// ours.
func (c *Client) Protocol(ctx context.Context) (string, error) {
	resp, err := retry(ctx, c, api.MethodProtocol, func(ctx context.Context, s *api.DeepwellClient) (*api.ProtocolResponse, error) {
		return s.Protocol(ctx)
	})
	if err != nil {
		return "", err
	}
	if resp.Version != api.ProtocolVersion {
		c.log.Warn().
			Str("client", api.ProtocolVersion).
			Str("server", resp.Version).
			Msg("Protocol version mismatch")
	}
	return resp.Version, nil
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := retry(ctx, c, api.MethodPing, func(ctx context.Context, s *api.DeepwellClient) (*api.PingResponse, error) {
		return s.Ping(ctx)
	})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Time returns the server clock in unix seconds.
func (c *Client) Time(ctx context.Context) (float64, error) {
	resp, err := retry(ctx, c, api.MethodTime, func(ctx context.Context, s *api.DeepwellClient) (*api.TimeResponse, error) {
		return s.Time(ctx)
	})
	if err != nil {
		return 0, err
	}
	return resp.Time, nil
}

func (c *Client) Login(ctx context.Context, usernameOrEmail, password, remoteAddress string) (deepwell.Session, error) {
	req := &api.LoginRequest{UsernameOrEmail: usernameOrEmail, Password: password, RemoteAddress: remoteAddress}
	resp, err := retry(ctx, c, api.MethodLogin, func(ctx context.Context, s *api.DeepwellClient) (*api.LoginResponse, error) {
		return s.Login(ctx, req)
	})
	if err != nil {
		return deepwell.Session{}, err
	}
	return resp.Session, nil
}

func (c *Client) Logout(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error {
	req := &api.SessionRequest{SessionID: sessionID, UserID: userID}
	_, err := retry(ctx, c, api.MethodLogout, func(ctx context.Context, s *api.DeepwellClient) (*api.Empty, error) {
		return s.Logout(ctx, req)
	})
	return err
}

func (c *Client) LogoutOthers(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) ([]deepwell.Session, error) {
	req := &api.SessionRequest{SessionID: sessionID, UserID: userID}
	resp, err := retry(ctx, c, api.MethodLogoutOthers, func(ctx context.Context, s *api.DeepwellClient) (*api.LogoutOthersResponse, error) {
		return s.LogoutOthers(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) CheckSession(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error {
	req := &api.SessionRequest{SessionID: sessionID, UserID: userID}
	_, err := retry(ctx, c, api.MethodCheckSession, func(ctx context.Context, s *api.DeepwellClient) (*api.Empty, error) {
		return s.CheckSession(ctx, req)
	})
	return err
}

func (c *Client) CreateUser(ctx context.Context, name, email, password string) (deepwell.UserID, error) {
	req := &api.CreateUserRequest{Name: name, Email: email, Password: password}
	resp, err := retry(ctx, c, api.MethodCreateUser, func(ctx context.Context, s *api.DeepwellClient) (*api.CreateUserResponse, error) {
		return s.CreateUser(ctx, req)
	})
	if err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

func (c *Client) EditUser(ctx context.Context, userID deepwell.UserID, changes deepwell.UserMetadata) error {
	req := &api.EditUserRequest{UserID: userID, Changes: changes}
	_, err := retry(ctx, c, api.MethodEditUser, func(ctx context.Context, s *api.DeepwellClient) (*api.Empty, error) {
		return s.EditUser(ctx, req)
	})
	return err
}

func (c *Client) GetUserFromID(ctx context.Context, userID deepwell.UserID) (*deepwell.User, error) {
	req := &api.GetUserFromIDRequest{UserID: userID}
	resp, err := retry(ctx, c, api.MethodGetUserFromID, func(ctx context.Context, s *api.DeepwellClient) (*api.UserResponse, error) {
		return s.GetUserFromID(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// GetUsersFromIDs returns one entry per id, nil where no user exists.
func (c *Client) GetUsersFromIDs(ctx context.Context, userIDs []deepwell.UserID) ([]*deepwell.User, error) {
	req := &api.GetUsersFromIDsRequest{UserIDs: userIDs}
	resp, err := retry(ctx, c, api.MethodGetUsersFromIDs, func(ctx context.Context, s *api.DeepwellClient) (*api.UsersResponse, error) {
		return s.GetUsersFromIDs(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) GetUserFromName(ctx context.Context, name string) (*deepwell.User, error) {
	req := &api.GetUserFromNameRequest{Name: name}
	resp, err := retry(ctx, c, api.MethodGetUserFromName, func(ctx context.Context, s *api.DeepwellClient) (*api.UserResponse, error) {
		return s.GetUserFromName(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) GetUserFromEmail(ctx context.Context, email string) (*deepwell.User, error) {
	req := &api.GetUserFromEmailRequest{Email: email}
	resp, err := retry(ctx, c, api.MethodGetUserFromEmail, func(ctx context.Context, s *api.DeepwellClient) (*api.UserResponse, error) {
		return s.GetUserFromEmail(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}
