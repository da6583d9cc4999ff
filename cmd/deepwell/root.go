package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"deepwell-rpc/api"
	"deepwell-rpc/client"
	"deepwell-rpc/deepwell"
)

// deepwellClient is the part of client.Client the commands use.
type deepwellClient interface {
	Protocol(ctx context.Context) (string, error)
	Ping(ctx context.Context) (string, error)
	Time(ctx context.Context) (float64, error)
	Login(ctx context.Context, usernameOrEmail, password, remoteAddress string) (deepwell.Session, error)
	Logout(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error
	LogoutOthers(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) ([]deepwell.Session, error)
	CheckSession(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error
	CreateUser(ctx context.Context, name, email, password string) (deepwell.UserID, error)
	EditUser(ctx context.Context, userID deepwell.UserID, changes deepwell.UserMetadata) error
	GetUserFromID(ctx context.Context, userID deepwell.UserID) (*deepwell.User, error)
	GetUsersFromIDs(ctx context.Context, userIDs []deepwell.UserID) ([]*deepwell.User, error)
	GetUserFromName(ctx context.Context, name string) (*deepwell.User, error)
	GetUserFromEmail(ctx context.Context, email string) (*deepwell.User, error)
	Close() error
}

var _ deepwellClient = (*client.Client)(nil)

type app struct {
	dial func(addr string, timeout time.Duration, verbose bool) (deepwellClient, error)
	now  func() time.Time

	address string
	timeout time.Duration
	verbose bool
	asJSON  bool
}

func defaultApp() *app {
	return &app{
		dial: func(addr string, timeout time.Duration, verbose bool) (deepwellClient, error) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
			return client.New(addr, client.Options{Timeout: timeout, Logger: log})
		},
		now: time.Now,
	}
}

// withClient dials the server, runs fn and closes the connection.
func (a *app) withClient(cmd *cobra.Command, fn func(context.Context, deepwellClient) error) error {
	c, err := a.dial(a.address, a.timeout, a.verbose)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(cmd.Context(), c)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deepwell",
		Short:         "Client for the deepwell-rpc server",
		Version:       api.ProtocolVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.address, "address", "a", fmt.Sprintf("localhost:%d", 2747), "server address")
	flags.DurationVar(&a.timeout, "timeout", client.DefaultTimeout, "timeout per attempt")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log each call")
	flags.BoolVar(&a.asJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newProtocolCmd(a),
		newPingCmd(a),
		newTimeCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newCheckSessionCmd(a),
		newUserCmd(a),
	)
	rootCmd.SetContext(context.Background())
	return rootCmd
}
