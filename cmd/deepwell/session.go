package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"deepwell-rpc/deepwell"
)

func newLoginCmd(a *app) *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "login USERNAME_OR_EMAIL PASSWORD",
		Short: "Open a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				session, err := c.Login(ctx, args[0], args[1], remote)
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.print(cmd, session, "")
				}
				return a.renderSessions(cmd.OutOrStdout(), []deepwell.Session{session})
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote-address", "", "address recorded with the session")
	return cmd
}

// sessionArgs parses SESSION_ID USER_ID.
func sessionArgs(args []string) (deepwell.SessionID, deepwell.UserID, error) {
	sessionID, err := parseID[deepwell.SessionID](args[0], "session id")
	if err != nil {
		return 0, 0, err
	}
	userID, err := parseID[deepwell.UserID](args[1], "user id")
	if err != nil {
		return 0, 0, err
	}
	return sessionID, userID, nil
}

func newLogoutCmd(a *app) *cobra.Command {
	var others bool
	cmd := &cobra.Command{
		Use:   "logout SESSION_ID USER_ID",
		Short: "End a session, or with --others every other session of the user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, userID, err := sessionArgs(args)
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				if !others {
					if err := c.Logout(ctx, sessionID, userID); err != nil {
						return err
					}
					return a.print(cmd, map[string]any{"session_id": sessionID}, fmt.Sprintf("session %d ended", sessionID))
				}
				ended, err := c.LogoutOthers(ctx, sessionID, userID)
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.print(cmd, ended, "")
				}
				return a.renderSessions(cmd.OutOrStdout(), ended)
			})
		},
	}
	cmd.Flags().BoolVar(&others, "others", false, "end every other session instead")
	return cmd
}

func newCheckSessionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-session SESSION_ID USER_ID",
		Short: "Check that a session is valid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, userID, err := sessionArgs(args)
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				if err := c.CheckSession(ctx, sessionID, userID); err != nil {
					return err
				}
				return a.print(cmd, map[string]bool{"valid": true}, "session is valid")
			})
		},
	}
}
