package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"deepwell-rpc/deepwell"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create, edit and look up users",
	}
	cmd.AddCommand(
		newUserCreateCmd(a),
		newUserEditCmd(a),
		newUserGetCmd(a),
		newUserListCmd(a),
	)
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME EMAIL PASSWORD",
		Short: "Create a user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				id, err := c.CreateUser(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return a.print(cmd, map[string]any{"user_id": id}, fmt.Sprintf("created user %d", id))
			})
		},
	}
}

var editFields = []struct {
	flag, usage string
	field       func(*deepwell.UserMetadata) **string
}{
	{"name", "new user name", func(m *deepwell.UserMetadata) **string { return &m.Name }},
	{"email", "new email address", func(m *deepwell.UserMetadata) **string { return &m.Email }},
	{"user-page", "new user page", func(m *deepwell.UserMetadata) **string { return &m.UserPage }},
	{"website", "new website", func(m *deepwell.UserMetadata) **string { return &m.Website }},
	{"about", "new about text", func(m *deepwell.UserMetadata) **string { return &m.About }},
	{"gender", "new gender", func(m *deepwell.UserMetadata) **string { return &m.Gender }},
	{"location", "new location", func(m *deepwell.UserMetadata) **string { return &m.Location }},
}

func newUserEditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit USER_ID",
		Short: "Change user fields; only the given flags are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID[deepwell.UserID](args[0], "user id")
			if err != nil {
				return err
			}
			var changes deepwell.UserMetadata
			for _, f := range editFields {
				if !cmd.Flags().Changed(f.flag) {
					continue
				}
				value, err := cmd.Flags().GetString(f.flag)
				if err != nil {
					return err
				}
				*f.field(&changes) = &value
			}
			if changes.IsEmpty() {
				return errors.New("nothing to change: pass at least one field flag")
			}
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				if err := c.EditUser(ctx, userID, changes); err != nil {
					return err
				}
				return a.print(cmd, map[string]any{"user_id": userID}, fmt.Sprintf("updated user %d", userID))
			})
		},
	}
	for _, f := range editFields {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	return cmd
}

func newUserGetCmd(a *app) *cobra.Command {
	var byName, byEmail bool
	cmd := &cobra.Command{
		Use:   "get (USER_ID | --name NAME | --email EMAIL)",
		Short: "Look up one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if byName && byEmail {
				return errors.New("--name and --email are mutually exclusive")
			}
			var userID deepwell.UserID
			if !byName && !byEmail {
				id, err := parseID[deepwell.UserID](args[0], "user id")
				if err != nil {
					return err
				}
				userID = id
			}
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				var (
					user *deepwell.User
					err  error
				)
				switch {
				case byName:
					user, err = c.GetUserFromName(ctx, args[0])
				case byEmail:
					user, err = c.GetUserFromEmail(ctx, args[0])
				default:
					user, err = c.GetUserFromID(ctx, userID)
				}
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.print(cmd, user, "")
				}
				return a.renderUser(cmd.OutOrStdout(), user)
			})
		},
	}
	cmd.Flags().BoolVar(&byName, "name", false, "look up by name")
	cmd.Flags().BoolVar(&byEmail, "email", false, "look up by email")
	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list USER_ID...",
		Short: "Look up several users by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs[deepwell.UserID](args, "user id")
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				users, err := c.GetUsersFromIDs(ctx, ids)
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.print(cmd, users, "")
				}
				out := cmd.OutOrStdout()
				for i, user := range users {
					if user == nil {
						fmt.Fprintf(out, "%d\t(missing)\n", ids[i])
						continue
					}
					fmt.Fprintf(out, "%d\t%s\t%s\n", user.ID, user.Name, user.Email)
				}
				return nil
			})
		},
	}
}
