package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"deepwell-rpc/deepwell"
)

// print writes v as indented JSON with --json, and text otherwise.
func (a *app) print(cmd *cobra.Command, v any, text string) error {
	if a.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func (a *app) renderSessions(w io.Writer, sessions []deepwell.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "no sessions")
		return err
	}
	now := a.now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tUSER\tADDRESS\tLOGGED IN\tEXPIRES")
	for _, s := range sessions {
		address := s.IPAddress
		if address == "" {
			address = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			s.SessionID, s.UserID, address,
			humanize.RelTime(s.LoginTime, now, "ago", "from now"),
			humanize.RelTime(s.ExpiresAt, now, "ago", "from now"),
		)
	}
	return tw.Flush()
}

func (a *app) renderUser(w io.Writer, u *deepwell.User) error {
	if u == nil {
		_, err := fmt.Fprintln(w, "no such user")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct{ key, value string }{
		{"id", strconv.FormatInt(int64(u.ID), 10)},
		{"name", u.Name},
		{"email", u.Email},
		{"user page", u.UserPage},
		{"website", u.Website},
		{"about", u.About},
		{"gender", u.Gender},
		{"location", u.Location},
		{"created", a.age(u.CreatedAt)},
		{"updated", a.age(u.UpdatedAt)},
	}
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", row.key, row.value)
	}
	return tw.Flush()
}

func (a *app) age(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.RelTime(t, a.now(), "ago", "from now"))
}

func parseIDs[T ~int64](args []string, what string) ([]T, error) {
	ids := make([]T, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q", what, part)
			}
			ids = append(ids, T(n))
		}
	}
	return ids, nil
}

func parseID[T ~int64](arg, what string) (T, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return T(n), nil
}
