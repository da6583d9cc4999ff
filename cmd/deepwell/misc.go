package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newProtocolCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "protocol",
		Short: "Print the server protocol version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				version, err := c.Protocol(ctx)
				if err != nil {
					return err
				}
				return a.print(cmd, map[string]string{"version": version}, version)
			})
		},
	}
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				start := a.now()
				msg, err := c.Ping(ctx)
				if err != nil {
					return err
				}
				elapsed := a.now().Sub(start)
				return a.print(cmd, map[string]any{"message": msg, "elapsed_ms": elapsed.Milliseconds()},
					fmt.Sprintf("%s (%s)", msg, elapsed.Round(time.Microsecond)))
			})
		},
	}
}

func newTimeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Print the server clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, c deepwellClient) error {
				seconds, err := c.Time(ctx)
				if err != nil {
					return err
				}
				whole, frac := math.Modf(seconds)
				server := time.Unix(int64(whole), int64(frac*1e9)).UTC()
				return a.print(cmd, map[string]any{"time": seconds},
					fmt.Sprintf("%s (%s)", server.Format(time.RFC3339), describeSkew(a.now(), server)))
			})
		},
	}
}

// describeSkew reports how the local clock compares to the server's.
func describeSkew(local, server time.Time) string {
	if server.Sub(local).Abs() < time.Second {
		return "clocks in sync"
	}
	return "local clock " + humanize.RelTime(local, server, "behind", "ahead")
}
