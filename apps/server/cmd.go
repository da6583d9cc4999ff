package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deepwell-rpc/api"
	"deepwell-rpc/apps/server/internal/config"
	"deepwell-rpc/apps/server/internal/logging"
)

func newRootCmd() *cobra.Command {
	var (
		level       string
		printConfig bool
	)

	rootCmd := &cobra.Command{
		Use:           "deepwell-rpc [--level LEVEL] CONFIG_FILE",
		Short:         "RPC server for DEEPWELL user and session management",
		Version:       api.ProtocolVersion,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("level") {
				if cfg.LogLevel, err = logging.ParseLevel(level); err != nil {
					return fmt.Errorf("--level: %w", err)
				}
			}

			if printConfig {
				out, err := cfg.TOML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logging.New(os.Stderr, cfg.LogLevel))
		},
	}

	rootCmd.Flags().StringVarP(&level, "level", "l", "", "log level: off, trace, debug, info, warn or error")
	rootCmd.Flags().BoolVar(&printConfig, "print-config", false, "print the effective configuration as TOML and exit")
	rootCmd.SetContext(context.Background())
	return rootCmd
}
