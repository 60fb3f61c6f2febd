package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/strand/internal/cmd/client"
	serverrun "github.com/rzbill/strand/internal/cmd/server"
	cfgpkg "github.com/rzbill/strand/internal/config"
	pebblestore "github.com/rzbill/strand/internal/storage/pebble"
	logpkg "github.com/rzbill/strand/pkg/log"
)

func main() {
	// Respect STRAND_LOG_LEVEL / STRAND_LOG_FORMAT for CLI and driver output.
	level := os.Getenv("STRAND_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if os.Getenv("STRAND_LOG_FORMAT") == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger.
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "strand",
		Short: "Strand driver CLI",
		Long:  "Strand is a shared-memory log-buffer transport. This CLI runs the driver and basic operations.",
	}

	driverCmd := &cobra.Command{Use: "driver", Short: "Driver commands"}
	driverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the strand driver (admin gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			logsDir, _ := cmd.Flags().GetString("logs-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			configPath, _ := cmd.Flags().GetString("config")
			termFlag, _ := cmd.Flags().GetString("term-length")
			mtuFlag, _ := cmd.Flags().GetString("mtu")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if termFlag != "" {
				n, err := bytefmt.ToBytes(termFlag)
				if err != nil {
					return fmt.Errorf("invalid --term-length: %w", err)
				}
				cfg.TermLength = int32(n)
			}
			if mtuFlag != "" {
				n, err := bytefmt.ToBytes(mtuFlag)
				if err != nil {
					return fmt.Errorf("invalid --mtu: %w", err)
				}
				cfg.MTULength = int32(n)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				Dir:      dir,
				LogsDir:  logsDir,
				GRPCAddr: grpcAddr,
				HTTPAddr: httpAddr,
				Fsync:    mode,
				Config:   cfg,
				Logger:   logger,
			}); err != nil {
				return fmt.Errorf("driver error: %w", err)
			}
			return nil
		},
	}
	driverStartCmd.Flags().String("dir", "", "Data directory (default: OS-specific application data directory)")
	driverStartCmd.Flags().String("logs-dir", "", "Log buffer directory (default: <dir>/logs; use a /dev/shm path for cross-process publishers)")
	driverStartCmd.Flags().String("grpc", ":50051", "Admin gRPC listen address (empty disables)")
	driverStartCmd.Flags().String("http", ":8080", "Status HTTP listen address (empty disables)")
	driverStartCmd.Flags().String("fsync", "always", "Registry fsync mode: always|never")
	driverStartCmd.Flags().String("config", "", "JSON config file path")
	driverStartCmd.Flags().String("term-length", "", "Term buffer length override (suffixed: 64K, 16M)")
	driverStartCmd.Flags().String("mtu", "", "MTU override including the frame header")
	driverCmd.AddCommand(driverStartCmd)
	rootCmd.AddCommand(driverCmd)

	rootCmd.AddCommand(clientcmd.NewAdminCommand())
	rootCmd.AddCommand(clientcmd.NewLogCommand())
	rootCmd.AddCommand(clientcmd.NewBenchCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
