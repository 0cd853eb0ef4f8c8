package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/internal/daemon/coordinator"
	"github.com/Unidata/tds-sub001/internal/daemon/pidfile"
	"github.com/Unidata/tds-sub001/internal/daemon/rebuild"
	"github.com/Unidata/tds-sub001/internal/daemon/server"
	"github.com/Unidata/tds-sub001/logging"
	"github.com/Unidata/tds-sub001/pkg/daemon"
	"github.com/Unidata/tds-sub001/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long running rebuilds may take to finish
// after a stop signal.
const shutdownTimeout = 30 * time.Second

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the tdm daemon",
		Long:  "The daemon watches collections, runs rebuilds and sends triggers to the configured servers.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

// newRebuilder returns the command rebuilder, or a trigger-only rebuilder
// when no command is configured.
func newRebuilder(cfg *config.Config) (rebuild.Rebuilder, error) {
	if len(cfg.Rebuild.Command) == 0 {
		return rebuild.TriggerOnly, nil
	}
	return rebuild.NewCommandRebuilder(cfg.Rebuild.Command, cfg.Rebuild.Dir, cfg.Rebuild.UnchangedExitCode, logging.NewLogger("rebuild"))
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the tdm daemon in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger := logging.NewLogger("tdmd")
			pidPath := paths.PidFilePath()
			sockPath := paths.SocketPath()

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("failed to create state directories: %w", err)
			}

			// 1. Acquire Lock
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// 2. Build the coordinator
			rebuilder, err := newRebuilder(cfg)
			if err != nil {
				return err
			}
			coord, err := coordinator.New(cfg, rebuilder, logging.NewLogger("coordinator"))
			if err != nil {
				return err
			}

			// 3. Setup Server
			srv := server.New(coord, logging.NewLogger("server"))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var wg sync.WaitGroup

			// 4. Config watcher
			watcher, err := daemon.NewConfigWatcher(cfgPath, 0, coord.Store().BroadcastConfigReload, logging.NewLogger("config-watcher"))
			if err != nil {
				logger.WithError(err).Warn("Config file changes will not be reported")
			} else {
				wg.Add(1)
				go func() {
					defer wg.Done()
					watcher.Start(ctx)
				}()
			}

			// 5. Event sources
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := coord.Start(ctx); err != nil {
					logger.WithError(err).Error("Event sources failed")
				}
			}()

			// 6. Shutdown on signal
			go func() {
				<-ctx.Done()
				logger.Info("Received stop signal")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer shutdownCancel()

				if err := coord.Stop(shutdownCtx); err != nil {
					logger.WithError(err).Warn("Rebuilds still running at shutdown")
				}
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
			}()

			// 7. Start Server (Blocking)
			logger.WithFields(logrus.Fields{
				"pid":    os.Getpid(),
				"config": cfgPath,
				"key":    coord.KeyPath(),
			}).Info("Starting daemon")
			if err := srv.ListenAndServe(sockPath); err != nil {
				cancel()
				return fmt.Errorf("server error: %w", err)
			}

			wg.Wait()
			logger.Info("Daemon stopped")
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// daemonStatus is the --json output of `daemon status`.
type daemonStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Socket  string `json:"socket"`
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, _ := json.MarshalIndent(daemonStatus{Running: running, PID: pid, Socket: paths.SocketPath()}, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else if running {
				fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d)\nSocket: %s\n", pid, paths.SocketPath())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			}

			if !running {
				os.Exit(1) // Return non-zero for stopped state (useful for scripts)
			}
			return nil
		},
	}
}
