package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/incremental"
	"github.com/cerberusindex/cerberus/internal/ipc"
	"github.com/cerberusindex/cerberus/internal/logging"
	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
	"github.com/cerberusindex/cerberus/internal/watch"
)

func init() {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Control the watcher daemon",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the watcher in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}

			logPath := logging.ProjectLogPath(root)
			logger, cleanup, err := logging.Setup(logging.Config{
				Level:     "info",
				FilePath:  logPath,
				MaxSizeMB: cfg.Watch.MaxLogSizeMB,
				MaxFiles:  3,
			})
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := store.Open(cfg.IndexPath(root))
			if err != nil {
				return err
			}
			defer st.Close()

			engine := incremental.NewEngine(st, scan.NewScanner(logger), root, logger)
			watcher := watch.NewWatcher(watch.Config{
				Root:           root,
				DebounceWindow: time.Duration(cfg.Watch.DebounceSeconds) * time.Second,
				LogPath:        logPath,
				MaxLogBytes:    int64(cfg.Watch.MaxLogSizeMB) * 1024 * 1024,
				MaxCPUPercent:  cfg.Watch.MaxCPUPercent,
			}, engine, logger)

			server := ipc.NewServer(watch.SocketPath(root), st, root, watcher, logger)
			go func() { _ = server.Serve(cmd.Context()) }()

			return watcher.Run(cmd.Context())
		},
	}
	watchCmd.AddCommand(startCmd)

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal the running watcher to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := projectContext()
			if err != nil {
				return err
			}
			pidfile := watch.NewPIDFile(watch.PIDPath(root))
			if !pidfile.IsRunning() {
				return fmt.Errorf("no watcher running for %s", root)
			}
			return pidfile.Signal(syscall.SIGTERM)
		},
	}
	watchCmd.AddCommand(stopCmd)

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the running watcher and run a fresh one in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := projectContext()
			if err != nil {
				return err
			}
			pidfile := watch.NewPIDFile(watch.PIDPath(root))
			if pidfile.IsRunning() {
				if err := pidfile.Signal(syscall.SIGTERM); err != nil {
					return err
				}
				// Give the old watcher a moment to release the PID lock.
				for i := 0; i < 50 && pidfile.IsRunning(); i++ {
					time.Sleep(100 * time.Millisecond)
				}
			}
			return startCmd.RunE(cmd, args)
		},
	}
	watchCmd.AddCommand(restartCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report watcher status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := projectContext()
			if err != nil {
				return err
			}
			client := ipc.NewClient(watch.SocketPath(root))
			status, err := client.Status(cmd.Context())
			if err != nil {
				return emit(map[string]any{"running": false})
			}
			return emit(status)
		},
	}
	watchCmd.AddCommand(statusCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Report watcher self-health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := projectContext()
			if err != nil {
				return err
			}
			raw, err := ipc.NewClient(watch.SocketPath(root)).Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	watchCmd.AddCommand(healthCmd)

	rootCmd.AddCommand(watchCmd)
}
