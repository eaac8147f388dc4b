// Command missiond is the Mission Control server daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/config"
	"github.com/avntro/mission-control/db"
	"github.com/avntro/mission-control/internal/logging"
	"github.com/avntro/mission-control/internal/metrics"
	"github.com/avntro/mission-control/internal/version"
	"github.com/avntro/mission-control/live"
	"github.com/avntro/mission-control/report"
	"github.com/avntro/mission-control/schedule"
	"github.com/avntro/mission-control/server"
	"github.com/avntro/mission-control/server/api"
	"github.com/avntro/mission-control/standup"
	"github.com/avntro/mission-control/task"
	"github.com/avntro/mission-control/workspace"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "missiond",
	Short:         "Mission Control server daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (the default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("missiond %s\n", version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mission-control.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "missiond"})
	logger.Info("starting missiond",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	conn, err := db.Open(cfg.Data.DBPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	agents := agent.NewSQLiteStore(conn)
	if err := agents.Seed(agent.FromConfig(cfg.Agents)); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}
	reports := report.NewStore(conn)
	roster := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		roster = append(roster, a.Name)
	}
	osFs := afero.NewOsFs()
	if n, err := reports.ImportDir(osFs, cfg.Data.DocsPath, roster, logger); err != nil {
		logger.Warn("report import failed", slog.Any("err", err))
	} else if n > 0 {
		logger.Info("imported reports", slog.Int("count", n), slog.String("dir", cfg.Data.DocsPath))
	}

	m := metrics.New()
	feed := activity.NewSQLiteLog(conn)
	workspaces := workspace.New(cfg.OpenClaw.Home, cfg.Agents, cfg.Workspaces.AllowedFiles,
		workspace.WithLogger(logger.With("component", "workspace")))
	go func() {
		if err := workspaces.Watch(ctx); err != nil {
			logger.Warn("workspace watch stopped", slog.Any("err", err))
		}
	}()

	h := &api.Handlers{
		Tasks:    task.NewSQLiteStore(conn),
		Agents:   agents,
		Activity: feed,
		Live: live.New(cfg.OpenClaw, cfg.Agents,
			live.WithMetrics(m),
			live.WithLogger(logger.With("component", "live"))),
		Workspaces:   workspaces,
		Schedule:     schedule.New(cfg.Schedule, feed),
		Standups:     standup.NewStore(conn),
		Reports:      reports,
		Gateway:      api.NewGateway(cfg.OpenClaw.GatewayURL, cfg.OpenClaw.GatewayToken, logger),
		Logger:       logger,
		Version:      version.Version,
		GPUStatsFile: cfg.Data.GPUStatsFile,
		FS:           osFs,
		LaneCap:      cfg.Poller.LaneCap,
	}

	srv := server.New(*cfg, h, m, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", slog.Any("err", err))
	}
	return nil
}
