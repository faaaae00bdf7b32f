// x0mesh - Post-Quantum Autonomic Mesh Node
// Copyright (C) 2026 x0tta6bl4-ai
//
// This file is part of x0mesh.
//
// x0mesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// x0mesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with x0mesh. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/x0tta6bl4-ai/x0mesh/config"
	"github.com/x0tta6bl4-ai/x0mesh/internal/core"
	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
	"github.com/x0tta6bl4-ai/x0mesh/pkg/health"
)

var startConfigPath string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node's full lifecycle",
	Long: `Loads the node configuration, wires every component, and runs the
MAPE-K control loop until interrupted (SIGINT/SIGTERM), at which point it
shuts down within the configured graceful_shutdown_deadline.`,
	Example: `  x0node start --config ./config.yaml`,
	RunE:    runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVarP(&startConfigPath, "config", "c", "config.yaml", "Path to the node config file")
}

func setupLogger(cfg *config.LoggingConfig) {
	level := logger.InfoLevel
	switch strings.ToUpper(cfg.Level) {
	case "DEBUG":
		level = logger.DebugLevel
	case "WARN":
		level = logger.WarnLevel
	case "ERROR":
		level = logger.ErrorLevel
	}

	output := os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}

	l := logger.NewLogger(output, level)
	l.SetPrettyPrint(cfg.Format == "pretty")
	logger.SetDefaultLogger(l)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(startConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Logging)

	c, err := core.New(cfg)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				logger.ErrorMsg("metrics server stopped", logger.Error(err))
			}
		}()
		logger.Info("metrics server listening", logger.String("addr", cfg.Metrics.Addr))
	}

	var healthSrv *health.Server
	if cfg.Health.Enabled {
		checker := health.NewChecker(c, cfg.MAPEK.TickInterval)
		healthSrv, err = health.StartServer(cfg.Health.Addr, cfg.Health.Path, checker)
		if err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
	}

	nodeID, epoch, _, _ := c.Identity().CurrentIdentity()
	logger.Info("node starting",
		logger.String("node_id", nodeID.String()),
		logger.Int64("epoch", int64(epoch)),
		logger.String("environment", cfg.Environment))

	c.Start(ctx)
	<-ctx.Done()

	logger.Info("shutdown signal received, stopping node")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Mesh.GracefulShutdownDeadline)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		logger.ErrorMsg("node shutdown returned error", logger.Error(err))
	}
	if healthSrv != nil {
		_ = healthSrv.Stop(shutdownCtx)
	}

	return nil
}
