// Command coordinator runs the cluster's single metadata and placement
// authority: storage server and client registration, chunk placement
// ranking, file metadata, and the membership-reaper and
// replication-repair background loops.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"distfs/internal/config"
	"distfs/internal/coordinator"
	"distfs/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewRoleFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler).With("role", "coordinator")

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the distfs coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return run(ctx, logger, configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a coordinator config JSON file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg := config.DefaultCoordinator()
	if err := config.Load(configPath, &cfg); err != nil {
		return err
	}

	coord, err := coordinator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}
	if err := coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	logger.Info("coordinator listening", "host", cfg.Host, "port", cfg.Port)

	<-ctx.Done()

	logger.Info("shutting down")
	if err := coord.Stop(); err != nil {
		return fmt.Errorf("stop coordinator: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
