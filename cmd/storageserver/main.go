// Command storageserver runs one storage server: chunk lifecycle (2PC
// prepare/commit/rollback, append, retrieve), space accounting, and
// periodic heartbeats to the coordinator.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"distfs/internal/config"
	"distfs/internal/logging"
	"distfs/internal/model"
	"distfs/internal/storageserver"

	"github.com/spf13/cobra"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewRoleFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler).With("role", "storageserver")

	var (
		configPath string
		id         string
		x, y       float64
		spaceMB    int64
	)

	rootCmd := &cobra.Command{
		Use:   "storageserver",
		Short: "Run a distfs storage server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return run(ctx, logger, configPath, id, x, y, spaceMB, cmd.Flags().Changed("space"))
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a storage server config JSON file")
	rootCmd.Flags().StringVar(&id, "id", "", "server id (default: persisted identity, or a freshly minted one)")
	rootCmd.Flags().Float64Var(&x, "x", 0, "placement location X coordinate")
	rootCmd.Flags().Float64Var(&y, "y", 0, "placement location Y coordinate")
	rootCmd.Flags().Int64Var(&spaceMB, "space", 0, "space limit in MiB (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, id string, x, y float64, spaceMB int64, spaceSet bool) error {
	cfg := config.DefaultStorageServer()
	if err := config.Load(configPath, &cfg); err != nil {
		return err
	}
	if spaceSet {
		cfg.SpaceLimitMB = spaceMB
	}

	// id is left empty when --id isn't given: storageserver.New loads a
	// prior persisted identity from server_info.json, or mints a fresh
	// one, so the flag only matters for pinning an explicit id.
	srv, err := storageserver.New(cfg, id, model.Location{X: x, Y: y}, logger)
	if err != nil {
		return fmt.Errorf("build storage server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start storage server: %w", err)
	}
	logger.Info("storage server started", "data_dir", cfg.DataDir)

	<-ctx.Done()

	logger.Info("shutting down")
	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop storage server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
