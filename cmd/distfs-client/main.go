// Command distfs-client drives upload, download, and append operations
// against a running coordinator and its storage servers.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"distfs/internal/client"
	"distfs/internal/config"
	"distfs/internal/logging"
	"distfs/internal/model"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewRoleFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler).With("role", "client")

	var (
		configPath string
		id         string
		x, y       float64
	)

	rootCmd := &cobra.Command{
		Use:   "distfs-client",
		Short: "Upload, download, or append to files in a distfs cluster",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a client config JSON file")
	rootCmd.PersistentFlags().StringVar(&id, "id", "", "client id (default: a freshly generated petname)")
	rootCmd.PersistentFlags().Float64Var(&x, "x", 0, "placement location X coordinate")
	rootCmd.PersistentFlags().Float64Var(&y, "y", 0, "placement location Y coordinate")

	newClient := func() (*client.Client, error) {
		cfg := config.DefaultClient()
		if err := config.Load(configPath, &cfg); err != nil {
			return nil, err
		}
		clientID := id
		if clientID == "" {
			clientID = petname.Generate(2, "-")
		}
		return client.New(cfg, clientID, model.Location{X: x, Y: y}, logger)
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <local-path> <remote-path>",
		Short: "Upload a local file to remote-path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return fmt.Errorf("build client: %w", err)
			}
			defer c.Close()
			return c.Upload(args[0], args[1])
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download <remote-path> <local-path>",
		Short: "Download remote-path to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return fmt.Errorf("build client: %w", err)
			}
			defer c.Close()
			return c.Download(args[0], args[1])
		},
	}

	appendCmd := &cobra.Command{
		Use:   "append <remote-path> <local-path>",
		Short: "Append a local file's bytes to an existing remote-path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			c, err := newClient()
			if err != nil {
				return fmt.Errorf("build client: %w", err)
			}
			defer c.Close()
			return c.Append(args[0], data)
		},
	}

	rootCmd.AddCommand(uploadCmd, downloadCmd, appendCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
