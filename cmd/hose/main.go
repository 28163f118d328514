package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/hose/internal/cmd/client"
	replicatorrun "github.com/rzbill/hose/internal/cmd/replicator"
	serverrun "github.com/rzbill/hose/internal/cmd/server"
	cfgpkg "github.com/rzbill/hose/internal/config"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hose",
		Short: "Hose runtime CLI",
		Long:  "Hose is a content-filtering publish/subscribe server. This CLI manages the server, the replicator, and basic client operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the hose server (HTTP API + trimmer)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			backend, _ := cmd.Flags().GetString("backend")
			redisURL, _ := cmd.Flags().GetString("redis-url")
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfgpkg.FromEnv(&cfg); err != nil {
				return err
			}
			if backend != "" {
				cfg.Backend = cfgpkg.Backend(backend)
			}
			if redisURL != "" {
				cfg.RedisURL = redisURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if logLevel != "" {
				_ = os.Setenv("HOSE_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("HOSE_LOG_FORMAT", logFormat)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:  dataDir,
				HTTPAddr: httpAddr,
				Fsync:    mode,
				Config:   cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().String("backend", "", "Storage backend: pebble|redis (default from config)")
	serverStartCmd.Flags().String("redis-url", "", "Redis URL for the redis backend")
	serverStartCmd.Flags().String("config", os.Getenv("HOSE_CONFIG"), "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("log-level", os.Getenv("HOSE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("HOSE_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// replicator run
	replicatorCmd := &cobra.Command{Use: "replicator", Short: "Replicator commands"}
	replicatorRunCmd := &cobra.Command{
		Use:   "run",
		Short: "Tail one message log into another",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcURL, _ := cmd.Flags().GetString("source")
			srcDir, _ := cmd.Flags().GetString("source-dir")
			dstURL, _ := cmd.Flags().GetString("dest")
			dstDir, _ := cmd.Flags().GetString("dest-dir")
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfgpkg.FromEnv(&cfg); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return replicatorrun.Run(ctx, replicatorrun.Options{
				Source: replicatorrun.Endpoint{RedisURL: srcURL, DataDir: srcDir},
				Dest:   replicatorrun.Endpoint{RedisURL: dstURL, DataDir: dstDir},
				Config: cfg,
			})
		},
	}
	replicatorRunCmd.Flags().String("source", "", "Source Redis URL")
	replicatorRunCmd.Flags().String("source-dir", "", "Source Pebble data directory")
	replicatorRunCmd.Flags().String("dest", "", "Destination Redis URL")
	replicatorRunCmd.Flags().String("dest-dir", "", "Destination Pebble data directory")
	replicatorRunCmd.Flags().String("config", os.Getenv("HOSE_CONFIG"), "Config file (JSON or YAML)")
	replicatorCmd.AddCommand(replicatorRunCmd)
	rootCmd.AddCommand(replicatorCmd)

	// client commands
	rootCmd.AddCommand(clientcmd.NewPostCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewStreamCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("HOSE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
