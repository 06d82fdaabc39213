// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuituidan/image-host/internal/container"
	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/env"
	"github.com/tuituidan/image-host/pkg/logging"
)

// newRootCmd builds the command tree; running the root command serves the API
func newRootCmd() *cobra.Command {
	flags := &config.CLIConfig{}

	root := &cobra.Command{
		Use:   "image-host",
		Short: "Image hosting service with tag search",
		Long: `Image hosting service: uploads go to S3 compatible object storage,
metadata is indexed in OpenSearch, Elasticsearch or an embedded bleve index,
and files are searched by tag with highlighted matches.

Configuration precedence: CLI flags > environment variables > config file > defaults`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigFile, "config", "c", env.GetString("CONFIG_FILE", ""), "YAML configuration file")
	pf.BoolVarP(&flags.Debug, "debug", "d", env.GetBool("DEBUG", false), "enable debug logging with source location")
	pf.IntVarP(&flags.Port, "port", "p", 0, "HTTP port (default 8080)")
	pf.StringVar(&flags.Bind, "bind", "", "interface to bind on (default *, all interfaces)")
	pf.BoolVar(&flags.NoJanitor, "nojanitor", env.GetBool("NO_JANITOR", false), "disable the object removal janitor")
	pf.BoolVar(&flags.SimpleHealth, "simple-health", false, "use simple 'OK' health responses")

	root.AddCommand(
		newServeCmd(flags),
		newSearchCmd(flags),
		newDeleteCmd(flags),
		newWarmUpCmd(flags),
		newCheckConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(flags *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func newSearchCmd(flags *config.CLIConfig) *cobra.Command {
	var query entities.FileQuery

	cmd := &cobra.Command{
		Use:   "search [tags]",
		Short: "Search indexed files by tag and print the page as JSON",
		Long: `Search indexed files by tag. Without tags every file is listed, newest first.

Examples:
  image-host search cat
  image-host search "sunset beach" --page 2 --size 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				query.Tags = args[0]
			}
			return withContainer(cmd.Context(), flags, func(ctx context.Context, c *container.Container) error {
				page, err := c.FileService.Search(ctx, query)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			})
		},
	}
	cmd.Flags().IntVar(&query.PageIndex, "page", 0, "zero based page index")
	cmd.Flags().IntVar(&query.PageSize, "size", constants.DefaultPageSize, "page size")
	return cmd
}

func newDeleteCmd(flags *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete files and their stored objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), flags, func(ctx context.Context, c *container.Container) error {
				for _, id := range args {
					if err := c.FileService.Delete(ctx, id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

func newWarmUpCmd(flags *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Load every md5 of the index into a cache and report the count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), flags, func(ctx context.Context, c *container.Container) error {
				if err := c.FileService.WarmUpCache(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cached %d files\n", c.FileCache.Len())
				return nil
			})
		},
	}
}

func newCheckConfigCmd(flags *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print it without secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n", constants.ServiceName, Version, GitCommit, BuildTime)
		},
	}
}

// loadConfig applies file, environment and flags, then validates
func loadConfig(flags *config.CLIConfig) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyCLI(flags)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.AppConfig, flags *config.CLIConfig) *slog.Logger {
	return logging.NewLoggerWithLevel(cfg.Logging.Level, cfg.Logging.Format, flags.Debug)
}

// withContainer runs fn against a container for one-shot commands. NATS, the
// janitor and the warm-up schedule stay off; Shutdown flushes pending index writes.
func withContainer(ctx context.Context, flags *config.CLIConfig, fn func(context.Context, *container.Container) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	cfg.NATS.Enabled = false
	cfg.Janitor.Enabled = false
	cfg.Cache.WarmSchedule = ""

	c, err := container.NewContainer(newLogger(cfg, flags), cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = c.Shutdown(shutdownCtx)
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Search.Timeout+10*time.Second)
	defer cancel()
	ctx, _ = logging.WithRequestID(ctx, c.Logger)
	return fn(ctx, c)
}
