/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/skald_relay/internal/config"
	"github.com/friendsincode/skald_relay/internal/db"
	"github.com/friendsincode/skald_relay/internal/dispatch"
	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/fetch"
	"github.com/friendsincode/skald_relay/internal/logging"
	"github.com/friendsincode/skald_relay/internal/publish"
	"github.com/friendsincode/skald_relay/internal/store"
	"github.com/friendsincode/skald_relay/internal/tokens"
	"github.com/friendsincode/skald_relay/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "skaldrelay",
	Short:   "Skald Relay - scheduled video publish dispatcher",
	Long:    "Skald Relay dispatches queued video submissions on a fixed slot schedule: it downloads each payload and republishes it to the configured target.",
	Version: version.Version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

// initDatabase connects, migrates, and installs telemetry callbacks.
func initDatabase() (*gorm.DB, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return nil, fmt.Errorf("register database callbacks: %w", err)
	}
	return database, nil
}

// newPublisher builds the configured publish backend.
func newPublisher(ctx context.Context, st *store.Store) (publish.Publisher, error) {
	retry := publish.RetryPolicy{
		MaxAttempts: cfg.PublishMaxAttempts,
		BaseBackoff: cfg.PublishRetryBackoff,
	}

	switch cfg.PublishTarget {
	case config.PublishYouTube:
		tokenSvc := tokens.New(st, cfg.TokenEndpoint, cfg.GoogleClientID, cfg.GoogleClientSecret, logger)
		return publish.NewYouTube(tokenSvc, publish.YouTubeOptions{
			ChunkSize: cfg.UploadChunkSizeBytes(),
			Retry:     retry,
		}, logger), nil
	case config.PublishS3:
		return publish.NewS3(ctx, publish.S3Options{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			PartSize:        cfg.UploadChunkSizeBytes(),
		}, logger)
	default:
		return nil, fmt.Errorf("unknown publish target %q", cfg.PublishTarget)
	}
}

// newRunner assembles the dispatch pipeline around an open database handle.
func newRunner(ctx context.Context, database *gorm.DB, bus *events.Bus) (*dispatch.Runner, error) {
	st := store.New(database, logger)

	publisher, err := newPublisher(ctx, st)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		Bin:           cfg.DownloaderBin,
		CookiesFile:   cfg.CookiesFile,
		Timeout:       cfg.FetchTimeout,
		SocketTimeout: cfg.FetchSocketTimeout,
	}, logger)

	driver := dispatch.NewDriver(st, fetcher, publisher, bus, logger)
	return dispatch.NewRunner(st, driver, bus, cfg.WorkDir, logger), nil
}
