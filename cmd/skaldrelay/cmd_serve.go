/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/friendsincode/skald_relay/internal/db"
	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/runlock"
	"github.com/friendsincode/skald_relay/internal/server"
	"github.com/friendsincode/skald_relay/internal/slot"
	"github.com/friendsincode/skald_relay/internal/store"
	"github.com/friendsincode/skald_relay/internal/telemetry"
	"github.com/friendsincode/skald_relay/internal/version"
)

// dispatchSchedule fires at every quarter hour boundary.
const dispatchSchedule = "0,15,30,45 * * * *"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher as a long-lived service",
	Long:  "Start the built-in quarter-hour scheduler plus the HTTP surface for health, metrics and submission status.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Skald Relay starting")

	ctx := cmd.Context()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "skald-relay",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("database close failed")
		}
	}()

	var lock *runlock.Lock
	if cfg.RunLockEnabled {
		lock, err = runlock.New(runlock.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			InstanceID:    cfg.InstanceID,
		}, logger)
		if err != nil {
			return fmt.Errorf("init run lock: %w", err)
		}
		defer lock.Close()
	}

	bus := events.NewBus()
	relay, err := startRelay(bus)
	if err != nil {
		return err
	}
	if relay != nil {
		defer relay.Stop()
	}

	runner, err := newRunner(ctx, database, bus)
	if err != nil {
		return err
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(dispatchSchedule, func() {
		now := time.Now()
		slotID := slot.Resolve(now)

		if lock != nil {
			acquired, err := lock.Acquire(ctx, slotID)
			if err != nil {
				logger.Error().Err(err).Str("slot", slotID).Msg("run lock acquisition failed, skipping slot")
				return
			}
			if !acquired {
				telemetry.RunsTotal.WithLabelValues("locked_out").Inc()
				return
			}
		}

		if err := runner.Run(ctx, now); err != nil {
			logger.Error().Err(err).Str("slot", slotID).Msg("dispatch run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule dispatch job: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(cfg, store.New(database, logger), logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Skald Relay stopped")
	return nil
}
