/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/skald_relay/internal/db"
	"github.com/friendsincode/skald_relay/internal/eventbus"
	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/runlock"
	"github.com/friendsincode/skald_relay/internal/slot"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatch pass for the current slot",
	Long:  "Resolve the current 15-minute slot, select queued submissions for its scheduled users, and publish them. Intended for cron-style invocation; the serve command wraps the same pass in a built-in scheduler.",
	RunE:  runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx := cmd.Context()
	now := time.Now()

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("database close failed")
		}
	}()

	if cfg.RunLockEnabled {
		lock, err := runlock.New(runlock.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			InstanceID:    cfg.InstanceID,
		}, logger)
		if err != nil {
			return fmt.Errorf("init run lock: %w", err)
		}
		defer lock.Close()

		acquired, err := lock.Acquire(ctx, slot.Resolve(now))
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			logger.Info().Msg("slot already dispatched by another instance")
			return nil
		}
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

	return runner.Run(ctx, now)
}

// startRelay wires the optional NATS event relay. A nil return with a nil
// error means relaying is not configured.
func startRelay(bus *events.Bus) (*eventbus.Relay, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	relay, err := eventbus.NewRelay(cfg.NATSURL, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("init event relay: %w", err)
	}
	relay.Start()
	return relay, nil
}
