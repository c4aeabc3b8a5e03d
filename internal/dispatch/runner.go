/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/slot"
	"github.com/friendsincode/skald_relay/internal/telemetry"
)

// Store is everything the orchestrator needs from the document store.
type Store interface {
	SubmissionSource
	SubmissionStore
	ScheduleSlot(ctx context.Context, slotID string) ([]string, error)
}

// Runner ties one dispatch invocation together: resolve the slot, look up
// scheduled users, select their submissions and drive each one sequentially.
type Runner struct {
	store    Store
	driver   *Driver
	bus      *events.Bus
	workRoot string
	logger   zerolog.Logger
}

// NewRunner creates a run orchestrator. workRoot is the parent for run-scoped
// temp directories; empty means the OS temp dir.
func NewRunner(store Store, driver *Driver, bus *events.Bus, workRoot string, logger zerolog.Logger) *Runner {
	return &Runner{
		store:    store,
		driver:   driver,
		bus:      bus,
		workRoot: workRoot,
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// Run executes one dispatch pass for the slot containing now. Items are
// processed strictly sequentially; a failed item never blocks the next one,
// and no payload file survives the return.
func (r *Runner) Run(ctx context.Context, now time.Time) error {
	start := time.Now()
	slotID := slot.Resolve(now)
	logger := r.logger.With().Str("slot", slotID).Logger()

	ctx, span := telemetry.StartSpan(ctx, "skald.dispatch", "dispatch.run")
	span.SetAttributes(attribute.String("slot", slotID))
	defer span.End()

	logger.Info().Msg("starting dispatch run")

	users, err := r.store.ScheduleSlot(ctx, slotID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("look up schedule slot: %w", err)
	}
	if len(users) == 0 {
		logger.Info().Msg("no users scheduled in this slot")
		telemetry.RunsTotal.WithLabelValues("empty_slot").Inc()
		return nil
	}
	logger.Info().Int("users", len(users)).Msg("slot has scheduled users")

	items := SelectItems(ctx, r.store, users, UserCap, logger)
	if len(items) == 0 {
		logger.Info().Msg("no queued submissions for scheduled users")
		telemetry.RunsTotal.WithLabelValues("no_items").Inc()
		return nil
	}

	runDir, err := os.MkdirTemp(r.workRoot, "skald-run-")
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("create run work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			logger.Error().Err(err).Str("dir", runDir).Msg("run work dir cleanup failed")
		}
	}()

	r.bus.Publish(events.EventRunStarted, events.Payload{"slot": slotID, "items": len(items)})
	logger.Info().Int("items", len(items)).Msg("processing submissions, one per user")

	counts := make(map[Outcome]int, len(items))
	for _, item := range items {
		outcome := r.driver.ProcessItem(ctx, runDir, item)
		counts[outcome]++
		telemetry.ItemsProcessedTotal.WithLabelValues(string(outcome)).Inc()
	}

	telemetry.RunsTotal.WithLabelValues("completed").Inc()
	telemetry.RunDuration.Observe(time.Since(start).Seconds())

	summary := logger.Info().Int("items", len(items))
	for outcome, n := range counts {
		summary = summary.Int(string(outcome), n)
	}
	summary.Dur("elapsed", time.Since(start)).Msg("dispatch run finished")

	r.bus.Publish(events.EventRunFinished, events.Payload{
		"slot":      slotID,
		"items":     len(items),
		"published": counts[OutcomePublished],
	})
	return nil
}
