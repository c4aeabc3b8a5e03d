/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/models"
	"github.com/friendsincode/skald_relay/internal/publish"
	"github.com/friendsincode/skald_relay/internal/telemetry"
	"github.com/friendsincode/skald_relay/internal/tokens"
)

// Outcome is the explicit result of driving one submission through its
// lifecycle. Failure isolation hangs on these values: the driver never
// panics across an item boundary.
type Outcome string

const (
	OutcomePublished       Outcome = "published"
	OutcomeClaimLost       Outcome = "claim_lost"
	OutcomeClaimError      Outcome = "claim_error"
	OutcomeFetchError      Outcome = "fetch_error"
	OutcomePublishError    Outcome = "publish_error"
	OutcomeCredentialError Outcome = "credential_error"
	OutcomeStoreError      Outcome = "store_error"
)

// SubmissionStore is the write side of the lifecycle driver.
type SubmissionStore interface {
	ClaimSubmission(ctx context.Context, id string) (bool, error)
	MarkPublished(ctx context.Context, id, resultID string) error
	MarkFailed(ctx context.Context, id, message string) error
}

// Fetcher materializes a payload for a source URL at a destination path.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, destPath string) error
}

// Driver advances one submission at a time through
// queued -> processing -> published|error.
type Driver struct {
	store     SubmissionStore
	fetcher   Fetcher
	publisher publish.Publisher
	bus       *events.Bus
	logger    zerolog.Logger
}

// NewDriver creates a lifecycle driver.
func NewDriver(store SubmissionStore, fetcher Fetcher, publisher publish.Publisher, bus *events.Bus, logger zerolog.Logger) *Driver {
	return &Driver{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		bus:       bus,
		logger:    logger.With().Str("component", "driver").Logger(),
	}
}

// ProcessItem drives one claimed submission to a terminal state. The payload
// file under workDir never survives the call, whichever path is taken.
func (d *Driver) ProcessItem(ctx context.Context, workDir string, item models.VideoSubmission) Outcome {
	logger := d.logger.With().
		Str("submission_id", item.ID).
		Str("owner_id", item.OwnerID).
		Logger()
	logger.Info().Str("title", item.Title).Msg("processing submission")

	claimed, err := d.store.ClaimSubmission(ctx, item.ID)
	if err != nil {
		// The item stays queued (or indeterminate); nothing else to do this run.
		logger.Error().Err(err).Msg("claim write failed")
		return OutcomeClaimError
	}
	if !claimed {
		logger.Warn().Msg("submission no longer queued, another run owns it")
		return OutcomeClaimLost
	}
	d.bus.Publish(events.EventItemClaimed, events.Payload{"submission_id": item.ID, "owner_id": item.OwnerID})

	payloadPath := filepath.Join(workDir, item.ID+".mp4")
	defer func() {
		if err := os.Remove(payloadPath); err != nil && !os.IsNotExist(err) {
			logger.Error().Err(err).Str("path", payloadPath).Msg("payload cleanup failed")
		}
	}()

	fetchStart := time.Now()
	if err := d.fetcher.Fetch(ctx, item.SourceURL, payloadPath); err != nil {
		return d.fail(ctx, logger, item, OutcomeFetchError, err)
	}
	telemetry.FetchDuration.Observe(time.Since(fetchStart).Seconds())

	publishStart := time.Now()
	resultID, err := d.publisher.Publish(ctx, publish.Request{
		PayloadPath: payloadPath,
		Title:       item.Title,
		Description: item.Description,
		OwnerID:     item.OwnerID,
	})
	if err != nil {
		outcome := OutcomePublishError
		if errors.Is(err, tokens.ErrReauthRequired) {
			outcome = OutcomeCredentialError
			d.bus.Publish(events.EventCredentialInvalidated, events.Payload{"owner_id": item.OwnerID})
		}
		return d.fail(ctx, logger, item, outcome, err)
	}
	telemetry.PublishDuration.Observe(time.Since(publishStart).Seconds())

	if err := d.store.MarkPublished(ctx, item.ID, resultID); err != nil {
		// The upload went through but the record still says processing.
		// Left for external intervention rather than guessed at here.
		logger.Error().Err(err).Str("result_id", resultID).Msg("publish succeeded but status write failed")
		return OutcomeStoreError
	}

	logger.Info().Str("result_id", resultID).Msg("submission published")
	d.bus.Publish(events.EventItemPublished, events.Payload{
		"submission_id": item.ID,
		"owner_id":      item.OwnerID,
		"result_id":     resultID,
	})
	return OutcomePublished
}

// fail records a terminal per-item failure. The error write is best-effort:
// when it also fails the item stays processing and needs external repair.
func (d *Driver) fail(ctx context.Context, logger zerolog.Logger, item models.VideoSubmission, outcome Outcome, cause error) Outcome {
	logger.Error().Err(cause).Str("outcome", string(outcome)).Msg("submission failed")

	message := fmt.Sprintf("%v", cause)
	if err := d.store.MarkFailed(ctx, item.ID, message); err != nil {
		logger.Error().Err(err).Msg("failure status write failed, submission left processing")
	}

	d.bus.Publish(events.EventItemFailed, events.Payload{
		"submission_id": item.ID,
		"owner_id":      item.OwnerID,
		"outcome":       string(outcome),
		"error":         message,
	})
	return outcome
}
