/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch implements slot-based fair dispatch of queued video
// submissions: one submission per scheduled user per run, processed
// sequentially through the fetch-then-publish lifecycle.
package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/models"
	"github.com/friendsincode/skald_relay/internal/telemetry"
)

// UserCap bounds how many scheduled users a single run considers. Fixed
// policy, not configuration: it exists to bound per-run cost.
const UserCap = 30

// SubmissionSource is the read side of the selector.
type SubmissionSource interface {
	NextQueued(ctx context.Context, ownerID string) (*models.VideoSubmission, error)
}

// SelectItems picks at most one queued submission per user, earliest
// submitted first, considering at most cap users in input order. Users
// beyond the cap are skipped for this run, logged, never erred. A failed
// per-user query is logged and skips only that user.
func SelectItems(ctx context.Context, src SubmissionSource, users []string, cap int, logger zerolog.Logger) []models.VideoSubmission {
	if len(users) == 0 {
		return nil
	}

	if cap > 0 && len(users) > cap {
		skipped := len(users) - cap
		logger.Warn().
			Int("scheduled", len(users)).
			Int("cap", cap).
			Int("skipped", skipped).
			Msg("more users scheduled than the per-run cap, processing the first cap only")
		telemetry.UsersSkippedTotal.Add(float64(skipped))
		users = users[:cap]
	}

	items := make([]models.VideoSubmission, 0, len(users))
	for _, userID := range users {
		sub, err := src.NextQueued(ctx, userID)
		if err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("queued submission lookup failed, skipping user")
			continue
		}
		if sub == nil {
			continue
		}
		items = append(items, *sub)
	}

	return items
}
