/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the dispatcher's view of the submission document store.
// It validates loosely-shaped rows at this boundary and exposes the atomic
// conditional claim that gives at-most-once selection across overlapping runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skald_relay/internal/models"
)

var (
	// ErrCredentialNotFound indicates no stored refresh token for the user.
	ErrCredentialNotFound = errors.New("credential not found")
)

// Store wraps the gorm connection with dispatcher-scoped operations.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store bound to an open gorm connection.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// ScheduleSlot returns the user IDs assigned to the slot. A missing slot or
// an empty user list is a normal miss and yields an empty set, not an error.
func (s *Store) ScheduleSlot(ctx context.Context, slotID string) ([]string, error) {
	var slot models.ScheduleSlot
	err := s.db.WithContext(ctx).First(&slot, "slot_id = ?", slotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule slot %s: %w", slotID, err)
	}

	users, err := slot.UserIDs()
	if err != nil {
		return nil, fmt.Errorf("decode users for slot %s: %w", slotID, err)
	}
	return users, nil
}

// UpsertScheduleSlot replaces the user set assigned to a slot.
func (s *Store) UpsertScheduleSlot(ctx context.Context, slotID string, users []string) error {
	slot := models.ScheduleSlot{SlotID: slotID, UpdatedAt: time.Now().UTC()}
	if err := slot.SetUserIDs(users); err != nil {
		return fmt.Errorf("encode users for slot %s: %w", slotID, err)
	}
	return s.db.WithContext(ctx).Save(&slot).Error
}

// ScheduleSlots returns every stored slot with its user set, keyed by slot ID.
func (s *Store) ScheduleSlots(ctx context.Context) (map[string][]string, error) {
	var slots []models.ScheduleSlot
	if err := s.db.WithContext(ctx).Order("slot_id asc").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("load schedule slots: %w", err)
	}

	out := make(map[string][]string, len(slots))
	for _, slot := range slots {
		users, err := slot.UserIDs()
		if err != nil {
			return nil, fmt.Errorf("decode users for slot %s: %w", slot.SlotID, err)
		}
		out[slot.SlotID] = users
	}
	return out, nil
}

// NextQueued returns the owner's earliest-submitted queued submission, or nil
// when the owner has nothing queued.
func (s *Store) NextQueued(ctx context.Context, ownerID string) (*models.VideoSubmission, error) {
	var sub models.VideoSubmission
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, models.StatusQueued).
		Order("submitted_at asc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued for owner %s: %w", ownerID, err)
	}
	return &sub, nil
}

// ClaimSubmission performs the queued -> processing transition as a single
// conditional update. It reports false when the submission was no longer
// queued, which means another run already owns it.
func (s *Store) ClaimSubmission(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.VideoSubmission{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]any{
			"status":     models.StatusProcessing,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim submission %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkPublished records a successful publish. Status, publishedAt, updatedAt
// and resultID land in one update so no reader sees published without a result.
func (s *Store) MarkPublished(ctx context.Context, id, resultID string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).
		Model(&models.VideoSubmission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       models.StatusPublished,
			"published_at": now,
			"updated_at":   now,
			"result_id":    resultID,
		}).Error
	if err != nil {
		return fmt.Errorf("mark submission %s published: %w", id, err)
	}
	return nil
}

// MarkFailed records a terminal per-item failure.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	err := s.db.WithContext(ctx).
		Model(&models.VideoSubmission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.StatusError,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark submission %s failed: %w", id, err)
	}
	return nil
}

// Submission looks up a single submission by ID.
func (s *Store) Submission(ctx context.Context, id string) (*models.VideoSubmission, error) {
	var sub models.VideoSubmission
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("load submission %s: %w", id, err)
	}
	return &sub, nil
}

// Credential returns the user's stored refresh token.
func (s *Store) Credential(ctx context.Context, userID string) (*models.UserCredential, error) {
	var cred models.UserCredential
	err := s.db.WithContext(ctx).First(&cred, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrCredentialNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential for user %s: %w", userID, err)
	}
	return &cred, nil
}

// DeleteCredential removes the user's stored refresh token. Called when the
// upstream reports the grant is permanently invalid, so later runs do not
// repeat a doomed attempt before the user re-authenticates.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Delete(&models.UserCredential{}, "user_id = ?", userID).Error
	if err != nil {
		return fmt.Errorf("delete credential for user %s: %w", userID, err)
	}
	s.logger.Warn().Str("user_id", userID).Msg("stored credential deleted, re-authentication required")
	return nil
}
