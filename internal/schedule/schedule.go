/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule reads and writes the slot assignment table as YAML, the
// format operators edit by hand and feed through the import command.
package schedule

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/skald_relay/internal/slot"
)

// File is the on-disk schedule document.
//
//	slots:
//	  "13_00": [alice, bob]
//	  "21_45": [carol]
type File struct {
	Slots map[string][]string `yaml:"slots"`
}

// Parse decodes and validates a schedule document. Slot IDs must name
// quarter-hour boundaries; user lists are deduplicated preserving order.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if len(f.Slots) == 0 {
		return nil, fmt.Errorf("schedule has no slots")
	}

	for slotID, users := range f.Slots {
		if !slot.ValidID(slotID) {
			return nil, fmt.Errorf("invalid slot id %q: want HH_MM on a quarter-hour boundary", slotID)
		}

		seen := make(map[string]bool, len(users))
		deduped := users[:0]
		for _, userID := range users {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return nil, fmt.Errorf("slot %s has an empty user id", slotID)
			}
			if seen[userID] {
				continue
			}
			seen[userID] = true
			deduped = append(deduped, userID)
		}
		f.Slots[slotID] = deduped
	}

	return &f, nil
}

// Upserter is the store surface the importer writes through.
type Upserter interface {
	UpsertScheduleSlot(ctx context.Context, slotID string, users []string) error
}

// Import writes every slot in the document to the store and returns the
// number of slots written. The write is per-slot, not transactional: a
// failure mid-import leaves earlier slots updated.
func Import(ctx context.Context, up Upserter, f *File, logger zerolog.Logger) (int, error) {
	slotIDs := make([]string, 0, len(f.Slots))
	for slotID := range f.Slots {
		slotIDs = append(slotIDs, slotID)
	}
	sort.Strings(slotIDs)

	for _, slotID := range slotIDs {
		users := f.Slots[slotID]
		if err := up.UpsertScheduleSlot(ctx, slotID, users); err != nil {
			return 0, fmt.Errorf("import slot %s: %w", slotID, err)
		}
		logger.Info().Str("slot", slotID).Int("users", len(users)).Msg("slot imported")
	}

	return len(slotIDs), nil
}

// Lister is the store surface the exporter reads through.
type Lister interface {
	ScheduleSlots(ctx context.Context) (map[string][]string, error)
}

// Export writes the stored schedule as a YAML document.
func Export(ctx context.Context, lister Lister, w io.Writer) error {
	slots, err := lister.ScheduleSlots(ctx)
	if err != nil {
		return fmt.Errorf("export schedule: %w", err)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(File{Slots: slots}); err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	return nil
}
