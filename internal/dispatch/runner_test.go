/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/models"
)

// runAt falls in the 13:00 slot.
var runAt = time.Date(2026, 3, 1, 13, 7, 0, 0, time.UTC)

func newTestRunner(store *fakeStore, fetcher *fakeFetcher, publisher *fakePublisher, workRoot string) *Runner {
	bus := events.NewBus()
	driver := NewDriver(store, fetcher, publisher, bus, zerolog.Nop())
	return NewRunner(store, driver, bus, workRoot, zerolog.Nop())
}

func TestRunPublishesScheduledUsers(t *testing.T) {
	store := newFakeStore()
	store.slots["13_00"] = []string{"alice", "bob"}
	store.addQueued("alice", "a-1", "https://example.com/a1", runAt)
	store.addQueued("bob", "b-1", "https://example.com/b1", runAt)
	store.addQueued("carol", "c-1", "https://example.com/c1", runAt) // not scheduled
	workRoot := t.TempDir()
	runner := newTestRunner(store, &fakeFetcher{}, &fakePublisher{}, workRoot)

	if err := runner.Run(context.Background(), runAt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.status["a-1"] != models.StatusPublished {
		t.Errorf("alice's item = %q, want published", store.status["a-1"])
	}
	if store.status["b-1"] != models.StatusPublished {
		t.Errorf("bob's item = %q, want published", store.status["b-1"])
	}
	if store.status["c-1"] != models.StatusQueued {
		t.Errorf("carol was not scheduled but her item = %q", store.status["c-1"])
	}
	assertDirEmpty(t, workRoot)
}

func TestRunEmptySlot(t *testing.T) {
	store := newFakeStore()
	store.addQueued("alice", "a-1", "https://example.com/a1", runAt)
	workRoot := t.TempDir()
	fetcher := &fakeFetcher{}
	runner := newTestRunner(store, fetcher, &fakePublisher{}, workRoot)

	if err := runner.Run(context.Background(), runAt); err != nil {
		t.Fatalf("Run on an empty slot: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch ran %d times with nobody scheduled", fetcher.calls)
	}
	assertDirEmpty(t, workRoot)
}

func TestRunSlotLookupError(t *testing.T) {
	store := newFakeStore()
	store.slotErr = errors.New("connection refused")
	runner := newTestRunner(store, &fakeFetcher{}, &fakePublisher{}, t.TempDir())

	if err := runner.Run(context.Background(), runAt); err == nil {
		t.Fatal("Run returned nil, want the schedule lookup error")
	}
}

func TestRunFailureIsolation(t *testing.T) {
	store := newFakeStore()
	store.slots["13_00"] = []string{"alice", "bob"}
	store.addQueued("alice", "a-1", "https://example.com/a1", runAt)
	store.addQueued("bob", "b-1", "https://example.com/b1", runAt)
	workRoot := t.TempDir()
	publisher := &fakePublisher{perOwner: map[string]error{"alice": errors.New("quota exceeded")}}
	runner := newTestRunner(store, &fakeFetcher{}, publisher, workRoot)

	if err := runner.Run(context.Background(), runAt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.status["a-1"] != models.StatusError {
		t.Errorf("alice's item = %q, want error", store.status["a-1"])
	}
	if store.message["a-1"] == "" {
		t.Error("alice's error message is empty")
	}
	if store.status["b-1"] != models.StatusPublished {
		t.Errorf("bob's item = %q, alice's failure must not block him", store.status["b-1"])
	}
	assertDirEmpty(t, workRoot)
}

func TestRunLeavesNoFilesBehind(t *testing.T) {
	store := newFakeStore()
	store.slots["13_00"] = []string{"alice", "bob", "carol"}
	store.addQueued("alice", "a-1", "https://example.com/a1", runAt)
	store.addQueued("bob", "b-1", "https://example.com/b1", runAt)
	store.addQueued("carol", "c-1", "https://example.com/c1", runAt)
	workRoot := t.TempDir()
	// carol's fetch succeeds, the publish fails; files must still be gone
	publisher := &fakePublisher{perOwner: map[string]error{"carol": errors.New("bad request")}}
	runner := newTestRunner(store, &fakeFetcher{}, publisher, workRoot)

	if err := runner.Run(context.Background(), runAt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d entries left under work root after the run", len(entries))
	}
}
