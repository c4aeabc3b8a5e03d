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
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/models"
	"github.com/friendsincode/skald_relay/internal/publish"
	"github.com/friendsincode/skald_relay/internal/tokens"
)

// fakeStore is an in-memory Store with per-item failure injection.
type fakeStore struct {
	slots    map[string][]string
	slotErr  error
	queues   map[string][]*models.VideoSubmission
	queueErr map[string]error
	claimErr map[string]error
	pubErr   map[string]error
	failErr  map[string]error
	status   map[string]models.SubmissionStatus
	message  map[string]string
	resultID map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:    make(map[string][]string),
		queues:   make(map[string][]*models.VideoSubmission),
		queueErr: make(map[string]error),
		claimErr: make(map[string]error),
		pubErr:   make(map[string]error),
		failErr:  make(map[string]error),
		status:   make(map[string]models.SubmissionStatus),
		message:  make(map[string]string),
		resultID: make(map[string]string),
	}
}

func (s *fakeStore) addQueued(ownerID, id, sourceURL string, submittedAt time.Time) *models.VideoSubmission {
	sub := &models.VideoSubmission{
		ID:          id,
		OwnerID:     ownerID,
		Title:       "title " + id,
		SourceURL:   sourceURL,
		Status:      models.StatusQueued,
		SubmittedAt: submittedAt,
	}
	s.queues[ownerID] = append(s.queues[ownerID], sub)
	s.status[id] = models.StatusQueued
	return sub
}

func (s *fakeStore) ScheduleSlot(ctx context.Context, slotID string) ([]string, error) {
	if s.slotErr != nil {
		return nil, s.slotErr
	}
	return s.slots[slotID], nil
}

func (s *fakeStore) NextQueued(ctx context.Context, ownerID string) (*models.VideoSubmission, error) {
	if err := s.queueErr[ownerID]; err != nil {
		return nil, err
	}
	var earliest *models.VideoSubmission
	for _, sub := range s.queues[ownerID] {
		if s.status[sub.ID] != models.StatusQueued {
			continue
		}
		if earliest == nil || sub.SubmittedAt.Before(earliest.SubmittedAt) {
			earliest = sub
		}
	}
	return earliest, nil
}

func (s *fakeStore) ClaimSubmission(ctx context.Context, id string) (bool, error) {
	if err := s.claimErr[id]; err != nil {
		return false, err
	}
	if s.status[id] != models.StatusQueued {
		return false, nil
	}
	s.status[id] = models.StatusProcessing
	return true, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, id, resultID string) error {
	if err := s.pubErr[id]; err != nil {
		return err
	}
	s.status[id] = models.StatusPublished
	s.resultID[id] = resultID
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id, message string) error {
	if err := s.failErr[id]; err != nil {
		return err
	}
	s.status[id] = models.StatusError
	s.message[id] = message
	return nil
}

// fakeFetcher writes a small payload file unless told to fail.
type fakeFetcher struct {
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL, destPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte("payload for "+sourceURL), 0o644)
}

// fakePublisher records requests and returns a canned result or error.
type fakePublisher struct {
	err      error
	perOwner map[string]error
	requests []publish.Request
}

func (p *fakePublisher) Publish(ctx context.Context, req publish.Request) (string, error) {
	p.requests = append(p.requests, req)
	if err, ok := p.perOwner[req.OwnerID]; ok && err != nil {
		return "", err
	}
	if p.err != nil {
		return "", p.err
	}
	return "result-" + req.OwnerID, nil
}

func newTestDriver(store *fakeStore, fetcher *fakeFetcher, publisher *fakePublisher) *Driver {
	return NewDriver(store, fetcher, publisher, events.NewBus(), zerolog.Nop())
}

func TestProcessItemPublishes(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	publisher := &fakePublisher{}
	driver := newTestDriver(store, &fakeFetcher{}, publisher)
	workDir := t.TempDir()

	outcome := driver.ProcessItem(context.Background(), workDir, *sub)

	if outcome != OutcomePublished {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomePublished)
	}
	if store.status["sub-1"] != models.StatusPublished {
		t.Errorf("status = %q, want published", store.status["sub-1"])
	}
	if store.resultID["sub-1"] != "result-alice" {
		t.Errorf("result id = %q, want result-alice", store.resultID["sub-1"])
	}
	if len(publisher.requests) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(publisher.requests))
	}
	if got := publisher.requests[0].Title; got != "title sub-1" {
		t.Errorf("published title = %q", got)
	}
	assertDirEmpty(t, workDir)
}

func TestProcessItemFetchFailure(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	publisher := &fakePublisher{}
	driver := newTestDriver(store, &fakeFetcher{err: errors.New("download failed: network unreachable")}, publisher)
	workDir := t.TempDir()

	outcome := driver.ProcessItem(context.Background(), workDir, *sub)

	if outcome != OutcomeFetchError {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeFetchError)
	}
	if store.status["sub-1"] != models.StatusError {
		t.Errorf("status = %q, want error", store.status["sub-1"])
	}
	if !strings.Contains(store.message["sub-1"], "network unreachable") {
		t.Errorf("error message = %q, want the fetch cause", store.message["sub-1"])
	}
	if len(publisher.requests) != 0 {
		t.Errorf("publisher called %d times after failed fetch", len(publisher.requests))
	}
	assertDirEmpty(t, workDir)
}

func TestProcessItemPublishFailure(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	driver := newTestDriver(store, &fakeFetcher{}, &fakePublisher{err: fmt.Errorf("upload: %w", publish.ErrUploadTerminal)})
	workDir := t.TempDir()

	outcome := driver.ProcessItem(context.Background(), workDir, *sub)

	if outcome != OutcomePublishError {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomePublishError)
	}
	if store.status["sub-1"] != models.StatusError {
		t.Errorf("status = %q, want error", store.status["sub-1"])
	}
	if store.message["sub-1"] == "" {
		t.Error("error message is empty")
	}
	assertDirEmpty(t, workDir)
}

func TestProcessItemReauthRequired(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	driver := newTestDriver(store, &fakeFetcher{}, &fakePublisher{
		err: fmt.Errorf("token for alice: %w", tokens.ErrReauthRequired),
	})

	outcome := driver.ProcessItem(context.Background(), t.TempDir(), *sub)

	if outcome != OutcomeCredentialError {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeCredentialError)
	}
	if store.status["sub-1"] != models.StatusError {
		t.Errorf("status = %q, want error", store.status["sub-1"])
	}
}

func TestProcessItemClaimLost(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	store.status["sub-1"] = models.StatusProcessing // someone else holds it
	fetcher := &fakeFetcher{}
	driver := newTestDriver(store, fetcher, &fakePublisher{})

	outcome := driver.ProcessItem(context.Background(), t.TempDir(), *sub)

	if outcome != OutcomeClaimLost {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeClaimLost)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch ran %d times on a lost claim", fetcher.calls)
	}
	if store.status["sub-1"] != models.StatusProcessing {
		t.Errorf("status = %q, lost claim must not touch the record", store.status["sub-1"])
	}
}

func TestProcessItemClaimError(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	store.claimErr["sub-1"] = errors.New("connection reset")
	driver := newTestDriver(store, &fakeFetcher{}, &fakePublisher{})

	outcome := driver.ProcessItem(context.Background(), t.TempDir(), *sub)

	if outcome != OutcomeClaimError {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeClaimError)
	}
	if store.status["sub-1"] != models.StatusQueued {
		t.Errorf("status = %q, a failed claim write must leave the item queued", store.status["sub-1"])
	}
}

func TestProcessItemStoreErrorAfterUpload(t *testing.T) {
	store := newFakeStore()
	sub := store.addQueued("alice", "sub-1", "https://example.com/v/1", time.Now())
	store.pubErr["sub-1"] = errors.New("disk full")
	driver := newTestDriver(store, &fakeFetcher{}, &fakePublisher{})
	workDir := t.TempDir()

	outcome := driver.ProcessItem(context.Background(), workDir, *sub)

	if outcome != OutcomeStoreError {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeStoreError)
	}
	assertDirEmpty(t, workDir)
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("leaked file: %s", filepath.Join(dir, e.Name()))
	}
}
