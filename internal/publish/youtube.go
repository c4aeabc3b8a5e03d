/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"

// TokenSource supplies bearer tokens for submission owners.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// YouTube publishes payloads through the resumable upload protocol:
// one session-initiation request followed by sequential Content-Range chunks.
type YouTube struct {
	tokens    TokenSource
	client    *http.Client
	baseURL   string
	chunkSize int64
	retry     RetryPolicy
	logger    zerolog.Logger
}

// YouTubeOptions configures the YouTube backend.
type YouTubeOptions struct {
	BaseURL   string // override for tests; empty means the real API
	ChunkSize int64  // bytes per upload chunk
	Retry     RetryPolicy
}

// NewYouTube creates a YouTube publisher.
func NewYouTube(tokens TokenSource, opts YouTubeOptions, logger zerolog.Logger) *YouTube {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultUploadBaseURL
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 * 1024 * 1024
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &YouTube{
		tokens:    tokens,
		client:    &http.Client{Timeout: 5 * time.Minute},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		chunkSize: opts.ChunkSize,
		retry:     opts.Retry,
		logger:    logger.With().Str("component", "publish").Str("target", "youtube").Logger(),
	}
}

type videoMetadata struct {
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		CategoryID  string `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

type uploadResult struct {
	ID string `json:"id"`
}

// Publish uploads the payload and returns the new video ID. Token failures
// bubble up unchanged so the caller can distinguish re-auth conditions.
func (y *YouTube) Publish(ctx context.Context, req Request) (string, error) {
	token, err := y.tokens.AccessToken(ctx, req.OwnerID)
	if err != nil {
		return "", err
	}

	file, err := os.Open(req.PayloadPath)
	if err != nil {
		return "", fmt.Errorf("open payload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat payload: %w", err)
	}
	size := info.Size()

	session, err := y.startSession(ctx, token, req, size)
	if err != nil {
		return "", err
	}

	return y.uploadChunks(ctx, token, session, file, size)
}

// startSession initiates a resumable upload and returns the session URI.
func (y *YouTube) startSession(ctx context.Context, token string, req Request, size int64) (string, error) {
	var meta videoMetadata
	meta.Snippet.Title = req.Title
	meta.Snippet.Description = req.Description
	meta.Snippet.CategoryID = "24"
	meta.Status.PrivacyStatus = "public"

	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	url := y.baseURL + "/videos?uploadType=resumable&part=snippet,status"

	for attempt := 0; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("build session request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
		httpReq.Header.Set("X-Upload-Content-Type", "video/mp4")
		httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

		resp, err := y.client.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("start upload session: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			session := resp.Header.Get("Location")
			if session == "" {
				return "", fmt.Errorf("%w: upload session missing location", ErrUploadTerminal)
			}
			return session, nil
		case resp.StatusCode >= 500:
			if y.retry.Exhausted(attempt + 1) {
				return "", fmt.Errorf("%w: session init returned %d after %d attempts", ErrUploadTerminal, resp.StatusCode, attempt+1)
			}
			y.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retriable error starting upload session")
			if err := sleepCtx(ctx, y.retry.Backoff(attempt)); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("%w: session init returned %d", ErrUploadTerminal, resp.StatusCode)
		}
	}
}

// uploadChunks streams the payload sequentially. A 308 acknowledges committed
// bytes, a 2xx carries the final video resource. Transient 5xx responses are
// retried from the last committed offset under the retry policy.
func (y *YouTube) uploadChunks(ctx context.Context, token, session string, file io.ReaderAt, size int64) (string, error) {
	var offset int64
	attempt := 0

	for offset < size {
		end := offset + y.chunkSize
		if end > size {
			end = size
		}
		chunk := io.NewSectionReader(file, offset, end-offset)

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, session, chunk)
		if err != nil {
			return "", fmt.Errorf("build chunk request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Content-Type", "video/mp4")
		httpReq.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, size))
		httpReq.ContentLength = end - offset

		resp, err := y.client.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("upload chunk at %d: %w", offset, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			var result uploadResult
			decodeErr := json.NewDecoder(resp.Body).Decode(&result)
			resp.Body.Close()
			if decodeErr != nil {
				return "", fmt.Errorf("decode upload result: %w", decodeErr)
			}
			if result.ID == "" {
				return "", fmt.Errorf("%w: upload completed without a video id", ErrUploadTerminal)
			}
			y.logger.Info().Str("video_id", result.ID).Msg("upload complete")
			return result.ID, nil

		case resp.StatusCode == http.StatusPermanentRedirect: // 308: chunk accepted
			io.Copy(io.Discard, resp.Body)
			committed := parseCommittedOffset(resp.Header.Get("Range"))
			resp.Body.Close()
			if committed > offset {
				offset = committed
			} else {
				offset = end
			}
			attempt = 0
			y.logger.Debug().Int64("offset", offset).Int64("total", size).Msg("chunk accepted")

		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			attempt++
			if y.retry.Exhausted(attempt) {
				return "", fmt.Errorf("%w: chunk upload returned %d after %d attempts", ErrUploadTerminal, resp.StatusCode, attempt)
			}
			y.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Int64("offset", offset).Msg("retriable chunk upload error")
			if err := sleepCtx(ctx, y.retry.Backoff(attempt-1)); err != nil {
				return "", err
			}

		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return "", fmt.Errorf("%w: chunk upload returned %d", ErrUploadTerminal, resp.StatusCode)
		}
	}

	return "", fmt.Errorf("%w: upload ended without a final response", ErrUploadTerminal)
}

// parseCommittedOffset reads a "bytes=0-N" Range header into the next offset.
func parseCommittedOffset(header string) int64 {
	if header == "" {
		return 0
	}
	header = strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(header, "-", 2)
	if len(parts) != 2 {
		return 0
	}
	last, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return last + 1
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Publisher = (*YouTube)(nil)
