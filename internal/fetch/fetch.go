/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fetch materializes video payloads from source URLs using an
// external yt-dlp compatible downloader.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrFetch wraps every downloader failure; callers treat fetch errors as a
// single per-item terminal class regardless of the underlying cause.
var ErrFetch = errors.New("fetch failed")

// Downloader retrieves a payload for a source URL into a destination path.
type Downloader struct {
	bin           string
	cookiesFile   string
	timeout       time.Duration
	socketTimeout time.Duration
	logger        zerolog.Logger
}

// Options configures the downloader binary invocation.
type Options struct {
	Bin           string        // downloader binary, e.g. "yt-dlp"
	CookiesFile   string        // used only when the file exists
	Timeout       time.Duration // whole-download deadline
	SocketTimeout time.Duration // passed through to the downloader
}

// New creates a downloader.
func New(opts Options, logger zerolog.Logger) *Downloader {
	if opts.Bin == "" {
		opts.Bin = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.SocketTimeout <= 0 {
		opts.SocketTimeout = 60 * time.Second
	}
	return &Downloader{
		bin:           opts.Bin,
		cookiesFile:   opts.CookiesFile,
		timeout:       opts.Timeout,
		socketTimeout: opts.SocketTimeout,
		logger:        logger.With().Str("component", "fetch").Logger(),
	}
}

// Args builds the downloader invocation for a source URL and destination path.
func (d *Downloader) Args(sourceURL, destPath string) []string {
	args := []string{
		"--format", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"--output", destPath,
		"--socket-timeout", strconv.Itoa(int(d.socketTimeout.Seconds())),
		"--quiet",
		"--no-progress",
	}

	if d.cookiesFile != "" {
		if _, err := os.Stat(d.cookiesFile); err == nil {
			args = append(args, "--cookies", d.cookiesFile)
		}
	}

	return append(args, sourceURL)
}

// Fetch downloads the payload at sourceURL to destPath. Any downloader
// failure, including a deadline hit, surfaces as ErrFetch.
func (d *Downloader) Fetch(ctx context.Context, sourceURL, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := d.Args(sourceURL, destPath)
	d.logger.Debug().Str("source_url", sourceURL).Str("dest", destPath).Msg("starting download")

	cmd := exec.CommandContext(ctx, d.bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrFetch, detail)
	}

	// The downloader can exit zero without materializing anything when the
	// source has no downloadable formats.
	if _, err := os.Stat(destPath); err != nil {
		return fmt.Errorf("%w: downloader produced no output at %s", ErrFetch, destPath)
	}

	d.logger.Info().Str("dest", destPath).Msg("download complete")
	return nil
}
