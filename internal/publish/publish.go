/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package publish uploads fetched payloads to the configured remote target
// and returns the newly assigned external identifier.
package publish

import (
	"context"
	"errors"
)

// Request carries one payload to publish under an owner's identity.
type Request struct {
	PayloadPath string
	Title       string
	Description string
	OwnerID     string
}

// Publisher uploads a payload and returns the remote identifier. Transient
// server-side failures are retried internally under the backend's RetryPolicy;
// an error return is terminal for the item.
type Publisher interface {
	Publish(ctx context.Context, req Request) (string, error)
}

// ErrUploadTerminal marks upload failures that retrying cannot fix
// (client errors, rejected metadata, exhausted retry budget).
var ErrUploadTerminal = errors.New("upload failed permanently")
