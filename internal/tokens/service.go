/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tokens exchanges stored OAuth refresh tokens for short-lived
// bearer credentials on behalf of submission owners.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/models"
)

var (
	// ErrReauthRequired indicates the stored grant is permanently invalid.
	// The stored credential has already been deleted when this is returned.
	ErrReauthRequired = errors.New("authentication expired, re-authentication required")
)

// CredentialStore is the slice of the document store the service needs.
type CredentialStore interface {
	Credential(ctx context.Context, userID string) (*models.UserCredential, error)
	DeleteCredential(ctx context.Context, userID string) error
}

// Service refreshes bearer tokens against the OAuth token endpoint.
type Service struct {
	creds        CredentialStore
	client       *http.Client
	endpoint     string
	clientID     string
	clientSecret string
	logger       zerolog.Logger
}

// New creates a token service.
func New(creds CredentialStore, endpoint, clientID, clientSecret string, logger zerolog.Logger) *Service {
	return &Service{
		creds:        creds,
		client:       &http.Client{Timeout: 30 * time.Second},
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger.With().Str("component", "tokens").Logger(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken returns a usable bearer token for the user, refreshing the
// stored grant. An invalid_grant response deletes the stored credential and
// surfaces ErrReauthRequired; every other failure is transient for the caller.
func (s *Service) AccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.creds.Credential(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var terr tokenError
		_ = json.Unmarshal(body, &terr)

		if terr.Error == "invalid_grant" {
			if delErr := s.creds.DeleteCredential(ctx, userID); delErr != nil {
				s.logger.Error().Err(delErr).Str("user_id", userID).Msg("failed to delete invalid credential")
			}
			return "", fmt.Errorf("user %s: %w", userID, ErrReauthRequired)
		}
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	s.logger.Debug().Str("user_id", userID).Msg("access token refreshed")
	return tok.AccessToken, nil
}
