package tokens

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/models"
)

type fakeCredStore struct {
	creds   map[string]string
	deleted []string
}

func (f *fakeCredStore) Credential(_ context.Context, userID string) (*models.UserCredential, error) {
	token, ok := f.creds[userID]
	if !ok {
		return nil, errors.New("credential not found")
	}
	return &models.UserCredential{UserID: userID, RefreshToken: token}, nil
}

func (f *fakeCredStore) DeleteCredential(_ context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	delete(f.creds, userID)
	return nil
}

func TestAccessTokenRefreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q, want refresh-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	creds := &fakeCredStore{creds: map[string]string{"user-a": "refresh-1"}}
	svc := New(creds, srv.URL, "client-id", "client-secret", zerolog.Nop())

	token, err := svc.AccessToken(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "access-1" {
		t.Fatalf("AccessToken() = %q, want access-1", token)
	}
}

func TestAccessTokenInvalidGrantDeletesCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	creds := &fakeCredStore{creds: map[string]string{"user-a": "refresh-stale"}}
	svc := New(creds, srv.URL, "client-id", "client-secret", zerolog.Nop())

	_, err := svc.AccessToken(context.Background(), "user-a")
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("AccessToken() error = %v, want ErrReauthRequired", err)
	}
	if len(creds.deleted) != 1 || creds.deleted[0] != "user-a" {
		t.Fatalf("deleted = %v, want [user-a]", creds.deleted)
	}
}

func TestAccessTokenServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	creds := &fakeCredStore{creds: map[string]string{"user-a": "refresh-1"}}
	svc := New(creds, srv.URL, "client-id", "client-secret", zerolog.Nop())

	_, err := svc.AccessToken(context.Background(), "user-a")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, ErrReauthRequired) {
		t.Fatal("5xx must not be classified as permanent")
	}
	if len(creds.deleted) != 0 {
		t.Fatalf("credential must not be deleted on transient error, deleted = %v", creds.deleted)
	}
}

func TestAccessTokenMissingCredential(t *testing.T) {
	creds := &fakeCredStore{creds: map[string]string{}}
	svc := New(creds, "http://127.0.0.1:0", "client-id", "client-secret", zerolog.Nop())

	if _, err := svc.AccessToken(context.Background(), "user-missing"); err == nil {
		t.Fatal("expected error for missing credential")
	}
}
