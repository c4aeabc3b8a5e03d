/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the dispatcher's operational HTTP surface: health,
// metrics and a small read-only status API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/skald_relay/internal/config"
	"github.com/friendsincode/skald_relay/internal/models"
	"github.com/friendsincode/skald_relay/internal/telemetry"
)

// Reader is the read-only store surface the status API needs.
type Reader interface {
	Submission(ctx context.Context, id string) (*models.VideoSubmission, error)
	ScheduleSlot(ctx context.Context, slotID string) ([]string, error)
}

// Server bundles the HTTP listener and its routes.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	store      Reader
}

// New constructs the server and wires routes.
func New(cfg *config.Config, store Reader, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "skald-relay-http")
	})
	router.Use(middleware.Timeout(30 * time.Second))

	s := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		router: router,
		store:  store,
	}
	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Get("/v1/submissions/{id}", s.handleSubmission)
	s.router.Get("/v1/slots/{slot}", s.handleSlot)
}

type submissionResponse struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ResultID     string     `json:"result_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := s.store.Submission(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "submission not found"})
			return
		}
		s.logger.Error().Err(err).Str("submission_id", id).Msg("submission lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, submissionResponse{
		ID:           sub.ID,
		OwnerID:      sub.OwnerID,
		Title:        sub.Title,
		Status:       string(sub.Status),
		SubmittedAt:  sub.SubmittedAt,
		PublishedAt:  sub.PublishedAt,
		ResultID:     sub.ResultID,
		ErrorMessage: sub.ErrorMessage,
	})
}

func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot")

	users, err := s.store.ScheduleSlot(r.Context(), slotID)
	if err != nil {
		s.logger.Error().Err(err).Str("slot", slotID).Msg("slot lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if users == nil {
		users = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"slot": slotID, "users": users})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Router exposes the handler tree, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. It blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
