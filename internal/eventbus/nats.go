/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays in-process dispatcher events onto NATS so other
// services (notifiers, dashboards) can observe run and submission lifecycle
// without touching the database.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/events"
)

// relayedTypes lists every event the relay forwards.
var relayedTypes = []events.EventType{
	events.EventRunStarted,
	events.EventRunFinished,
	events.EventItemClaimed,
	events.EventItemPublished,
	events.EventItemFailed,
	events.EventCredentialInvalidated,
	events.EventScheduleImported,
}

// Message is the wire form of a relayed event.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Relay forwards bus events to NATS subjects skald.events.<event_type>.
type Relay struct {
	conn   *nats.Conn
	bus    *events.Bus
	logger zerolog.Logger
	nodeID string

	wg   sync.WaitGroup
	subs map[events.EventType]events.Subscriber
}

// NewRelay connects to NATS and returns a relay. Call Start to begin
// forwarding and Stop to drain.
func NewRelay(natsURL string, bus *events.Bus, logger zerolog.Logger) (*Relay, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("skald-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	hostname, _ := os.Hostname()

	logger.Info().Str("nats_url", natsURL).Msg("connected to NATS for event relay")

	return &Relay{
		conn:   conn,
		bus:    bus,
		logger: logger.With().Str("component", "event_relay").Logger(),
		nodeID: fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		subs:   make(map[events.EventType]events.Subscriber),
	}, nil
}

// Start subscribes to every relayed event type and begins forwarding.
func (r *Relay) Start() {
	for _, eventType := range relayedTypes {
		sub := r.bus.Subscribe(eventType)
		r.subs[eventType] = sub

		r.wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer r.wg.Done()
			for payload := range sub {
				r.forward(eventType, payload)
			}
		}(eventType, sub)
	}
}

func (r *Relay) forward(eventType events.EventType, payload events.Payload) {
	data, err := json.Marshal(Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    r.nodeID,
		MessageID: uuid.New().String(),
	})
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("event marshal failed")
		return
	}

	subject := "skald.events." + string(eventType)
	if err := r.conn.Publish(subject, data); err != nil {
		// Best-effort: a dropped notification never fails a dispatch run.
		r.logger.Error().Err(err).Str("subject", subject).Msg("event publish failed")
	}
}

// Stop unsubscribes, waits for in-flight events, and drains the connection.
func (r *Relay) Stop() {
	for eventType, sub := range r.subs {
		r.bus.Unsubscribe(eventType, sub)
	}
	r.wg.Wait()

	if err := r.conn.Drain(); err != nil {
		r.logger.Error().Err(err).Msg("NATS drain failed")
	}
}
