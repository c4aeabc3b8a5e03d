/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runlock implements a Redis-backed per-slot run lock so that when
// several dispatcher instances share a schedule, each slot is processed by
// exactly one of them.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_relay/internal/slot"
	"github.com/friendsincode/skald_relay/internal/telemetry"
)

const defaultKeyPrefix = "skald:runlock:"

// Config configures the run lock.
type Config struct {
	// RedisAddr is the Redis server address
	RedisAddr string

	// RedisPassword is the Redis password (optional)
	RedisPassword string

	// RedisDB is the Redis database number
	RedisDB int

	// KeyPrefix separates lock keys from other Redis tenants
	KeyPrefix string

	// TTL is how long an acquired lock lives. It defaults to the slot
	// window so a slot cannot be dispatched twice cluster-wide.
	TTL time.Duration

	// InstanceID uniquely identifies this instance
	InstanceID string
}

// Lock acquires exclusive ownership of a dispatch slot across instances.
type Lock struct {
	client     *redis.Client
	logger     zerolog.Logger
	keyPrefix  string
	ttl        time.Duration
	instanceID string
}

// New connects to Redis and returns a run lock.
func New(cfg Config, logger zerolog.Logger) (*Lock, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.TTL == 0 {
		cfg.TTL = slot.Window
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", cfg.RedisAddr).
		Str("instance_id", cfg.InstanceID).
		Msg("connected to Redis for run locking")

	return &Lock{
		client:     client,
		logger:     logger.With().Str("component", "run_lock").Logger(),
		keyPrefix:  cfg.KeyPrefix,
		ttl:        cfg.TTL,
		instanceID: cfg.InstanceID,
	}, nil
}

// Acquire attempts to take the lock for slotID. A false return with a nil
// error means another instance already owns the slot.
func (l *Lock) Acquire(ctx context.Context, slotID string) (bool, error) {
	key := l.keyPrefix + slotID

	acquired, err := l.client.SetNX(ctx, key, l.instanceID, l.ttl).Result()
	if err != nil {
		telemetry.RunLockAcquisitionsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("set run lock: %w", err)
	}
	if acquired {
		telemetry.RunLockAcquisitionsTotal.WithLabelValues("acquired").Inc()
		l.logger.Debug().Str("slot", slotID).Msg("run lock acquired")
		return true, nil
	}

	holder, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; the next attempt wins it.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read run lock holder: %w", err)
	}
	if holder == l.instanceID {
		// Already ours, e.g. a retried invocation within the same window.
		return true, nil
	}

	telemetry.RunLockAcquisitionsTotal.WithLabelValues("held_elsewhere").Inc()
	l.logger.Info().Str("slot", slotID).Str("holder", holder).Msg("slot already dispatched elsewhere")
	return false, nil
}

// Release gives the slot back early, e.g. when a run failed before touching
// any submission. Only the owning instance can release.
func (l *Lock) Release(ctx context.Context, slotID string) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	if err := l.client.Eval(ctx, script, []string{l.keyPrefix + slotID}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}

	l.logger.Debug().Str("slot", slotID).Msg("run lock released")
	return nil
}

// Close closes the Redis connection.
func (l *Lock) Close() error {
	return l.client.Close()
}
