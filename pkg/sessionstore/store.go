// Package sessionstore persists session snapshots in Redis so a logical
// session (cookies, cached tokens, identity) can be restored by a later
// process. The request core never consults the store; callers snapshot and
// restore explicitly.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nachtfalke/wiki-action-client/pkg/session"
)

// Prometheus metrics for snapshot persistence.
var (
	snapshotOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_snapshot_ops_total",
		Help: "Total snapshot store operations by operation and outcome",
	}, []string{"operation", "outcome"})
)

// ErrNotFound indicates no snapshot is stored under the key.
var ErrNotFound = errors.New("session snapshot not found")

// keyPrefix namespaces snapshot keys in Redis.
const keyPrefix = "wiki:session:"

// DefaultTTL bounds how long a stored snapshot stays restorable. Cookies and
// tokens go stale server-side anyway; a day is generous.
const DefaultTTL = 24 * time.Hour

// Store persists snapshots in Redis.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStore creates a snapshot store. A zero TTL selects DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: redisClient, ttl: ttl, logger: logger}
}

// Save stores the snapshot under the key with the configured TTL.
func (s *Store) Save(ctx context.Context, key string, snap *session.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		snapshotOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.redis.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		snapshotOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	snapshotOpsTotal.WithLabelValues("save", "ok").Inc()
	s.logger.Info().
		Str("key", key).
		Dur("ttl", s.ttl).
		Time("taken_at", snap.TakenAt).
		Msg("Session snapshot saved")
	return nil
}

// Load retrieves a snapshot. Returns ErrNotFound when absent or expired.
func (s *Store) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	data, err := s.redis.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			snapshotOpsTotal.WithLabelValues("load", "miss").Inc()
			return nil, ErrNotFound
		}
		snapshotOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		snapshotOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	snapshotOpsTotal.WithLabelValues("load", "ok").Inc()
	s.logger.Debug().Str("key", key).Msg("Session snapshot loaded")
	return &snap, nil
}

// Delete removes a stored snapshot. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		snapshotOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	snapshotOpsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}
