package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

const redisDedupPrefix = "pawwatch:dedup:"

// redisKV is the part of *redis.Client the dedup store needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisDedupStore keeps cooldown markers in Redis so several pawwatch
// processes share one cooldown. Markers expire on their own after ttl, which
// must be at least the cooldown window.
type RedisDedupStore struct {
	rdb redisKV
	ttl time.Duration
}

// NewRedisDedupStore connects to addr and pings it.
func NewRedisDedupStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisDedupStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisDedupStore(rdb, ttl), nil
}

func newRedisDedupStore(rdb redisKV, ttl time.Duration) *RedisDedupStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisDedupStore{rdb: rdb, ttl: ttl}
}

func redisDedupKey(subjectID string, kind models.AlertKind) string {
	return redisDedupPrefix + subjectID + ":" + string(kind)
}

// FetchDedupRecord returns nil, nil when no marker exists.
func (s *RedisDedupStore) FetchDedupRecord(ctx context.Context, subjectID string, kind models.AlertKind) (*models.DedupRecord, error) {
	raw, err := s.rdb.Get(ctx, redisDedupKey(subjectID, kind)).Result()
	if errors.Is(err, redis.Nil) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get dedup record: %w", err)
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse dedup record %q: %w", raw, err)
	}
	return &models.DedupRecord{SubjectID: subjectID, Kind: kind, LastSent: fromNanos(ns)}, nil
}

// SaveDedupRecord stores the marker with the store's ttl.
func (s *RedisDedupStore) SaveDedupRecord(ctx context.Context, rec models.DedupRecord) error {
	key := redisDedupKey(rec.SubjectID, rec.Kind)
	if err := s.rdb.Set(ctx, key, strconv.FormatInt(toNanos(rec.LastSent), 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set dedup record: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisDedupStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisDedupStore) Close() error {
	return s.rdb.Close()
}
