// Package snapshot keeps the last published statuses and suggestions so a
// restarted process can show something before its first cycle completes.
//
// Values live in memory and, when a Redis URL is configured and reachable,
// in Redis as well. Redis is optional: without it the store still works for
// the lifetime of the process.
package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/john/livewatch/internal/engine"
	"github.com/john/livewatch/internal/live"
)

const (
	KeyStatuses    = "livewatch:statuses"
	KeySuggestions = "livewatch:suggestions"
)

// DefaultTTL bounds how stale a restored snapshot may be.
const DefaultTTL = 15 * time.Minute

// redisTimeout bounds every Redis round trip.
const redisTimeout = 2 * time.Second

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Store is a two-tier snapshot store.
type Store struct {
	rdb *redis.Client // nil when Redis is disabled
	ttl time.Duration

	mu sync.Mutex
	l1 map[string]entry
}

// New creates a store. An empty or unusable redisURL leaves Redis disabled.
func New(ctx context.Context, redisURL string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{ttl: ttl, l1: make(map[string]entry)}

	if redisURL == "" {
		return s
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("snapshot: invalid redis URL, redis disabled", slog.Any("error", err))
		return s
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("snapshot: redis unreachable, redis disabled", slog.Any("error", err))
		rdb.Close()
		return s
	}
	s.rdb = rdb
	slog.Info("snapshot: redis connected", slog.String("addr", opts.Addr), slog.Duration("ttl", ttl))
	return s
}

// Redis reports whether the Redis tier is active.
func (s *Store) Redis() bool {
	return s.rdb != nil
}

// SaveStatuses stores a status map.
func (s *Store) SaveStatuses(ctx context.Context, m live.StatusMap) {
	s.save(ctx, KeyStatuses, m)
}

// SaveSuggestions stores a suggestion list.
func (s *Store) SaveSuggestions(ctx context.Context, list []live.SuggestedStream) {
	s.save(ctx, KeySuggestions, list)
}

// LoadStatuses returns the stored status map, if any.
func (s *Store) LoadStatuses(ctx context.Context) (live.StatusMap, bool) {
	var m live.StatusMap
	if !s.load(ctx, KeyStatuses, &m) {
		return nil, false
	}
	return m, true
}

// LoadSuggestions returns the stored suggestion list, if any.
func (s *Store) LoadSuggestions(ctx context.Context) ([]live.SuggestedStream, bool) {
	var list []live.SuggestedStream
	if !s.load(ctx, KeySuggestions, &list) {
		return nil, false
	}
	return list, true
}

// Record returns an engine subscriber that saves every publication.
func (s *Store) Record(ctx context.Context) func(engine.Event) {
	return func(ev engine.Event) {
		switch ev.Type {
		case engine.EventStatus:
			s.SaveStatuses(ctx, ev.Statuses)
		case engine.EventSuggestions:
			s.SaveSuggestions(ctx, ev.Suggestions)
		}
	}
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Debug("snapshot: marshal failed", slog.String("key", key), slog.Any("error", err))
		return
	}

	s.mu.Lock()
	s.l1[key] = entry{data: data, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	if s.rdb != nil {
		ctx, cancel := context.WithTimeout(ctx, redisTimeout)
		defer cancel()
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			slog.Debug("snapshot: redis set failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// load tries memory first, then Redis.
func (s *Store) load(ctx context.Context, key string, out any) bool {
	s.mu.Lock()
	e, ok := s.l1[key]
	if ok && time.Now().After(e.expiresAt) {
		delete(s.l1, key)
		ok = false
	}
	s.mu.Unlock()

	if ok && json.Unmarshal(e.data, out) == nil {
		return true
	}

	if s.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("snapshot: redis get failed", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}

	s.mu.Lock()
	s.l1[key] = entry{data: data, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return true
}
