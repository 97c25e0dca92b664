package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/reversi-server/internal/session"
)

const defaultTTL = 2 * time.Hour

type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis connects using a redis:// or rediss:// URL and pings once.
func OpenRedis(ctx context.Context, rawURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, ttl), nil
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: "rv:", ttl: ttl}
}

func (s *RedisStore) keySession(id string) string { return s.prefix + "session:" + strings.TrimSpace(id) }
func (s *RedisStore) keyActive() string           { return s.prefix + "active" }
func (s *RedisStore) keyStats() string            { return s.prefix + "stats" }

func (s *RedisStore) Put(ctx context.Context, snap session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keySession(snap.ID), raw, s.ttl)
	pipe.SAdd(ctx, s.keyActive(), snap.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (session.Snapshot, error) {
	var snap session.Snapshot
	raw, err := s.rdb.Get(ctx, s.keySession(id)).Bytes()
	if err == redis.Nil {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decode session %s: %w", id, err)
	}
	return snap, nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keySession(id))
	pipe.SRem(ctx, s.keyActive(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live sessions ordered by start time. Index members whose
// snapshot expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]session.Snapshot, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyActive()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keySession(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]session.Snapshot, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var snap session.Snapshot
		if err := json.Unmarshal([]byte(str), &snap); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, snap)
	}
	if len(stale) > 0 {
		_ = s.rdb.SRem(ctx, s.keyActive(), stale...).Err()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *RedisStore) Incr(ctx context.Context, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	for k, v := range counters {
		pipe.HIncrBy(ctx, s.keyStats(), k, v)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Counters(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.keyStats()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
