package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records delivery keys and counts events per window.
type Store interface {
	// Claim returns true the first time key is seen within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Hit increments the counter for key and returns the new value. The
	// counter resets after window.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedup key: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.prefix + key
	n, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, k, window).Err(); err != nil {
			return n, fmt.Errorf("expire counter: %w", err)
		}
	}
	return n, nil
}

// MemoryStore keeps keys in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	claims   map[string]time.Time
	counters map[string]counter
	now      func() time.Time
}

type counter struct {
	n       int64
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:   make(map[string]time.Time),
		counters: make(map[string]counter),
		now:      time.Now,
	}
}

func (s *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expires) {
		c = counter{expires: now.Add(window)}
	}
	c.n++
	s.counters[key] = c
	return c.n, nil
}

// Sweep drops expired keys.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, exp := range s.claims {
		if !now.Before(exp) {
			delete(s.claims, k)
			removed++
		}
	}
	for k, c := range s.counters {
		if !now.Before(c.expires) {
			delete(s.counters, k)
			removed++
		}
	}
	return removed
}
