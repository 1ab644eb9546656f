package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedNamespace = "session:revoked"

// Store records revoked session IDs until the session would have expired.
type Store interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	Revoked(ctx context.Context, id string) (bool, error)
}

// RedisStore keeps revocations in Redis so they are shared by every replica.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedNamespace+":"+id, 1, ttl).Err()
}

func (s *RedisStore) Revoked(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedNamespace+":"+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryStore keeps revocations in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revoked: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryStore) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expires := range s.revoked {
		if !expires.After(now) {
			delete(s.revoked, key)
		}
	}
	s.revoked[id] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Revoked(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.revoked[id]
	return ok && expires.After(s.now()), nil
}
