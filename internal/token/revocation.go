// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package token

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RevocationStore records token ids that must no longer be accepted.
// Entries need only outlive the token they revoke.
type RevocationStore interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// MemoryRevocationStore keeps revoked ids in process memory. Expired
// entries are dropped lazily.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore creates an empty MemoryRevocationStore.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke records id until the given time.
func (s *MemoryRevocationStore) Revoke(_ context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.now()) {
		s.entries[id] = until
	}
	s.sweep()
	return nil
}

// IsRevoked reports whether id is currently revoked.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.entries[id]
	if !ok {
		return false, nil
	}
	if !until.After(s.now()) {
		delete(s.entries, id)
		return false, nil
	}
	return true, nil
}

// Len returns the number of live entries.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	return len(s.entries)
}

func (s *MemoryRevocationStore) sweep() {
	now := s.now()
	for id, until := range s.entries {
		if !until.After(now) {
			delete(s.entries, id)
		}
	}
}

// DefaultRedisKeyPrefix namespaces revocation keys.
const DefaultRedisKeyPrefix = "reservd:revoked:"

// redisKV is the part of *redis.Client the revocation store uses.
type redisKV interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisRevocationStore keeps revoked ids in Redis with a TTL matching the
// token's remaining lifetime, so every service sharing the Redis instance
// sees a logout.
type RedisRevocationStore struct {
	client redisKV
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore creates a RedisRevocationStore.
func NewRedisRevocationStore(client redisKV, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisRevocationStore{client: client, prefix: prefix, now: time.Now}
}

// Revoke records id until the given time.
func (s *RedisRevocationStore) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+id, 1, ttl).Err(); err != nil {
		return oops.Code("REVOCATION_STORE_FAILED").With("operation", "set").With("jti", id).Wrap(err)
	}
	return nil
}

// IsRevoked reports whether id is currently revoked.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+id).Result()
	if err != nil {
		return false, oops.Code("REVOCATION_STORE_FAILED").With("operation", "exists").With("jti", id).Wrap(err)
	}
	return n > 0, nil
}

var (
	_ RevocationStore = (*MemoryRevocationStore)(nil)
	_ RevocationStore = (*RedisRevocationStore)(nil)
)
