package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates no live checkpoint exists for the key
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidCheckpoint indicates a stored checkpoint is corrupted
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// Store persists checkpoints. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (*Checkpoint, error)
	Save(ctx context.Context, key Key, cp *Checkpoint) error
	Delete(ctx context.Context, key Key) error
}

// RedisStore keeps checkpoints in Redis.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis backed store. A ttl <= 0 means DefaultTTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a checkpoint by key.
// Returns ErrNotFound if the key doesn't exist or the checkpoint is expired.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Checkpoint, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues("redis", "get", "miss").Inc()
			return nil, ErrNotFound
		}
		Errors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		Errors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	if cp.IsExpired() {
		_ = s.Delete(ctx, key)
		Operations.WithLabelValues("redis", "get", "miss").Inc()
		return nil, ErrNotFound
	}

	Operations.WithLabelValues("redis", "get", "ok").Inc()
	return &cp, nil
}

// Save stores a checkpoint, renewing its TTL.
func (s *RedisStore) Save(ctx context.Context, key Key, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if cp.NextURL == "" {
		return fmt.Errorf("%w: empty next url", ErrInvalidCheckpoint)
	}

	cp.stamp(s.ttl)

	data, err := json.Marshal(cp)
	if err != nil {
		Errors.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, s.ttl).Err(); err != nil {
		Errors.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	Operations.WithLabelValues("redis", "save", "ok").Inc()
	return nil
}

// Delete removes a checkpoint. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		Errors.WithLabelValues("redis", "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	Operations.WithLabelValues("redis", "delete", "ok").Inc()
	return nil
}

// MemoryStore keeps checkpoints in process.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]Checkpoint
}

// NewMemoryStore creates an in-process store. A ttl <= 0 means DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, items: make(map[string]Checkpoint)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.items[key.String()]
	if !ok || cp.IsExpired() {
		delete(s.items, key.String())
		Operations.WithLabelValues("memory", "get", "miss").Inc()
		return nil, ErrNotFound
	}
	Operations.WithLabelValues("memory", "get", "ok").Inc()
	return &cp, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key Key, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if cp.NextURL == "" {
		return fmt.Errorf("%w: empty next url", ErrInvalidCheckpoint)
	}
	cp.stamp(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key.String()] = *cp
	Operations.WithLabelValues("memory", "save", "ok").Inc()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key.String())
	Operations.WithLabelValues("memory", "delete", "ok").Inc()
	return nil
}

// Len returns the number of stored checkpoints, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
