// ABOUTME: Durable per-user preference storage for the online sharing flag
// ABOUTME: Redis-backed implementation plus an in-memory one for tests and dev

package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("prefs: store closed")

const onlineKeyPrefix = "havend:prefs:online:"

// Store persists user preferences that survive restarts. The online flag is
// written before any tracking transition so a crash mid-transition recovers
// to the user's declared intent.
type Store interface {
	// SetOnline persists the user's sharing intent.
	SetOnline(ctx context.Context, userID string, online bool) error

	// Online reads the persisted intent. A user never seen defaults to true:
	// sharing is on unless explicitly turned off.
	Online(ctx context.Context, userID string) (bool, error)

	Close() error
}

// RedisStore persists preferences in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string, online bool) error {
	value := "false"
	if online {
		value = "true"
	}
	if err := s.client.Set(ctx, onlineKeyPrefix+userID, value, 0).Err(); err != nil {
		return fmt.Errorf("persisting online preference: %w", err)
	}
	return nil
}

func (s *RedisStore) Online(ctx context.Context, userID string) (bool, error) {
	value, err := s.client.Get(ctx, onlineKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading online preference: %w", err)
	}
	return value == "true", nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu     sync.RWMutex
	online map[string]bool
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{online: make(map[string]bool)}
}

func (s *MemoryStore) SetOnline(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.online[userID] = online
	return nil
}

func (s *MemoryStore) Online(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	online, ok := s.online[userID]
	if !ok {
		return true, nil
	}
	return online, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
