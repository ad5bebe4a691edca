package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"phasesync/internal/domain"
)

const (
	defaultRedisPrefix = "phasesync"
	defaultRedisTTL    = 24 * time.Hour
	scanBatchSize      = 100
)

// RedisStore keeps snapshots in Redis as JSON with a TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithTTL sets how long an untouched room snapshot is kept.
// Zero keeps snapshots forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: defaultRedisPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load reads the snapshot for roomCode
func (s *RedisStore) Load(ctx context.Context, roomCode string) (domain.Snapshot, error) {
	if roomCode == "" {
		return domain.Snapshot{}, ErrInvalidCode
	}

	data, err := s.client.Get(ctx, s.roomKey(roomCode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, ErrNotFound
		}
		return domain.Snapshot{}, errors.Wrap(err, "redis get")
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	if snapshot.State == nil {
		snapshot.State = make(map[string]string)
	}

	return snapshot, nil
}

// Save writes snapshot and refreshes its TTL
func (s *RedisStore) Save(ctx context.Context, roomCode string, snapshot domain.Snapshot) error {
	if roomCode == "" {
		return ErrInvalidCode
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	if err := s.client.Set(ctx, s.roomKey(roomCode), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete removes the snapshot for roomCode
func (s *RedisStore) Delete(ctx context.Context, roomCode string) error {
	if roomCode == "" {
		return ErrInvalidCode
	}

	n, err := s.client.Del(ctx, s.roomKey(roomCode)).Result()
	if err != nil {
		return errors.Wrap(err, "redis del")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every stored room code, sorted
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	prefix := s.roomKey("")
	codes := make([]string, 0)

	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		codes = append(codes, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "redis scan")
	}

	sort.Strings(codes)
	return codes, nil
}

func (s *RedisStore) roomKey(roomCode string) string {
	return s.prefix + ":room:" + roomCode
}
