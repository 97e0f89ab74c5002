package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrPatternNotAllowed is returned when DeletePattern is called with a
// pattern outside the invalidation allow-list. This is a programming error
// and fails loudly instead of deleting more than intended.
var ErrPatternNotAllowed = errors.New("cache: pattern not on invalidation allow-list")

// Store is the key/value contract the rest of the service depends on. All
// implementations must be safe for concurrent use. Operation failures are
// recoverable by design: a caller that ignores every returned error still
// behaves correctly, just without the cache.
type Store interface {
	// Get returns the cached payload for key. A miss and any store failure
	// both report ok=false; Get never returns an error.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores payload under key with the given TTL. The returned error is
	// informational; callers treat failure as a no-op.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes all keys matching an allow-listed pattern and
	// returns how many were deleted. Patterns outside the allow-list are
	// rejected with ErrPatternNotAllowed and delete nothing.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	// Health probes the store without blocking beyond the operation timeout.
	Health(ctx context.Context) Health
	Close() error
}

// Health is a point-in-time status snapshot of the store.
type Health struct {
	Reachable bool  `json:"reachable"`
	UsedBytes int64 `json:"usedBytes"`
	KeyCount  int64 `json:"keyCount"`
}

// StoreConfig tunes the Redis store. OpTimeout bounds every round trip so a
// degraded cache cannot make a board load slower than going straight to the
// database. ScanCount bounds SCAN batches so pattern deletes never block the
// server on a full key dump.
type StoreConfig struct {
	OpTimeout time.Duration
	ScanCount int64
}

// DefaultStoreConfig returns the tuning used when none is configured.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		OpTimeout: 250 * time.Millisecond,
		ScanCount: 128,
	}
}

// RedisStore implements Store on a shared go-redis client. The client is
// injected so tests can point it at miniredis and so the process owns a
// single connection pool.
type RedisStore struct {
	client *redis.Client
	cfg    StoreConfig
	logger *log.Logger
}

// NewRedisStore wraps client with the Store contract.
func NewRedisStore(client *redis.Client, cfg StoreConfig, logger *log.Logger) *RedisStore {
	if client == nil {
		panic("cache.NewRedisStore: client is nil")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultStoreConfig().OpTimeout
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = DefaultStoreConfig().ScanCount
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisStore{client: client, cfg: cfg, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WithFields(log.Fields{"key": key, "error": err.Error()}).Debug("cache get failed")
		}
		return nil, false
	}
	return data, true
}

func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		// A zero TTL would make the entry permanent; refuse to write it.
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	s.logger.WithFields(log.Fields{"key": key, "bytes": len(payload), "ttl": ttl.String()}).Debug("cache set")
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		s.logger.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("cache set failed")
		return err
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.WithFields(log.Fields{"keys": keys, "error": err.Error()}).Warn("cache delete failed")
		return err
	}
	return nil
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if !PatternAllowed(pattern) {
		s.logger.WithField("pattern", pattern).Error("rejected cache pattern delete")
		return 0, ErrPatternNotAllowed
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.scanBatch(ctx, cursor, pattern)
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := s.Delete(ctx, keys...); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.logger.WithFields(log.Fields{"pattern": pattern, "deleted": deleted}).Debug("cache pattern delete")
	return deleted, nil
}

// scanBatch runs one bounded SCAN iteration under its own timeout.
func (s *RedisStore) scanBatch(ctx context.Context, cursor uint64, pattern string) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	return s.client.Scan(ctx, cursor, pattern, s.cfg.ScanCount).Result()
}

func (s *RedisStore) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.WithField("error", err.Error()).Debug("cache ping failed")
		return Health{}
	}
	h := Health{Reachable: true}
	if n, err := s.client.DBSize(ctx).Result(); err == nil {
		h.KeyCount = n
	}
	if info, err := s.client.Info(ctx, "memory").Result(); err == nil {
		h.UsedBytes = parseUsedMemory(info)
	}
	return h
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// parseUsedMemory extracts used_memory from an INFO memory reply. Returns 0
// when the field is absent, which callers treat as "unknown".
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
