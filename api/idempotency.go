package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// HeaderIdempotencyKey lets clients retry a mutation without it being applied
// twice. Keys are scoped to the record or project they mutate.
const HeaderIdempotencyKey = "Idempotency-Key"

// RedisDeduper stores processed idempotency keys in Redis so all instances
// can reject replays of the same mutation.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return "idem:" + scope + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, scope, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(scope, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the caller may retry after a
// failed mutation.
func (r *RedisDeduper) Remove(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

// idempotencyClaim tracks a claimed key so a failed mutation can release it.
type idempotencyClaim struct {
	deduper Deduper
	scope   string
	key     string
	logger  *log.Logger
}

func (cl idempotencyClaim) release(ctx context.Context) {
	if cl.deduper == nil || cl.key == "" {
		return
	}
	if err := cl.deduper.Remove(ctx, cl.scope, cl.key); err != nil {
		cl.logger.WithFields(log.Fields{"scope": cl.scope, "key": cl.key, "error": err.Error()}).Warn("idempotency rollback failed")
	}
}

// claimIdempotency claims the request's idempotency key when one is present.
// A replayed key writes a 409 response and reports handled=true. Deduper
// failures are treated as a fresh request; deduplication is an optimization,
// never a gate on writes.
func claimIdempotency(c echo.Context, deduper Deduper, scope string, logger *log.Logger) (claim idempotencyClaim, handled bool, err error) {
	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if deduper == nil || key == "" {
		return idempotencyClaim{}, false, nil
	}

	added, addErr := deduper.Add(c.Request().Context(), scope, key)
	if addErr != nil {
		logger.WithFields(log.Fields{"scope": scope, "key": key, "error": addErr.Error()}).Warn("idempotency check failed")
		return idempotencyClaim{}, false, nil
	}
	if !added {
		return idempotencyClaim{}, true, c.JSON(http.StatusConflict, envelope{Error: "duplicate request"})
	}
	return idempotencyClaim{deduper: deduper, scope: scope, key: key, logger: logger}, false, nil
}
