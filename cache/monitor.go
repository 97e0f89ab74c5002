package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// EvictionPolicy decides which entries to drop when the store is over its
// memory threshold. Implementations must evict selectively rather than flush,
// so unaffected scopes stay warm.
type EvictionPolicy interface {
	// Evict removes a bounded number of entries and returns how many were
	// deleted.
	Evict(ctx context.Context) (int, error)
}

// ttlEvictionPolicy drops the entries closest to their natural expiry: the
// shorter the remaining TTL, the staler the entry is allowed to be. Only
// keys under allow-listed prefixes are ever considered. Every round trip is
// bounded by the store's operation timeout so a hung Redis cannot stall the
// sweep goroutine.
type ttlEvictionPolicy struct {
	client    *redis.Client
	batch     int
	opTimeout time.Duration
	logger    *log.Logger
}

// NewTTLEvictionPolicy returns the default policy, deleting up to batch keys
// per sweep ranked by remaining TTL.
func NewTTLEvictionPolicy(client *redis.Client, batch int, logger *log.Logger) EvictionPolicy {
	if batch <= 0 {
		batch = 64
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ttlEvictionPolicy{
		client:    client,
		batch:     batch,
		opTimeout: DefaultStoreConfig().OpTimeout,
		logger:    logger,
	}
}

type rankedKey struct {
	key string
	ttl time.Duration
}

func (p *ttlEvictionPolicy) Evict(ctx context.Context) (int, error) {
	var candidates []rankedKey
	for _, pattern := range AllowedInvalidationPatterns() {
		keys, err := p.collect(ctx, pattern)
		if err != nil {
			return 0, err
		}
		candidates = append(candidates, keys...)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ttl < candidates[j].ttl })
	limit := p.batch
	if limit > len(candidates) {
		limit = len(candidates)
	}
	victims := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		victims = append(victims, c.key)
	}
	if err := p.deleteKeys(ctx, victims); err != nil {
		return 0, err
	}
	p.logger.WithField("evicted", len(victims)).Info("cache eviction sweep")
	return len(victims), nil
}

// collect scans one pattern incrementally, capping the candidate set at a
// few batches so a sweep stays cheap on a large keyspace.
func (p *ttlEvictionPolicy) collect(ctx context.Context, pattern string) ([]rankedKey, error) {
	maxCandidates := p.batch * 4
	var out []rankedKey
	var cursor uint64
	for {
		keys, next, err := p.scanBatch(ctx, cursor, pattern)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ttl, err := p.remainingTTL(ctx, k)
			if err != nil {
				continue
			}
			out = append(out, rankedKey{key: k, ttl: ttl})
		}
		cursor = next
		if cursor == 0 || len(out) >= maxCandidates {
			break
		}
	}
	return out, nil
}

func (p *ttlEvictionPolicy) scanBatch(ctx context.Context, cursor uint64, pattern string) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.client.Scan(ctx, cursor, pattern, int64(p.batch)).Result()
}

func (p *ttlEvictionPolicy) remainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.client.TTL(ctx, key).Result()
}

func (p *ttlEvictionPolicy) deleteKeys(ctx context.Context, keys []string) error {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.client.Del(ctx, keys...).Err()
}

// Monitor polls store health off the request path and triggers eviction when
// memory use crosses the configured threshold. Status is a read-only snapshot
// for operational endpoints; the read/write paths never wait on the monitor.
type Monitor struct {
	store     Store
	policy    EvictionPolicy
	threshold int64
	interval  time.Duration
	logger    *log.Logger

	mu        sync.RWMutex
	health    Health
	lastCheck time.Time

	stop chan struct{}
	done chan struct{}
}

// NewMonitor builds a Monitor. A threshold of zero disables eviction; polling
// still records health. Start must be called to begin polling.
func NewMonitor(store Store, policy EvictionPolicy, threshold int64, interval time.Duration, logger *log.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Monitor{
		store:     store,
		policy:    policy,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (m *Monitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Check(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends polling and waits for the goroutine to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

// Check performs one poll cycle: refresh health and, when over threshold,
// run the eviction policy. It is safe to call on demand.
func (m *Monitor) Check(ctx context.Context) Health {
	h := m.store.Health(ctx)

	m.mu.Lock()
	m.health = h
	m.lastCheck = time.Now()
	m.mu.Unlock()

	if !h.Reachable {
		m.logger.Warn("cache unreachable")
		return h
	}
	if m.policy != nil && m.threshold > 0 && h.UsedBytes > m.threshold {
		m.logger.WithFields(log.Fields{"used_bytes": h.UsedBytes, "threshold": m.threshold}).Info("cache over memory threshold")
		if _, err := m.policy.Evict(ctx); err != nil {
			m.logger.WithField("error", err.Error()).Warn("cache eviction failed")
		}
	}
	return h
}

// Status returns the most recent health snapshot and when it was taken.
func (m *Monitor) Status() (Health, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health, m.lastCheck
}
