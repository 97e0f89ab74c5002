package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/api"
	"board-api/cache"
	"board-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		log.Fatal("missing database config")
	}
	db, err := storage.OpenDB(dsn)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	repo := storage.NewRepository(db)
	if err := repo.InitSchema(context.Background()); err != nil {
		log.Fatalf("schema: %v", err)
	}

	cacheEnabled := true
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Fatalf("invalid CACHE_ENABLED: %v", err)
		}
		cacheEnabled = b
	}

	ttl := cache.DefaultTTLPolicy()
	if v := os.Getenv("BOARD_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid BOARD_CACHE_TTL: %v", err)
		}
		ttl.Board = d
	}
	if v := os.Getenv("CATEGORIES_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid CATEGORIES_CACHE_TTL: %v", err)
		}
		ttl.Categories = d
	}

	var (
		store   cache.Store
		monitor *cache.Monitor
		deduper api.Deduper
	)
	if cacheEnabled {
		redisConn := os.Getenv("REDIS_CONNECTION_STRING")
		if redisConn == "" {
			log.Fatal("missing redis config")
		}
		rc := redis.NewClient(parseRedisOptions(redisConn))

		storeCfg := cache.DefaultStoreConfig()
		if v := os.Getenv("CACHE_OP_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_OP_TIMEOUT: %v", err)
			}
			storeCfg.OpTimeout = d
		}
		store = cache.NewRedisStore(rc, storeCfg, logger)

		threshold := int64(0)
		if v := os.Getenv("CACHE_MEMORY_THRESHOLD_BYTES"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				log.Fatalf("invalid CACHE_MEMORY_THRESHOLD_BYTES: %v", err)
			}
			threshold = n
		}
		interval := 30 * time.Second
		if v := os.Getenv("CACHE_HEALTH_INTERVAL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_HEALTH_INTERVAL: %v", err)
			}
			interval = d
		}
		policy := cache.NewTTLEvictionPolicy(rc, 64, logger)
		monitor = cache.NewMonitor(store, policy, threshold, interval, logger)
		monitor.Start()

		idemTTL := 24 * time.Hour
		if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid IDEMPOTENCY_TTL: %v", err)
			}
			idemTTL = d
		}
		deduper = api.NewRedisDeduper(rc, idemTTL)
	} else {
		logger.Info("cache disabled, serving from database only")
	}

	cached := storage.NewCache(repo, store, ttl, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))
	e.Use(middleware.Gzip())

	var reporter api.HealthReporter
	if monitor != nil {
		reporter = monitor
	}
	api.Register(e, cached, reporter, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// parseRedisOptions accepts a redis URL or a comma separated
// host:port,key=value connection string.
func parseRedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
