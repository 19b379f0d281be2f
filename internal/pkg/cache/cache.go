package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ignews/internal/pkg/env"
)

// ErrMiss is returned by PageStore.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Config describes the Redis connection shared by cache, sessions and OAuth state.
type Config struct {
	Host     string
	Port     string
	Password string
}

func LoadConfig() Config {
	return Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     env.GetEnv("CACHE_PORT", "6379"),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
	}
}

// SetupCache creates the Redis client (DB 0) and pings it. A failed ping is
// only logged: pages are then rendered without caching.
func SetupCache(cfg Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       DatabaseCache,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] could not connect to redis: %v", err)
	} else {
		log.Infof("[Cache] connected to redis: %s", pong)
	}

	return client
}

// Redis databases by concern.
const (
	DatabaseCache    = 0
	DatabaseSessions = 1
	DatabaseOAuth    = 2
	DatabaseLimiter  = 3
)

// NewStorage returns a fiber.Storage on the given Redis database, for the
// session, OAuth state and limiter middlewares.
func NewStorage(cfg Config, database int) *redisstorage.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: database,
		Reset:    false,
	})
}

// PageStore keeps rendered page data for the revalidation window.
type PageStore struct {
	client *redis.Client
	prefix string
}

func NewPageStore(client *redis.Client, prefix string) *PageStore {
	return &PageStore{client: client, prefix: prefix}
}

func (s *PageStore) key(k string) string {
	return s.prefix + k
}

func (s *PageStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *PageStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

// Delete removes keys; missing keys are not an error.
func (s *PageStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	return s.client.Del(ctx, full...).Err()
}
