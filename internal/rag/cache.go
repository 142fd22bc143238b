package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores answered results. A miss is (Result{}, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, res Result, ttl time.Duration) error
	Close() error
}

// CacheKey identifies a query under the gate settings that produced its answer.
func CacheKey(query string, threshold float64, topK int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	h := sha256.Sum256([]byte(normalized + "|" + strconv.FormatFloat(threshold, 'f', -1, 64) + "|" + strconv.Itoa(topK)))
	return "aspbot:rag:" + hex.EncodeToString(h[:])
}

// NewCache returns a Redis cache when url is set, otherwise an in-process cache.
func NewCache(ctx context.Context, url string, log *zap.Logger) (Cache, error) {
	if strings.TrimSpace(url) == "" {
		return NewMemoryCache(), nil
	}
	return NewRedisCache(ctx, url, log)
}

type memoryEntry struct {
	res     Result
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return Result{}, false, nil
	}
	return e.res.clone(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{res: res.clone(), expires: now.Add(ttl)}
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// RedisCache shares answers between replicas.
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisCache(ctx context.Context, url string, log *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if log != nil {
		log.Info("connected to redis answer cache")
	}
	return &RedisCache{client: client, log: log}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
