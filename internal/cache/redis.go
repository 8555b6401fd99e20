package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a redis-backed Store for deployments that share the response
// cache across instances. Entries are stored as JSON with the TTL applied
// natively, so redis handles expiration itself and Cleanup is a no-op.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
	keyPrefix  string
	logger     *slog.Logger
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration
	Logger     *slog.Logger
}

// NewRedis connects to redis and verifies the connection with a ping.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "crux:cache:"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis cache connection failed", "addr", cfg.Addr, "error", err)
		return nil, err
	}
	logger.Info("redis response cache initialized", "addr", cfg.Addr, "db", cfg.DB)

	return &Redis{
		client:     client,
		defaultTTL: cfg.DefaultTTL,
		keyPrefix:  cfg.KeyPrefix,
		logger:     logger,
	}, nil
}

// redisEntry is the serialized form; ExpiresAt rides along so Get can
// rebuild the full Entry even though redis owns expiry.
type redisEntry struct {
	Body         []byte    `json:"body"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	TTLMillis    int64     `json:"ttl_ms"`
	ExpiresAt    time.Time `json:"expires_at"`
	ContentType  string    `json:"content_type"`
}

// Get implements Store. Redis evicts expired keys itself; an entry that is
// physically present but logically expired (clock skew between writer and
// redis) is deleted here and treated as absent.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		r.logger.Warn("redis cache entry corrupt, dropping", "key", key, "error", err)
		r.client.Del(ctx, r.keyPrefix+key)
		return nil, false
	}
	e := &Entry{
		Body:         re.Body,
		ETag:         re.ETag,
		LastModified: re.LastModified,
		TTL:          time.Duration(re.TTLMillis) * time.Millisecond,
		ExpiresAt:    re.ExpiresAt,
		ContentType:  re.ContentType,
	}
	if e.Expired(time.Now()) {
		r.client.Del(ctx, r.keyPrefix+key)
		return nil, false
	}
	return e, true
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, body []byte, ttl time.Duration, contentType string) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	now := time.Now()
	re := redisEntry{
		Body:         body,
		ETag:         ContentETag(body),
		LastModified: now,
		TTLMillis:    ttl.Milliseconds(),
		ExpiresAt:    now.Add(ttl),
		ContentType:  contentType,
	}
	raw, err := json.Marshal(re)
	if err != nil {
		r.logger.Warn("redis cache marshal failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, raw, ttl).Err(); err != nil {
		r.logger.Warn("redis cache set failed", "key", key, "error", err)
	}
}

// Invalidate implements Store.
func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		r.logger.Warn("redis cache invalidate failed", "key", key, "error", err)
	}
}

// InvalidatePrefix implements Store using SCAN+DEL in batches.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+prefix+"*", 128).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 128 {
			r.client.Del(ctx, batch...)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis cache prefix scan failed", "prefix", prefix, "error", err)
	}
	if len(batch) > 0 {
		r.client.Del(ctx, batch...)
	}
}

// Cleanup implements Store. Redis expires keys natively.
func (r *Redis) Cleanup(context.Context) {}

// Close releases the client connection pool.
func (r *Redis) Close() error { return r.client.Close() }
