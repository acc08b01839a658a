package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a KV when the key is absent.
var ErrCacheMiss = errors.New("embedding cache miss")

// Generator is any embedding function the cache can wrap.
type Generator interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// KV is the byte store behind Cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache memoises embeddings by model and text hash. Cache failures are
// logged and fall through to the wrapped generator.
type Cache struct {
	next  Generator
	kv    KV
	model string
	ttl   time.Duration
}

func NewCache(next Generator, kv KV, model string, ttl time.Duration) *Cache {
	return &Cache{next: next, kv: kv, model: model, ttl: ttl}
}

func (c *Cache) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		if vec, ok := decodeVector(raw); ok {
			return vec, nil
		}
		log.Printf("embedding cache: discarding malformed entry %s", key)
	case !errors.Is(err, ErrCacheMiss):
		log.Printf("embedding cache: get failed: %v", err)
	}

	vec, err := c.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.kv.Set(ctx, key, encodeVector(vec), c.ttl); err != nil {
		log.Printf("embedding cache: set failed: %v", err)
	}
	return vec, nil
}

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("campaignkb:emb:%s:%s", c.model, hex.EncodeToString(sum[:]))
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return val, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}
