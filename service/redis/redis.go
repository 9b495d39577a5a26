package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/prydesocial/go-pryde/env"
	"github.com/prydesocial/go-pryde/service/memstore"
)

type redisDB int

type CacheConfig struct {
	database    redisDB
	displayName string
	keyPrefix   string
}

const (
	drafts redisDB = 0
	misc   redisDB = 1
)

// Every cache is uniquely defined by its database and key prefix.

var (
	DraftsCache = CacheConfig{database: drafts, keyPrefix: "draft", displayName: "drafts"}
	MiscCache   = CacheConfig{database: misc, keyPrefix: "", displayName: "misc"}
)

func newClient(db redisDB) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	client := redis.NewClient(&redis.Options{
		Addr:     env.GetString("REDIS_URL"),
		Password: env.GetString("REDIS_PASS"),
		DB:       int(db),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		panic(err)
	}
	return client
}

// Cache is a memstore.Cache backed by a redis client with namespaced keys.
type Cache struct {
	client    *redis.Client
	keyPrefix string
}

// NewCache creates a new redis cache
func NewCache(config CacheConfig) *Cache {
	return &Cache{
		client:    newClient(config.database),
		keyPrefix: config.keyPrefix,
	}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// Set sets a value in the redis cache
func (c *Cache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, c.getPrefixedKey(key), value, expiration).Err()
}

// Get gets a value from the redis cache
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	bs, err := c.client.Get(ctx, c.getPrefixedKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, memstore.ErrKeyNotFound{Key: key}
		}
		return nil, err
	}
	return bs, nil
}

// Delete removes a key from the redis cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.getPrefixedKey(key)).Err()
}

// Close closes the underlying redis client
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) getPrefixedKey(key string) string {
	if c.keyPrefix == "" {
		return key
	}
	return c.keyPrefix + ":" + key
}
