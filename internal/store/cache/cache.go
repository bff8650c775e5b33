// Package cache decorates a collection with a read-through cache: a local
// expirable LRU in front of an optional shared Redis tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"horizon.shop/internal/obs"
	"horizon.shop/internal/store"
)

const (
	allKey       = "*"
	keyNamespace = "horizon:"
)

// Options configures the decorator.
type Options struct {
	TTL      time.Duration
	Capacity int
	// Redis is optional; nil keeps caching process-local.
	Redis *redis.Client
}

// Collection caches FindOne by id and unfiltered FindAll. Every write
// invalidates the affected entries in both tiers.
type Collection struct {
	next  store.Collection
	local *expirable.LRU[string, []byte]
	redis *redis.Client
	ttl   time.Duration
}

var _ store.Collection = (*Collection)(nil)

// Wrap returns next decorated with caching.
func Wrap(next store.Collection, opts Options) *Collection {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 1024
	}
	return &Collection{
		next:  next,
		local: expirable.NewLRU[string, []byte](opts.Capacity, nil, opts.TTL),
		redis: opts.Redis,
		ttl:   opts.TTL,
	}
}

// NewRedis parses a redis:// URL into a client.
func NewRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func (c *Collection) Name() string { return c.next.Name() }

func (c *Collection) FindAll(ctx context.Context, filter store.Filter) ([]store.Document, error) {
	if len(filter) > 0 {
		return c.next.FindAll(ctx, filter)
	}
	var docs []store.Document
	if c.get(ctx, allKey, &docs) {
		return docs, nil
	}
	docs, err := c.next.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.set(ctx, allKey, docs)
	return docs, nil
}

func (c *Collection) FindOne(ctx context.Context, key store.Key) (store.Document, error) {
	if !key.IsID() {
		return c.next.FindOne(ctx, key)
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var doc store.Document
	if c.get(ctx, key.ID(), &doc) {
		return doc, nil
	}
	doc, err := c.next.FindOne(ctx, key)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key.ID(), doc)
	return doc, nil
}

func (c *Collection) Insert(ctx context.Context, doc store.Document) (store.InsertResult, error) {
	res, err := c.next.Insert(ctx, doc)
	if err == nil {
		c.invalidate(ctx)
	}
	return res, err
}

func (c *Collection) Upsert(ctx context.Context, key store.Key, patch store.Document) (store.UpdateResult, error) {
	ids := c.affected(ctx, key)
	res, err := c.next.Upsert(ctx, key, patch)
	if err == nil {
		c.invalidate(ctx, ids...)
	}
	return res, err
}

func (c *Collection) Update(ctx context.Context, key store.Key, patch store.Document) (store.UpdateResult, error) {
	ids := c.affected(ctx, key)
	res, err := c.next.Update(ctx, key, patch)
	if err == nil {
		c.invalidate(ctx, ids...)
	}
	return res, err
}

func (c *Collection) Delete(ctx context.Context, key store.Key) (store.DeleteResult, error) {
	ids := c.affected(ctx, key)
	res, err := c.next.Delete(ctx, key)
	if err == nil {
		c.invalidate(ctx, ids...)
	}
	return res, err
}

func (c *Collection) Count(ctx context.Context, filter store.Filter) (int64, error) {
	return c.next.Count(ctx, filter)
}

// affected resolves the document id a write will touch.
func (c *Collection) affected(ctx context.Context, key store.Key) []string {
	if key.IsID() {
		return []string{key.ID()}
	}
	doc, err := c.next.FindOne(ctx, key)
	if err != nil {
		return nil
	}
	if id, ok := doc[store.IDField].(string); ok {
		return []string{id}
	}
	return nil
}

func (c *Collection) redisKey(k string) string {
	return keyNamespace + c.next.Name() + ":" + k
}

func (c *Collection) get(ctx context.Context, k string, dst any) bool {
	if raw, ok := c.local.Get(k); ok {
		if json.Unmarshal(raw, dst) == nil {
			obs.CacheLookup("local", true)
			return true
		}
	}
	obs.CacheLookup("local", false)
	if c.redis == nil {
		return false
	}
	raw, err := c.redis.Get(ctx, c.redisKey(k)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			obs.Logger().WithError(err).WithField("collection", c.Name()).Warn("cache_read_failed")
		}
		obs.CacheLookup("redis", false)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		obs.CacheLookup("redis", false)
		return false
	}
	obs.CacheLookup("redis", true)
	c.local.Add(k, raw)
	return true
}

func (c *Collection) set(ctx context.Context, k string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.local.Add(k, raw)
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.redisKey(k), raw, c.ttl).Err(); err != nil {
		obs.Logger().WithError(err).WithField("collection", c.Name()).Warn("cache_write_failed")
	}
}

func (c *Collection) invalidate(ctx context.Context, ids ...string) {
	keys := append([]string{allKey}, ids...)
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		c.local.Remove(k)
		redisKeys = append(redisKeys, c.redisKey(k))
	}
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, redisKeys...).Err(); err != nil {
		obs.Logger().WithFields(logrus.Fields{
			"collection": c.Name(),
			"keys":       redisKeys,
		}).WithError(err).Warn("cache_invalidate_failed")
	}
}
