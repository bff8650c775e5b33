package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizon.shop/internal/store"
	"horizon.shop/internal/store/memory"
)

// countingCollection records reads that reach the backing collection.
type countingCollection struct {
	store.Collection
	findOne int
	findAll int
}

func (c *countingCollection) FindOne(ctx context.Context, key store.Key) (store.Document, error) {
	c.findOne++
	return c.Collection.FindOne(ctx, key)
}

func (c *countingCollection) FindAll(ctx context.Context, f store.Filter) ([]store.Document, error) {
	c.findAll++
	return c.Collection.FindAll(ctx, f)
}

func setup(t *testing.T) (*Collection, *countingCollection, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backing := &countingCollection{Collection: memory.New().Collection(store.Products)}
	return Wrap(backing, Options{TTL: time.Minute, Capacity: 16, Redis: client}), backing, mr, client
}

func TestFindOneReadThrough(t *testing.T) {
	ctx := context.Background()
	c, backing, mr, _ := setup(t)
	res, err := c.Insert(ctx, store.Document{"name": "lamp"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		doc, err := c.FindOne(ctx, store.ByID(res.ID))
		require.NoError(t, err)
		assert.Equal(t, "lamp", doc["name"])
	}
	assert.Equal(t, 1, backing.findOne)
	assert.True(t, mr.Exists("horizon:products:"+res.ID))
}

func TestSharedTierServesColdLocal(t *testing.T) {
	ctx := context.Background()
	c, backing, _, client := setup(t)
	res, err := c.Insert(ctx, store.Document{"name": "lamp"})
	require.NoError(t, err)
	_, err = c.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)

	// a second replica shares redis but not the local tier
	peer := Wrap(backing, Options{TTL: time.Minute, Capacity: 16, Redis: client})
	doc, err := peer.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, "lamp", doc["name"])
	assert.Equal(t, 1, backing.findOne)
}

func TestWritesInvalidate(t *testing.T) {
	ctx := context.Background()
	c, backing, mr, _ := setup(t)
	res, err := c.Insert(ctx, store.Document{"name": "lamp", "price": 10})
	require.NoError(t, err)

	all, err := c.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	_, err = c.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)

	_, err = c.Upsert(ctx, store.ByID(res.ID), store.Document{"price": 12})
	require.NoError(t, err)
	assert.False(t, mr.Exists("horizon:products:"+res.ID))
	assert.False(t, mr.Exists("horizon:products:*"))

	doc, err := c.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, float64(12), doc["price"])

	_, err = c.Insert(ctx, store.Document{"name": "desk"})
	require.NoError(t, err)
	all, err = c.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, backing.findAll)

	_, err = c.Delete(ctx, store.ByID(res.ID))
	require.NoError(t, err)
	_, err = c.FindOne(ctx, store.ByID(res.ID))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLocalOnlyWithoutRedis(t *testing.T) {
	ctx := context.Background()
	backing := &countingCollection{Collection: memory.New().Collection(store.Products)}
	c := Wrap(backing, Options{})
	res, err := c.Insert(ctx, store.Document{"name": "lamp"})
	require.NoError(t, err)
	_, err = c.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)
	_, err = c.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, backing.findOne)

	_, err = c.FindOne(ctx, store.ByID("not-an-id"))
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestRedisOutageFallsBack(t *testing.T) {
	ctx := context.Background()
	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = dead.Close() })
	backing := &countingCollection{Collection: memory.New().Collection(store.Products)}
	c := Wrap(backing, Options{TTL: time.Minute, Capacity: 16, Redis: dead})

	res, err := c.Insert(ctx, store.Document{"name": "lamp"})
	require.NoError(t, err)
	doc, err := c.FindOne(ctx, store.ByID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, "lamp", doc["name"])
	assert.Equal(t, 1, backing.findOne)
}
