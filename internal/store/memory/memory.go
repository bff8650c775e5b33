// Package memory is an in-process store backend used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"horizon.shop/internal/ids"
	"horizon.shop/internal/store"
)

// uniqueFields mirrors the natural-key indexes of the Postgres schema.
var uniqueFields = map[string]string{
	store.Users: "email",
}

// Backend holds every collection in process memory.
type Backend struct {
	mu          sync.Mutex
	collections map[string]*Collection
	closed      bool
}

var _ store.Backend = (*Backend)(nil)

// New creates an empty backend.
func New() *Backend {
	return &Backend{collections: map[string]*Collection{}}
}

// Open returns a ready store.Store on a fresh in-memory backend.
func Open() *store.Store { return store.New(New()) }

// Collection returns the named collection, creating it on first use.
func (b *Backend) Collection(name string) store.Collection {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[name]; ok {
		return c
	}
	c := &Collection{name: name, unique: uniqueFields[name], docs: map[string]store.Document{}}
	b.collections[name] = c
	return c
}

func (b *Backend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory store closed")
	}
	return ctx.Err()
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Collection implements store.Collection with concurrency safety.
type Collection struct {
	name   string
	unique string

	mu    sync.RWMutex
	docs  map[string]store.Document
	order []string
}

var _ store.Collection = (*Collection)(nil)

func (c *Collection) Name() string { return c.name }

func (c *Collection) FindAll(ctx context.Context, filter store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := store.NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]store.Document, 0, len(c.order))
	for _, id := range c.order {
		if doc := c.docs[id]; store.Matches(doc, f) {
			out = append(out, store.Clone(doc))
		}
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, key store.Key) (store.Document, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.lookup(key)
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Clone(c.docs[id]), nil
}

func (c *Collection) Insert(ctx context.Context, doc store.Document) (store.InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return store.InsertResult{}, err
	}
	body, err := store.Normalize(store.StripID(doc))
	if err != nil {
		return store.InsertResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.violatesUnique("", body) {
		return store.InsertResult{}, store.ErrConflict
	}
	id := ids.New()
	body[store.IDField] = id
	c.put(id, body)
	return store.InsertResult{ID: id}, nil
}

func (c *Collection) Upsert(ctx context.Context, key store.Key, patch store.Document) (store.UpdateResult, error) {
	return c.merge(ctx, key, patch, true)
}

func (c *Collection) Update(ctx context.Context, key store.Key, patch store.Document) (store.UpdateResult, error) {
	return c.merge(ctx, key, patch, false)
}

func (c *Collection) merge(ctx context.Context, key store.Key, patch store.Document, create bool) (store.UpdateResult, error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.UpdateResult{}, err
	}
	body, err := store.Normalize(store.StripID(patch))
	if err != nil {
		return store.UpdateResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.lookup(key); ok {
		doc := c.docs[id]
		next := store.Clone(doc)
		if !store.Merge(next, body) {
			return store.UpdateResult{Matched: 1}, nil
		}
		if c.violatesUnique(id, next) {
			return store.UpdateResult{}, store.ErrConflict
		}
		c.docs[id] = next
		return store.UpdateResult{Matched: 1, Modified: 1}, nil
	}
	if !create {
		return store.UpdateResult{}, nil
	}

	id := key.ID()
	if !key.IsID() {
		id = ids.New()
		kv, err := store.Normalize(store.Document{key.Field(): key.Value()})
		if err != nil {
			return store.UpdateResult{}, err
		}
		body[key.Field()] = kv[key.Field()]
	}
	body[store.IDField] = id
	if c.violatesUnique(id, body) {
		return store.UpdateResult{}, store.ErrConflict
	}
	c.put(id, body)
	return store.UpdateResult{UpsertedID: id}, nil
}

func (c *Collection) Delete(ctx context.Context, key store.Key) (store.DeleteResult, error) {
	if err := key.Validate(); err != nil {
		return store.DeleteResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.DeleteResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.lookup(key)
	if !ok {
		return store.DeleteResult{}, nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return store.DeleteResult{Deleted: 1}, nil
}

func (c *Collection) Count(ctx context.Context, filter store.Filter) (int64, error) {
	docs, err := c.FindAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// lookup must be called with c.mu held.
func (c *Collection) lookup(key store.Key) (string, bool) {
	if key.IsID() {
		_, ok := c.docs[key.ID()]
		return key.ID(), ok
	}
	want, err := store.Normalize(store.Document{key.Field(): key.Value()})
	if err != nil {
		return "", false
	}
	for _, id := range c.order {
		if store.Matches(c.docs[id], store.Filter(want)) {
			return id, true
		}
	}
	return "", false
}

func (c *Collection) violatesUnique(self string, doc store.Document) bool {
	if c.unique == "" {
		return false
	}
	v, ok := doc[c.unique]
	if !ok {
		return false
	}
	for id, other := range c.docs {
		if id != self && store.Matches(other, store.Filter{c.unique: v}) {
			return true
		}
	}
	return false
}

func (c *Collection) put(id string, doc store.Document) {
	c.docs[id] = doc
	c.order = append(c.order, id)
}
