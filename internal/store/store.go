// Package store is the document-store facade shared by every collection.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"horizon.shop/internal/ids"
)

// Collection names.
const (
	Products = "products"
	Users    = "users"
	Orders   = "orders"
	Reviews  = "reviews"
)

// IDField is the reserved identifier field on every document.
const IDField = "_id"

var (
	ErrNotFound  = errors.New("store: document not found")
	ErrInvalidID = errors.New("store: invalid identifier")
	ErrConflict  = errors.New("store: unique key conflict")
)

// Document is a JSON object as stored.
type Document = map[string]any

// Filter matches documents whose top-level fields equal the given values.
// An empty filter matches everything.
type Filter map[string]any

// Key addresses a single document, either by identifier or by a natural key.
type Key struct {
	field string
	value any
}

// ByID addresses a document by its store-assigned identifier.
func ByID(id string) Key { return Key{field: IDField, value: ids.Normalize(id)} }

// ByField addresses a document by a unique natural key such as email.
func ByField(field string, value any) Key { return Key{field: field, value: value} }

func (k Key) Field() string { return k.field }
func (k Key) Value() any    { return k.value }
func (k Key) IsID() bool    { return k.field == IDField }

// ID returns the identifier of an id key.
func (k Key) ID() string {
	s, _ := k.value.(string)
	return s
}

// Validate rejects id keys that are not well-formed before any query runs.
func (k Key) Validate() error {
	if strings.TrimSpace(k.field) == "" {
		return fmt.Errorf("%w: empty key field", ErrInvalidID)
	}
	if k.IsID() && !ids.Valid(k.ID()) {
		return fmt.Errorf("%w: %q", ErrInvalidID, k.ID())
	}
	return nil
}

func (k Key) String() string { return fmt.Sprintf("%s=%v", k.field, k.value) }

type InsertResult struct {
	ID string
}

type UpdateResult struct {
	Matched    int64
	Modified   int64
	UpsertedID string
}

type DeleteResult struct {
	Deleted int64
}

// Collection is the contract every backend implements for a single named
// collection. Writes are atomic per document only.
type Collection interface {
	Name() string
	FindAll(ctx context.Context, filter Filter) ([]Document, error)
	FindOne(ctx context.Context, key Key) (Document, error)
	Insert(ctx context.Context, doc Document) (InsertResult, error)
	// Upsert merges the supplied top-level fields into the addressed document,
	// creating it (with the key field set) when absent.
	Upsert(ctx context.Context, key Key, patch Document) (UpdateResult, error)
	// Update merges like Upsert but never creates.
	Update(ctx context.Context, key Key, patch Document) (UpdateResult, error)
	Delete(ctx context.Context, key Key) (DeleteResult, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Backend opens collections on one underlying connection.
type Backend interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close() error
}

// Store is the process-wide handle, created once at startup and injected.
type Store struct {
	Products Collection
	Users    Collection
	Orders   Collection
	Reviews  Collection

	backend Backend
}

// New binds the four collections on backend.
func New(b Backend) *Store {
	return &Store{
		Products: b.Collection(Products),
		Users:    b.Collection(Users),
		Orders:   b.Collection(Orders),
		Reviews:  b.Collection(Reviews),
		backend:  b,
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

func (s *Store) Close() error { return s.backend.Close() }

// All lists the collections in a stable order.
func (s *Store) All() []Collection {
	return []Collection{s.Products, s.Users, s.Orders, s.Reviews}
}
