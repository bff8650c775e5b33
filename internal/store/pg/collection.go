package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"horizon.shop/internal/ids"
	"horizon.shop/internal/obs"
	"horizon.shop/internal/store"
)

// Collection is one named collection inside the documents table.
type Collection struct {
	db      *sql.DB
	name    string
	timeout time.Duration
}

var _ store.Collection = (*Collection)(nil)

func (c *Collection) Name() string { return c.name }

func (c *Collection) FindAll(ctx context.Context, filter store.Filter) (docs []store.Document, err error) {
	defer c.observe("find_all", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := encode(store.Document(filter))
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
		select body from documents
		where collection = $1 and body @> $2::jsonb
		order by id
	`, c.name, f)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs = []store.Document{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *Collection) FindOne(ctx context.Context, key store.Key) (doc store.Document, err error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	defer c.observe("find_one", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	clause, arg, err := keyClause(key)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = c.db.QueryRowContext(ctx, `select body from documents where collection = $1 and `+clause+` limit 1`, c.name, arg).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (c *Collection) Insert(ctx context.Context, doc store.Document) (res store.InsertResult, err error) {
	defer c.observe("insert", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := store.StripID(doc)
	id := ids.New()
	withID := make(store.Document, len(body)+1)
	for k, v := range body {
		withID[k] = v
	}
	withID[store.IDField] = id
	raw, err := encode(withID)
	if err != nil {
		return store.InsertResult{}, err
	}
	if _, err := c.db.ExecContext(ctx, `
		insert into documents(collection, id, body) values ($1, $2, $3::jsonb)
	`, c.name, id, raw); err != nil {
		return store.InsertResult{}, mapError(err)
	}
	return store.InsertResult{ID: id}, nil
}

func (c *Collection) Upsert(ctx context.Context, key store.Key, patch store.Document) (res store.UpdateResult, err error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}
	defer c.observe("upsert", time.Now(), &err)
	res, err = c.merge(ctx, key, patch, true)
	if errors.Is(err, store.ErrConflict) && !key.IsID() {
		// a concurrent upsert created the natural key first; merge into it
		res, err = c.merge(ctx, key, patch, true)
	}
	return res, err
}

func (c *Collection) Update(ctx context.Context, key store.Key, patch store.Document) (res store.UpdateResult, err error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}
	defer c.observe("update", time.Now(), &err)
	return c.merge(ctx, key, patch, false)
}

func (c *Collection) merge(ctx context.Context, key store.Key, patch store.Document, create bool) (store.UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := store.Normalize(store.StripID(patch))
	if err != nil {
		return store.UpdateResult{}, err
	}
	clause, arg, err := keyClause(key)
	if err != nil {
		return store.UpdateResult{}, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return store.UpdateResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id  string
		raw []byte
	)
	err = tx.QueryRowContext(ctx, `
		select id, body from documents
		where collection = $1 and `+clause+`
		limit 1 for update
	`, c.name, arg).Scan(&id, &raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !create {
			return store.UpdateResult{}, nil
		}
		return c.create(ctx, tx, key, body)
	case err != nil:
		return store.UpdateResult{}, err
	}

	current, err := decode(raw)
	if err != nil {
		return store.UpdateResult{}, err
	}
	if !store.Merge(current, body) {
		return store.UpdateResult{Matched: 1}, tx.Commit()
	}
	p, err := encode(body)
	if err != nil {
		return store.UpdateResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update documents set body = body || $3::jsonb, updated_at = now()
		where collection = $1 and id = $2
	`, c.name, id, p); err != nil {
		return store.UpdateResult{}, mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return store.UpdateResult{}, err
	}
	return store.UpdateResult{Matched: 1, Modified: 1}, nil
}

func (c *Collection) create(ctx context.Context, tx *sql.Tx, key store.Key, body store.Document) (store.UpdateResult, error) {
	id := key.ID()
	if !key.IsID() {
		id = ids.New()
		body[key.Field()] = key.Value()
	}
	body[store.IDField] = id
	raw, err := encode(body)
	if err != nil {
		return store.UpdateResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into documents(collection, id, body) values ($1, $2, $3::jsonb)
	`, c.name, id, raw); err != nil {
		return store.UpdateResult{}, mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return store.UpdateResult{}, mapError(err)
	}
	return store.UpdateResult{UpsertedID: id}, nil
}

func (c *Collection) Delete(ctx context.Context, key store.Key) (res store.DeleteResult, err error) {
	if err := key.Validate(); err != nil {
		return store.DeleteResult{}, err
	}
	defer c.observe("delete", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	clause, arg, err := keyClause(key)
	if err != nil {
		return store.DeleteResult{}, err
	}
	out, err := c.db.ExecContext(ctx, `delete from documents where collection = $1 and `+clause, c.name, arg)
	if err != nil {
		return store.DeleteResult{}, err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return store.DeleteResult{}, err
	}
	return store.DeleteResult{Deleted: n}, nil
}

func (c *Collection) Count(ctx context.Context, filter store.Filter) (n int64, err error) {
	defer c.observe("count", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := encode(store.Document(filter))
	if err != nil {
		return 0, err
	}
	err = c.db.QueryRowContext(ctx, `
		select count(*) from documents where collection = $1 and body @> $2::jsonb
	`, c.name, f).Scan(&n)
	return n, err
}

func (c *Collection) observe(op string, start time.Time, err *error) {
	obs.ObserveStoreOp(c.name, op, *err, time.Since(start))
}

// keyClause renders the predicate for key as the $2 argument.
func keyClause(key store.Key) (string, any, error) {
	if key.IsID() {
		return "id = $2", key.ID(), nil
	}
	raw, err := encode(store.Document{key.Field(): key.Value()})
	if err != nil {
		return "", nil, err
	}
	return "body @> $2::jsonb", raw, nil
}

func encode(doc store.Document) (string, error) {
	if doc == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func decode(raw []byte) (store.Document, error) {
	doc := store.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
