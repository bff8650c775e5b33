package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Seed loads fixture documents keyed by collection name, e.g.
//
//	{"products": [{"_id": "...", "name": "Tent"}], "users": [{"email": "a@b.c"}]}
//
// Documents with an _id are upserted by id, users by email, anything else is
// inserted. Re-running a seed with ids is idempotent. It returns the number of
// documents written.
func Seed(ctx context.Context, s *Store, r io.Reader) (int, error) {
	var fixtures map[string][]Document
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&fixtures); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}

	byName := make(map[string]Collection)
	for _, c := range s.All() {
		byName[c.Name()] = c
	}

	names := make([]string, 0, len(fixtures))
	for name := range fixtures {
		if _, ok := byName[name]; !ok {
			return 0, fmt.Errorf("seed: unknown collection %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	written := 0
	for _, name := range names {
		coll := byName[name]
		for i, doc := range fixtures[name] {
			if err := seedOne(ctx, coll, doc); err != nil {
				return written, fmt.Errorf("seed %s[%d]: %w", name, i, err)
			}
			written++
		}
	}
	return written, nil
}

func seedOne(ctx context.Context, coll Collection, doc Document) error {
	if id, ok := doc[IDField].(string); ok && id != "" {
		_, err := coll.Upsert(ctx, ByID(id), StripID(doc))
		return err
	}
	if coll.Name() == Users {
		if email, ok := doc["email"].(string); ok && email != "" {
			_, err := coll.Upsert(ctx, ByField("email", email), doc)
			return err
		}
	}
	_, err := coll.Insert(ctx, doc)
	return err
}
