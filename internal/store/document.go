package store

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Normalize converts an arbitrary document into its JSON form so values
// compare the same way regardless of the Go types they were built from.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

// Clone deep-copies a normalized document.
func Clone(doc Document) Document {
	out, err := Normalize(doc)
	if err != nil {
		// normalized documents always round-trip
		panic(err)
	}
	return out
}

// Merge sets each top-level field of patch on dst and reports whether any
// value actually changed. Both documents must be normalized.
func Merge(dst, patch Document) bool {
	changed := false
	for k, v := range patch {
		if k == IDField {
			continue
		}
		if cur, ok := dst[k]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		dst[k] = v
		changed = true
	}
	return changed
}

// Matches reports whether doc satisfies every equality in filter.
func Matches(doc Document, filter Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// NormalizeFilter puts filter values in the same JSON form as stored documents.
func NormalizeFilter(f Filter) (Filter, error) {
	doc, err := Normalize(Document(f))
	if err != nil {
		return nil, err
	}
	return Filter(doc), nil
}

// StripID returns patch without the reserved identifier field.
func StripID(patch Document) Document {
	if _, ok := patch[IDField]; !ok {
		return patch
	}
	out := make(Document, len(patch))
	for k, v := range patch {
		if k != IDField {
			out[k] = v
		}
	}
	return out
}
