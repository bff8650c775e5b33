package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for document keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether id has the shape of an identifier produced by New.
// Lower-case input is accepted since ULIDs are case-insensitive.
func Valid(id string) bool {
	id = strings.TrimSpace(id)
	if len(id) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}

// Normalize returns the canonical upper-case form of a valid identifier.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
