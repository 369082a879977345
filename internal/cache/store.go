// Package cache provides typed access to the wiki cache store, keyed by
// repository identity and language. The cache is an optimization, never a
// hard dependency: the gateway absorbs every store failure.
package cache

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Key addresses one cache record.
type Key struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	HostType string `json:"host_type"`
	Language string `json:"language"`
}

// KeyFor builds the cache key for an identity and language.
func KeyFor(identity wiki.Identity, language string) Key {
	return Key{Owner: identity.Owner, Repo: identity.Repo, HostType: identity.HostType, Language: language}
}

// String renders the key for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", k.Owner, k.Repo, k.HostType, k.Language)
}

// Record is the unit of persistence: one complete generated wiki. Written
// once per successful cycle, read once per cycle start. Structure is a
// pointer so a record with no usable structure stays representable and is
// treated as a miss by readers.
type Record struct {
	Structure    *wiki.Structure             `json:"structure"`
	Pages        map[string]wiki.PageContent `json:"pages"`
	Fingerprints map[string]string           `json:"fingerprints,omitempty"` // page id -> content fingerprint
	SavedAt      time.Time                   `json:"saved_at"`
}

// Store is the raw key/value persistence backend.
type Store interface {
	// Get retrieves a record. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) (*Record, error)

	// Put stores a record, replacing any existing one.
	Put(ctx context.Context, key Key, record *Record) error

	// Delete removes a record. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned when a record doesn't exist.
type ErrNotFound struct {
	Key Key
}

func (e ErrNotFound) Error() string {
	return "cache record not found: " + e.Key.String()
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
