package cache

import (
	"github.com/c360/semblocks/errors"
)

// Cache is the generic cache contract. Values are keyed by string.
type Cache[V any] interface {
	// Get returns the value and true if present and not expired.
	Get(key string) (V, bool)

	// Set stores a value. It reports whether a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry and reports whether it existed.
	Delete(key string) (bool, error)

	Clear() error
	Size() int
	Keys() []string
	Stats() *Statistics
	Close() error
}

// EvictCallback is called when an entry leaves the cache by expiry, deletion or Clear.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
