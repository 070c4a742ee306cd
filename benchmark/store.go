package benchmark

import "context"

// Entry is a benchmark source keyed by "<dataset>/<name>".
type Entry struct {
	Key   string
	Value []byte
}

// Store translates between external storage and benchmark sources.
// Implementations are stateless; parsing and caching live in Loader.
type Store interface {
	// List returns all benchmark keys in the store.
	List(ctx context.Context) ([]string, error)
	// Load retrieves sources for the specified keys. Missing keys fail with
	// ErrKeyNotFound.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save persists sources, creating or overwriting as needed.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes sources. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
