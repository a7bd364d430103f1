package store

import (
	"context"
	"errors"
)

// ErrStorageFull marks a save rejected because the backing medium is out of
// space. Callers distinguish it from other failures so the user can be
// prompted to free space.
var ErrStorageFull = errors.New("storage quota exceeded")

// KeyValueStore persists one serialized queue snapshot under a single key.
// Load returns (nil, nil) when nothing has been persisted yet.
type KeyValueStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

func isStorageFull(err error) bool {
	return errors.Is(err, ErrStorageFull)
}
