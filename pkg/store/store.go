package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates no document is stored under the key.
var ErrNotFound = errors.New("document not found")

// Store saves and loads raw documents.
type Store interface {
	Save(ctx context.Context, key Key, doc *Document) error
	Load(ctx context.Context, key Key) (*Document, error)
	Delete(ctx context.Context, key Key) error
}

var (
	_ Store = (*FSStore)(nil)
	_ Store = (*RedisStore)(nil)
)
