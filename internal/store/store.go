// Package store defines the content record storage contract and its
// filesystem and caching implementations.
package store

import (
	"context"
	"io/fs"
)

// ErrNotExist is the only error a Store may use to say "no record at this path".
// Anything else is treated by callers as a failed load.
var ErrNotExist = fs.ErrNotExist

// Store loads raw content documents by slash-separated path.
type Store interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// Func adapts a plain function to Store.
type Func func(ctx context.Context, path string) ([]byte, error)

func (f Func) Load(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}
