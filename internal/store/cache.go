package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached wraps a Store with a size- and TTL-bounded cache of successful loads.
// Missing and failed loads always reach the inner store.
type Cached struct {
	inner Store
	lru   *expirable.LRU[string, []byte]
}

func NewCached(inner Store, size int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		lru:   expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (c *Cached) Load(ctx context.Context, path string) ([]byte, error) {
	if data, ok := c.lru.Get(path); ok {
		return clone(data), nil
	}
	data, err := c.inner.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	c.lru.Add(path, clone(data))
	return data, nil
}

// Purge drops every cached document.
func (c *Cached) Purge() {
	c.lru.Purge()
}

func (c *Cached) Len() int {
	return c.lru.Len()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
