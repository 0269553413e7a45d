// Copyright © 2018 One Concern

package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheSize bounds the number of cached tokens
const DefaultCacheSize = 1024

type cachedTokens struct {
	Tokens
	cache *expirable.LRU[string, Item]
	now   func() time.Time

	// held for writing while a revocation or a clean-up edits the document:
	// a lookup reading the old document must not fill the cache meanwhile
	mu sync.RWMutex
}

// NewCached keeps valid tokens in memory for ttl, in front of another implementation.
//
// Only lookups by token are served from the cache.
func NewCached(tokens Tokens, size int, ttl time.Duration) Tokens {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &cachedTokens{
		Tokens: tokens,
		cache:  expirable.NewLRU[string, Item](size, nil, ttl),
		now:    time.Now,
	}
}

func (c *cachedTokens) Get(ctx context.Context, token string) (Item, bool, error) {
	if item, ok := c.cache.Get(token); ok {
		if !item.Expired(c.now()) {
			return item, true, nil
		}
		c.cache.Remove(token)
		return Item{}, false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok, err := c.Tokens.Get(ctx, token)
	if err != nil || !ok {
		return item, ok, err
	}
	c.cache.Add(token, item)
	return item, true, nil
}

func (c *cachedTokens) Generate(ctx context.Context, user string, ttl time.Duration) (Item, error) {
	item, err := c.Tokens.Generate(ctx, user, ttl)
	if err != nil {
		return item, err
	}
	c.cache.Add(item.Token, item)
	return item, nil
}

func (c *cachedTokens) Revoke(ctx context.Context, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(token)
	return c.Tokens.Revoke(ctx, token)
}

func (c *cachedTokens) Clean(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	return c.Tokens.Clean(ctx)
}
