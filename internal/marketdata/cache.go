package marketdata

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultChainCacheSize = 256
	defaultChainCacheTTL  = 5 * time.Minute
)

// ChainCache holds option chains across scans. It is bounded to size entries
// with least-recently-used eviction, and each entry expires after ttl. A nil
// *ChainCache is a valid always-miss cache.
type ChainCache struct {
	lru *expirable.LRU[string, *OptionChain]
}

// NewChainCache creates a cache; non-positive arguments select the defaults.
func NewChainCache(size int, ttl time.Duration) *ChainCache {
	if size <= 0 {
		size = defaultChainCacheSize
	}
	if ttl <= 0 {
		ttl = defaultChainCacheTTL
	}
	return &ChainCache{lru: expirable.NewLRU[string, *OptionChain](size, nil, ttl)}
}

// Get returns the cached chain for symbol.
func (c *ChainCache) Get(symbol string) (*OptionChain, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(strings.ToUpper(symbol))
}

// Add stores chain under symbol.
func (c *ChainCache) Add(symbol string, chain *OptionChain) {
	if c == nil || chain == nil {
		return
	}
	c.lru.Add(strings.ToUpper(symbol), chain)
}

// Len reports the number of live entries.
func (c *ChainCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ChainCache) Purge() {
	if c != nil {
		c.lru.Purge()
	}
}
