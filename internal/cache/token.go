// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TokenCache holds bearer tokens obtained by exchanging an API key. Entries
// are keyed by a hash of server URL and key, so the key never sits in memory
// as a map key, and expire Buffer before the token's real lifetime.
//
// Concurrent misses for the same key may each authenticate; the last write wins.
type TokenCache struct {
	store  *gocache.Cache
	ttl    time.Duration
	buffer time.Duration
}

// NewTokenCache returns a cache for tokens valid for ttl. buffer is subtracted
// from ttl to avoid handing out a token that expires mid-request.
func NewTokenCache(ttl, buffer time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if buffer < 0 || buffer >= ttl {
		buffer = 0
	}
	return &TokenCache{
		store:  gocache.New(ttl-buffer, 10*time.Minute),
		ttl:    ttl,
		buffer: buffer,
	}
}

// TokenKey derives the cache key for a server URL and API key.
func TokenKey(serverURL, apiKey string) string {
	sum := sha256.Sum256([]byte(serverURL + "\x00" + apiKey))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached token that is still inside its buffered lifetime.
func (c *TokenCache) Get(key string) (string, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok && token != ""
}

// Set stores token with the default buffered lifetime.
func (c *TokenCache) Set(key, token string) {
	c.store.Set(key, token, gocache.DefaultExpiration)
}

// SetWithTTL stores token for ttl minus the buffer, for servers that report
// their own token lifetime.
func (c *TokenCache) SetWithTTL(key, token string, ttl time.Duration) {
	effective := ttl - c.buffer
	if effective <= 0 {
		return
	}
	c.store.Set(key, token, effective)
}

// Invalidate drops key, e.g. after the server rejected the token.
func (c *TokenCache) Invalidate(key string) {
	c.store.Delete(key)
}

// Len returns the number of cached tokens.
func (c *TokenCache) Len() int {
	return c.store.ItemCount()
}
