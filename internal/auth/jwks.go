package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	jwksCacheTTL    = 24 * time.Hour
	jwksConnectTime = 5 * time.Second
	jwksTotalTime   = 10 * time.Second
)

// JWKSCache fetches and caches an OIDC provider's signing keys (spec §4.4).
// It is a small (kid, decoded_key) list plus a fetch timestamp, refreshed on
// TTL expiry or on a kid miss; a refresh failure falls back to the last
// successful snapshot to survive provider outages.
type JWKSCache struct {
	issuer string
	client *http.Client

	mu         sync.RWMutex
	set        jwk.Set
	fetchedAt  time.Time
	refreshing bool
}

// NewJWKSCache returns a cache that fetches from {issuer}/.well-known/jwks.
func NewJWKSCache(issuer string) *JWKSCache {
	return &JWKSCache{
		issuer: issuer,
		client: &http.Client{Timeout: jwksTotalTime},
	}
}

// Key resolves kid to a public key, forcing a single refresh on a cache miss
// or stale TTL. If the refresh itself fails, it falls back to whatever
// snapshot is already cached (possibly none).
func (c *JWKSCache) Key(ctx context.Context, kid string) (interface{}, error) {
	c.mu.RLock()
	set := c.set
	stale := time.Since(c.fetchedAt) >= jwksCacheTTL
	c.mu.RUnlock()

	needsRefresh := set == nil || stale
	if !needsRefresh {
		if key, ok := lookupKeyID(set, kid); ok {
			return keyMaterial(key)
		}

		needsRefresh = true
	}

	if needsRefresh {
		if refreshed, err := c.refresh(ctx); err == nil {
			set = refreshed
		}
	}

	if set == nil {
		return nil, fmt.Errorf("jwks cache empty for issuer %s", c.issuer)
	}

	key, ok := lookupKeyID(set, kid)
	if !ok {
		return nil, fmt.Errorf("kid %q not found in jwks for issuer %s", kid, c.issuer)
	}

	return keyMaterial(key)
}

// refresh fetches a new key set, installing it only on success; on failure it
// returns the error but leaves any existing cached set untouched so callers
// can keep using the stale snapshot (spec §4.4 outage tolerance).
func (c *JWKSCache) refresh(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	if c.refreshing {
		set := c.set
		c.mu.Unlock()

		return set, nil
	}

	c.refreshing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, jwksTotalTime)
	defer cancel()

	set, err := jwk.Fetch(fetchCtx, c.issuer+"/.well-known/jwks", jwk.WithHTTPClient(c.client))
	if err != nil {
		c.mu.RLock()
		existing := c.set
		c.mu.RUnlock()

		return existing, fmt.Errorf("fetch jwks from %s: %w", c.issuer, err)
	}

	c.mu.Lock()
	c.set = set
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return set, nil
}

func lookupKeyID(set jwk.Set, kid string) (jwk.Key, bool) {
	return set.LookupKeyID(kid)
}

func keyMaterial(key jwk.Key) (interface{}, error) {
	var raw interface{}
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export jwk key material: %w", err)
	}

	return raw, nil
}
