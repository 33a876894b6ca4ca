package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tsio/tsio/internal/store"
)

const policyCacheTTL = 60 * time.Second

// PolicyEngine resolves a repository string to a role by scanning cached
// OIDC policies, falling back to a startup-configured env allow-list
// (spec §4.3). Adapted from the teacher's internal/aliasing.Resolver shape
// (a Config-driven compiled-pattern list behind NewResolver/Resolve), trimmed
// to the two glob shapes this spec needs instead of aliasing's general regex
// capture groups.
type PolicyEngine struct {
	store       store.PolicyStore
	allowList   []allowEntry
	mu          sync.RWMutex
	cached      []*store.OidcPolicy
	refreshedAt time.Time
	refreshing  bool
}

type allowEntry struct {
	pattern string
}

// NewPolicyEngine returns a PolicyEngine backed by store and seeded with an
// env allow-list (same pattern grammar, always role contributor, spec §4.3).
func NewPolicyEngine(policyStore store.PolicyStore, allowListPatterns []string) *PolicyEngine {
	entries := make([]allowEntry, 0, len(allowListPatterns))
	for _, p := range allowListPatterns {
		if store.ValidatePattern(p) == nil {
			entries = append(entries, allowEntry{pattern: p})
		}
	}

	return &PolicyEngine{store: policyStore, allowList: entries}
}

// Resolve returns the role granted to repository, or false if no enabled
// policy and no allow-list entry matches.
func (e *PolicyEngine) Resolve(ctx context.Context, repository string) (store.Role, bool) {
	policies, err := e.policies(ctx)
	if err == nil {
		for _, p := range policies {
			if Matches(p.Pattern, repository) {
				return p.Role, true
			}
		}
	}

	for _, entry := range e.allowList {
		if Matches(entry.pattern, repository) {
			return store.RoleContributor, true
		}
	}

	return "", false
}

// policies returns the cached policy snapshot, refreshing it if the 60s TTL
// has elapsed. A refresh failure falls back to the stale snapshot rather than
// failing the caller (same "stale survives an outage" shape as the JWKS
// cache, §4.4).
func (e *PolicyEngine) policies(ctx context.Context) ([]*store.OidcPolicy, error) {
	e.mu.RLock()
	fresh := time.Since(e.refreshedAt) < policyCacheTTL
	cached := e.cached
	alreadyRefreshing := e.refreshing
	e.mu.RUnlock()

	if fresh || alreadyRefreshing {
		return cached, nil
	}

	e.mu.Lock()
	if e.refreshing || time.Since(e.refreshedAt) < policyCacheTTL {
		snapshot := e.cached
		e.mu.Unlock()

		return snapshot, nil
	}

	e.refreshing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.refreshing = false
		e.mu.Unlock()
	}()

	policies, err := e.store.ListEnabled(ctx)
	if err != nil {
		return cached, err
	}

	e.mu.Lock()
	e.cached = policies
	e.refreshedAt = time.Now()
	e.mu.Unlock()

	return policies, nil
}

// Matches implements the pattern grammar of spec §4.3 and §8 property 5:
//   - "owner/repo" exact-matches "owner/repo".
//   - "owner/*" matches any "owner/*" repo (prefix match up to and including "/").
//   - A pattern without "/" never matches (rejects bare "*").
func Matches(pattern, repository string) bool {
	owner, rest, ok := strings.Cut(pattern, "/")
	if !ok || owner == "" {
		return false
	}

	if rest == "*" {
		return strings.HasPrefix(repository, owner+"/")
	}

	return pattern == repository
}
