package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/tsio/tsio/internal/store"
)

func TestMatches_ExactPattern(t *testing.T) {
	if !Matches("acme/widgets", "acme/widgets") {
		t.Fatal("expected exact pattern to match")
	}
	if Matches("acme/widgets", "acme/other") {
		t.Fatal("expected exact pattern not to match a different repo")
	}
}

func TestMatches_WildcardPattern(t *testing.T) {
	if !Matches("acme/*", "acme/widgets") {
		t.Fatal("expected wildcard pattern to match any repo under the owner")
	}
	if Matches("acme/*", "other/widgets") {
		t.Fatal("expected wildcard pattern not to match a different owner")
	}
}

func TestMatches_WildcardDoesNotMatchOwnerPrefixWithoutSlash(t *testing.T) {
	if Matches("acme/*", "acmecorp/widgets") {
		t.Fatal("acme/* must not match acmecorp/widgets")
	}
}

func TestMatches_RejectsBareWildcard(t *testing.T) {
	if Matches("*", "acme/widgets") {
		t.Fatal("a bare '*' pattern must never match")
	}
}

func TestMatches_RejectsPatternWithoutSlash(t *testing.T) {
	if Matches("acme", "acme") {
		t.Fatal("a pattern without '/' must never match")
	}
}

// fakePolicyStore is a minimal in-memory store.PolicyStore for PolicyEngine tests.
type fakePolicyStore struct {
	enabled []*store.OidcPolicy
	calls   int
	err     error
}

func (f *fakePolicyStore) Create(ctx context.Context, pattern string, role store.Role, description string) (*store.OidcPolicy, error) {
	return nil, errors.New("not implemented")
}
func (f *fakePolicyStore) Get(ctx context.Context, id string) (*store.OidcPolicy, error) {
	return nil, errors.New("not implemented")
}
func (f *fakePolicyStore) ListEnabled(ctx context.Context) ([]*store.OidcPolicy, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.enabled, nil
}
func (f *fakePolicyStore) List(ctx context.Context) ([]*store.OidcPolicy, error) {
	return f.enabled, nil
}
func (f *fakePolicyStore) Update(ctx context.Context, id string, pattern string, role store.Role, enabled bool, description string) (*store.OidcPolicy, error) {
	return nil, errors.New("not implemented")
}
func (f *fakePolicyStore) Delete(ctx context.Context, id string) error {
	return nil
}

func TestPolicyEngine_ResolveMatchesCachedPolicy(t *testing.T) {
	ps := &fakePolicyStore{enabled: []*store.OidcPolicy{
		{ID: "p1", Pattern: "acme/*", Role: store.RoleContributor, Enabled: true},
	}}
	engine := NewPolicyEngine(ps, nil)

	role, ok := engine.Resolve(context.Background(), "acme/widgets")
	if !ok || role != store.RoleContributor {
		t.Fatalf("role = %q, ok = %v, want contributor/true", role, ok)
	}
}

func TestPolicyEngine_ResolveFallsBackToAllowList(t *testing.T) {
	ps := &fakePolicyStore{}
	engine := NewPolicyEngine(ps, []string{"acme/*"})

	role, ok := engine.Resolve(context.Background(), "acme/widgets")
	if !ok || role != store.RoleContributor {
		t.Fatalf("role = %q, ok = %v, want contributor/true", role, ok)
	}
}

func TestPolicyEngine_ResolveNoMatch(t *testing.T) {
	ps := &fakePolicyStore{}
	engine := NewPolicyEngine(ps, nil)

	_, ok := engine.Resolve(context.Background(), "acme/widgets")
	if ok {
		t.Fatal("expected no match with no policies and no allow-list entries")
	}
}

func TestPolicyEngine_AllowListRejectsInvalidPatternsAtConstruction(t *testing.T) {
	ps := &fakePolicyStore{}
	engine := NewPolicyEngine(ps, []string{"*", "no-slash"})

	_, ok := engine.Resolve(context.Background(), "anything")
	if ok {
		t.Fatal("invalid allow-list patterns must be dropped at construction, never matching")
	}
}

func TestPolicyEngine_ResolveCachesWithinTTL(t *testing.T) {
	ps := &fakePolicyStore{enabled: []*store.OidcPolicy{
		{ID: "p1", Pattern: "acme/*", Role: store.RoleContributor, Enabled: true},
	}}
	engine := NewPolicyEngine(ps, nil)

	engine.Resolve(context.Background(), "acme/widgets")
	engine.Resolve(context.Background(), "acme/widgets")

	if ps.calls != 1 {
		t.Fatalf("ListEnabled called %d times, want 1 (second call should hit cache)", ps.calls)
	}
}
