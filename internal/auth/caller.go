// Package auth implements the Credential Verifier, Policy Engine, JWKS cache,
// and OAuth broker (spec §4.2-§4.6): a composite authentication front end
// evaluating four credential classes as an ordered chain of strategies.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/tsio/tsio/internal/store"
)

type (
	// CallerKind identifies which credential class produced a Caller. It
	// influences what additional endpoints the caller may touch, independent
	// of role (spec §4.5: OIDC callers are denied admin endpoints regardless
	// of nominal role).
	CallerKind string

	// Caller is what every credential class verifier produces on success
	// (spec §4.2). OidcClaims is populated only for kind oidc; OAuthUser only
	// for kind session.
	Caller struct {
		ID         string
		Role       store.Role
		Kind       CallerKind
		OidcClaims map[string]string
		OAuthUser  *store.User
	}

	// Strategy is one credential-class verifier in the chain. It inspects the
	// request and returns a Caller on success, or (nil, ErrNoCredential) if
	// this strategy's credential is simply absent (so the chain tries the
	// next one), or (nil, some other error) if the credential was present but
	// invalid (so the chain stops and reports a generic 401).
	//
	// No inheritance, no polymorphic interface beyond this: spec §9 "Authentication
	// is a small chain of strategies evaluated in order; each strategy is a
	// value that produces Option<Caller> from the request."
	Strategy func(r *http.Request) (*Caller, error)
)

const (
	CallerKindAdmin   CallerKind = "admin"
	CallerKindAPIKey  CallerKind = "apikey"
	CallerKindOIDC    CallerKind = "oidc"
	CallerKindSession CallerKind = "session"
)

// ErrNoCredential signals "this strategy's credential was not present on the
// request" — not a failure, just a pass to the next strategy in the chain.
var ErrNoCredential = errors.New("credential not present")

// ErrMissingCredentials is returned when no strategy in the chain found a
// credential at all (spec §4.2: "Missing credentials → 401").
var ErrMissingCredentials = errors.New("missing credentials")

// ErrAuthenticationFailed is the single generic error surfaced to clients
// when a present credential fails verification (spec §4.2 error policy:
// "all failure messages returned to the client are generic").
var ErrAuthenticationFailed = errors.New("authentication failed")

// Chain evaluates strategies in order; first success wins.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a Chain from a fixed, ordered list of strategies. Construct
// it once at boot with, in spec §4.2 order: admin key, API key, OIDC JWT,
// session JWT.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Authenticate runs the chain against r. It returns ErrMissingCredentials if
// every strategy reported ErrNoCredential, or ErrAuthenticationFailed if some
// strategy found a credential but rejected it.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*Caller, error) {
	sawCredential := false

	for _, strategy := range c.strategies {
		caller, err := strategy(r.WithContext(ctx))

		switch {
		case err == nil:
			return caller, nil
		case errors.Is(err, ErrNoCredential):
			continue
		default:
			sawCredential = true
		}
	}

	if sawCredential {
		return nil, ErrAuthenticationFailed
	}

	return nil, ErrMissingCredentials
}

// AtLeast reports whether the caller's role meets the minimum, with the
// OIDC-admin-denial rule from spec §4.5 applied first.
func (c *Caller) AtLeast(min store.Role) bool {
	if min == store.RoleAdmin && c.Kind == CallerKindOIDC {
		return false
	}

	return c.Role.AtLeast(min)
}
