package auth

import (
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/tsio/tsio/internal/store"
)

const oidcBearerPrefix = "Bearer "

// OidcVerifierConfig is the fixed set of claims a CI-minted OIDC token must
// carry for this instance to trust it (spec §4.4).
type OidcVerifierConfig struct {
	Issuer   string
	Audience string
}

// OIDCStrategy returns a Strategy for CI-minted OIDC JWTs (spec §4.2 class 3).
// It decodes the token header to find kid, resolves the signing key through
// jwks, verifies signature/issuer/audience, and resolves a role from the
// token's repository claim via engine. Only the thirteen safe claims named by
// spec §3 ReportOidcClaim are retained on the resulting Caller.
func OIDCStrategy(cfg OidcVerifierConfig, jwks *JWKSCache, engine *PolicyEngine) Strategy {
	return func(r *http.Request) (*Caller, error) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, oidcBearerPrefix) {
			return nil, ErrNoCredential
		}

		raw := strings.TrimPrefix(header, oidcBearerPrefix)
		if raw == "" {
			return nil, ErrNoCredential
		}

		msg, err := jws.Parse([]byte(raw))
		if err != nil {
			return nil, ErrAuthenticationFailed
		}

		sig := msg.Signatures()
		if len(sig) == 0 {
			return nil, ErrAuthenticationFailed
		}

		kid, ok := sig[0].ProtectedHeaders().KeyID()
		if !ok || kid == "" {
			return nil, ErrAuthenticationFailed
		}

		key, err := jwks.Key(r.Context(), kid)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}

		opts := []jwt.ParseOption{
			jwt.WithKey(jwa.RS256(), key),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithValidate(true),
		}

		// Audience is only checked when configured (spec §4.4): an instance
		// that hasn't set one accepts a token minted for any audience, which
		// is why server.go warns about it at startup.
		if cfg.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Audience))
		}

		token, err := jwt.Parse([]byte(raw), opts...)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}

		claims := extractSafeClaims(token)

		repository := claims["repository"]
		if repository == "" {
			return nil, ErrAuthenticationFailed
		}

		role, ok := engine.Resolve(r.Context(), repository)
		if !ok {
			return nil, ErrAuthenticationFailed
		}

		return &Caller{
			ID:         "oidc:" + repository,
			Role:       role,
			Kind:       CallerKindOIDC,
			OidcClaims: claims,
		}, nil
	}
}

// extractSafeClaims copies only the thirteen claims spec §3's ReportOidcClaim
// records; anything else in the token is discarded before it ever reaches a
// Caller or gets persisted.
func extractSafeClaims(token jwt.Token) map[string]string {
	out := make(map[string]string, len(store.SafeOidcClaims))

	for _, name := range store.SafeOidcClaims {
		var value string
		if err := token.Get(name, &value); err == nil && value != "" {
			out[name] = value
		}
	}

	return out
}
