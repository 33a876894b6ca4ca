package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/tsio/tsio/internal/store"
)

const (
	sessionCookieName = "tsio_session"
	// sessionTTL is the access JWT lifetime (spec §4.6 step 3 default: 15 min).
	sessionTTL = 15 * time.Minute
	sessionClaimSub   = "sub"
	sessionClaimRole  = "role"
	sessionClaimLogin = "login"

	// MinSessionSecretLength is the floor enforced at production startup
	// (spec §6): a session secret shorter than this refuses to boot.
	MinSessionSecretLength = 32

	// DevDefaultSessionSecret is the checked-in development HS256 key.
	DevDefaultSessionSecret = "tsio-dev-session-secret-change-me-please"
)

// SessionManager mints and verifies the browser-session JWT issued after a
// successful OAuth exchange (spec §4.6). It is HS256 over a single process
// secret, not an asymmetric scheme, since the issuer and verifier are the
// same process.
type SessionManager struct {
	secret []byte
}

// NewSessionManager returns a SessionManager keyed by secret.
func NewSessionManager(secret string) *SessionManager {
	return &SessionManager{secret: []byte(secret)}
}

// Issue mints a session token for user, valid for sessionTTL.
func (m *SessionManager) Issue(user *store.User) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		Subject(user.ID).
		IssuedAt(now).
		Expiration(now.Add(sessionTTL)).
		Claim(sessionClaimRole, string(user.Role)).
		Claim(sessionClaimLogin, user.Username).
		Build()
	if err != nil {
		return "", fmt.Errorf("build session token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return string(signed), nil
}

// CookieName exposes the cookie this manager mints and verifies tokens from.
func (m *SessionManager) CookieName() string {
	return sessionCookieName
}

// SessionStrategy returns a Strategy for browser session cookies (spec §4.2
// class 4).
func SessionStrategy(manager *SessionManager, users store.UserStore) Strategy {
	return func(r *http.Request) (*Caller, error) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			return nil, ErrNoCredential
		}

		token, err := jwt.Parse([]byte(cookie.Value),
			jwt.WithKey(jwa.HS256(), manager.secret),
			jwt.WithValidate(true),
		)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}

		userID, ok := token.Subject()
		if !ok || userID == "" {
			return nil, ErrAuthenticationFailed
		}

		user, err := users.Get(r.Context(), userID)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}

		return &Caller{
			ID:        user.ID,
			Role:      user.Role,
			Kind:      CallerKindSession,
			OAuthUser: user,
		}, nil
	}
}
