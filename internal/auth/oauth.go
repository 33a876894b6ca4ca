package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/tsio/tsio/internal/store"
)

const (
	oauthStateCookie  = "tsio_oauth_state"
	oauthRefreshCookie = "tsio_refresh"
	oauthStateTTL     = 10 * time.Minute
	oauthRefreshTTL   = 7 * 24 * time.Hour
	oauthHTTPTimeout  = 10 * time.Second
	githubAPIBase     = "https://api.github.com"
)

// OAuthBrokerConfig configures the GitHub OAuth code-exchange flow (spec
// §4.6). AllowedOrgs is optional; when non-empty, a user must belong to at
// least one listed org to be admitted.
type OAuthBrokerConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AllowedOrgs  []string
	Production   bool
}

// OAuthBroker implements the GitHub OAuth code-exchange, user upsert, and
// session/refresh-cookie issuance described in spec §4.6.
type OAuthBroker struct {
	cfg      OAuthBrokerConfig
	oauth    *oauth2.Config
	users    store.UserStore
	sessions *SessionManager
	client   *http.Client
}

// NewOAuthBroker returns a broker wired to GitHub's OAuth endpoint.
func NewOAuthBroker(cfg OAuthBrokerConfig, users store.UserStore, sessions *SessionManager) *OAuthBroker {
	return &OAuthBroker{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "read:org"},
			Endpoint:     github.Endpoint,
		},
		users:    users,
		sessions: sessions,
		client:   &http.Client{Timeout: oauthHTTPTimeout},
	}
}

// StartLogin handles GET /auth/github: mints a state cookie and redirects to
// GitHub's authorize URL.
func (b *OAuthBroker) StartLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomHex(32)
	if err != nil {
		http.Error(w, "failed to start oauth flow", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, b.cookie(oauthStateCookie, state, oauthStateTTL))
	http.Redirect(w, r, b.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback handles GET /auth/github/callback: validates the CSRF
// state, exchanges the code, upserts the user, and issues session + refresh
// cookies (spec §4.6 steps 2-4).
func (b *OAuthBroker) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), oauthHTTPTimeout)
	defer cancel()

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid oauth state", http.StatusUnauthorized)
		return
	}

	b.clearCookie(w, oauthStateCookie)

	code := r.URL.Query().Get("code")
	token, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		http.Error(w, "oauth exchange failed", http.StatusUnauthorized)
		return
	}

	profile, err := b.fetchProfile(ctx, token)
	if err != nil {
		http.Error(w, "failed to fetch github profile", http.StatusUnauthorized)
		return
	}

	if len(b.cfg.AllowedOrgs) > 0 {
		orgs, err := b.fetchOrgs(ctx, token)
		if err != nil || !anyOverlap(orgs, b.cfg.AllowedOrgs) {
			http.Error(w, "not a member of an allowed organization", http.StatusForbidden)
			return
		}
	}

	user, err := b.users.Upsert(ctx, profile.ID, profile.Login, profile.Name, profile.AvatarURL, store.RoleViewer)
	if err != nil {
		http.Error(w, "failed to persist user", http.StatusInternalServerError)
		return
	}

	if err := b.issueCookies(ctx, w, user); err != nil {
		http.Error(w, "failed to issue session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// Refresh handles POST /auth/refresh: rotates the refresh token and reissues
// both cookies (spec §4.6 step 5).
func (b *OAuthBroker) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(oauthRefreshCookie)
	if err != nil || cookie.Value == "" {
		http.Error(w, "missing refresh token", http.StatusUnauthorized)
		return
	}

	newRaw, _, user, err := b.users.RotateRefreshToken(r.Context(), cookie.Value, oauthRefreshTTL)
	if err != nil {
		http.Error(w, "refresh token invalid", http.StatusUnauthorized)
		return
	}

	session, err := b.sessions.Issue(user)
	if err != nil {
		http.Error(w, "failed to mint session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, b.cookie(sessionCookieName, session, sessionTTL))
	http.SetCookie(w, b.cookie(oauthRefreshCookie, newRaw, oauthRefreshTTL))
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /auth/logout: revokes the refresh token and clears
// both cookies (spec §4.6 step 6).
func (b *OAuthBroker) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(oauthRefreshCookie); err == nil && cookie.Value != "" {
		_ = b.users.RevokeRefreshToken(r.Context(), cookie.Value)
	}

	b.clearCookie(w, sessionCookieName)
	b.clearCookie(w, oauthRefreshCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (b *OAuthBroker) issueCookies(ctx context.Context, w http.ResponseWriter, user *store.User) error {
	session, err := b.sessions.Issue(user)
	if err != nil {
		return err
	}

	rawRefresh, _, err := b.users.IssueRefreshToken(ctx, user.ID, oauthRefreshTTL)
	if err != nil {
		return err
	}

	http.SetCookie(w, b.cookie(sessionCookieName, session, sessionTTL))
	http.SetCookie(w, b.cookie(oauthRefreshCookie, rawRefresh, oauthRefreshTTL))

	return nil
}

func (b *OAuthBroker) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   b.cfg.Production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	}
}

func (b *OAuthBroker) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   b.cfg.Production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

type githubProfile struct {
	ID        string `json:"-"`
	NumericID int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func (b *OAuthBroker) fetchProfile(ctx context.Context, token *oauth2.Token) (*githubProfile, error) {
	var profile githubProfile
	if err := b.githubGet(ctx, token, "/user", &profile); err != nil {
		return nil, err
	}

	profile.ID = fmt.Sprintf("%d", profile.NumericID)

	return &profile, nil
}

type githubOrg struct {
	Login string `json:"login"`
}

func (b *OAuthBroker) fetchOrgs(ctx context.Context, token *oauth2.Token) ([]string, error) {
	var orgs []githubOrg
	if err := b.githubGet(ctx, token, "/user/orgs", &orgs); err != nil {
		return nil, err
	}

	names := make([]string, len(orgs))
	for i, o := range orgs {
		names[i] = o.Login
	}

	return names, nil
}

func (b *OAuthBroker) githubGet(ctx context.Context, token *oauth2.Token, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubAPIBase+path, nil)
	if err != nil {
		return err
	}

	token.SetAuthHeader(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s: status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func anyOverlap(have, allowed []string) bool {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allowSet[a] = struct{}{}
	}

	for _, h := range have {
		if _, ok := allowSet[h]; ok {
			return true
		}
	}

	return false
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
