package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type (
	// User is a GitHub OAuth identity (spec §3, §4.6).
	User struct {
		ID          string
		GithubID    string
		Username    string
		DisplayName string
		AvatarURL   string
		Role        Role
		LastLoginAt *time.Time
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// RefreshToken stores the SHA-256 hash of an opaque refresh token, never the
	// raw value. Lookup is by hash; rotation revokes the prior row and inserts a
	// new one atomically (spec §3, §4.6).
	RefreshToken struct {
		ID         string
		UserID     string
		TokenHash  string
		ExpiresAt  time.Time
		RevokedAt  *time.Time
		CreatedAt  time.Time
	}

	// UserStore persists Users and their RefreshTokens.
	UserStore interface {
		// Upsert inserts or updates a User by github_id, refreshing profile fields
		// and last_login_at (spec §4.6 step 2).
		Upsert(ctx context.Context, githubID, username, displayName, avatarURL string, role Role) (*User, error)
		Get(ctx context.Context, id string) (*User, error)
		GetByGithubID(ctx context.Context, githubID string) (*User, error)

		// IssueRefreshToken generates a 32-byte opaque token, stores its hash, and
		// returns the raw value for the caller to set as a cookie.
		IssueRefreshToken(ctx context.Context, userID string, ttl time.Duration) (rawToken string, token *RefreshToken, err error)
		// RotateRefreshToken looks up rawToken by hash; if valid, atomically
		// revokes it and issues a replacement (spec §4.6 step 5, §8 property 9).
		RotateRefreshToken(ctx context.Context, rawToken string, ttl time.Duration) (newRaw string, newToken *RefreshToken, user *User, err error)
		// RevokeRefreshToken revokes the token matching rawToken's hash.
		RevokeRefreshToken(ctx context.Context, rawToken string) error
	}
)

const refreshTokenRandomBytes = 32

// ErrRefreshTokenInvalid covers "not found", "revoked", and "expired" — the
// caller always gets a generic 401, per spec §4.2 error policy.
var ErrRefreshTokenInvalid = errors.New("refresh token invalid or expired")

// HashRefreshToken returns the hex-encoded SHA-256 digest of a raw refresh token.
func HashRefreshToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))

	return hex.EncodeToString(sum[:])
}

func generateRawRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// postgresUserStore implements UserStore against PostgreSQL.
type postgresUserStore struct {
	conn *Connection
}

// NewUserStore returns a PostgreSQL-backed UserStore.
func NewUserStore(conn *Connection) UserStore {
	return &postgresUserStore{conn: conn}
}

func (s *postgresUserStore) Upsert(
	ctx context.Context,
	githubID, username, displayName, avatarURL string,
	role Role,
) (*User, error) {
	user := &User{
		ID:          NewID(),
		GithubID:    githubID,
		Username:    username,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		Role:        role,
	}

	query := `
		INSERT INTO users (id, github_id, username, display_name, avatar_url, role, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (github_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			last_login_at = now(),
			updated_at = now()
		RETURNING id, role, last_login_at, created_at, updated_at
	`

	err := s.conn.QueryRowContext(ctx, query,
		user.ID, user.GithubID, user.Username, user.DisplayName, user.AvatarURL, string(user.Role),
	).Scan(&user.ID, &user.Role, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return user, nil
}

func (s *postgresUserStore) Get(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, github_id, username, display_name, avatar_url, role, last_login_at, created_at, updated_at
		FROM users WHERE id = $1
	`

	return scanUser(s.conn.QueryRowContext(ctx, query, id))
}

func (s *postgresUserStore) GetByGithubID(ctx context.Context, githubID string) (*User, error) {
	query := `
		SELECT id, github_id, username, display_name, avatar_url, role, last_login_at, created_at, updated_at
		FROM users WHERE github_id = $1
	`

	return scanUser(s.conn.QueryRowContext(ctx, query, githubID))
}

func (s *postgresUserStore) IssueRefreshToken(
	ctx context.Context,
	userID string,
	ttl time.Duration,
) (string, *RefreshToken, error) {
	rawToken, err := generateRawRefreshToken()
	if err != nil {
		return "", nil, err
	}

	token := &RefreshToken{
		ID:        NewID(),
		UserID:    userID,
		TokenHash: HashRefreshToken(rawToken),
		ExpiresAt: time.Now().Add(ttl),
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err = s.conn.QueryRowContext(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt).
		Scan(&token.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("insert refresh token: %w", err)
	}

	return rawToken, token, nil
}

func (s *postgresUserStore) RotateRefreshToken(
	ctx context.Context,
	rawToken string,
	ttl time.Duration,
) (string, *RefreshToken, *User, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, nil, fmt.Errorf("begin rotation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hash := HashRefreshToken(rawToken)

	var (
		tokenID, userID string
		expiresAt       time.Time
		revokedAt       sql.NullTime
	)

	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = $1
	`, hash).Scan(&tokenID, &userID, &expiresAt, &revokedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil, nil, ErrRefreshTokenInvalid
	case err != nil:
		return "", nil, nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if revokedAt.Valid || expiresAt.Before(time.Now()) {
		return "", nil, nil, ErrRefreshTokenInvalid
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1`, tokenID,
	); err != nil {
		return "", nil, nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	newRaw, err := generateRawRefreshToken()
	if err != nil {
		return "", nil, nil, err
	}

	newToken := &RefreshToken{
		ID:        NewID(),
		UserID:    userID,
		TokenHash: HashRefreshToken(newRaw),
		ExpiresAt: time.Now().Add(ttl),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, newToken.ID, newToken.UserID, newToken.TokenHash, newToken.ExpiresAt).Scan(&newToken.CreatedAt)
	if err != nil {
		return "", nil, nil, fmt.Errorf("insert rotated refresh token: %w", err)
	}

	user, err := scanUser(tx.QueryRowContext(ctx, `
		SELECT id, github_id, username, display_name, avatar_url, role, last_login_at, created_at, updated_at
		FROM users WHERE id = $1
	`, userID))
	if err != nil {
		return "", nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, nil, fmt.Errorf("commit rotation tx: %w", err)
	}

	return newRaw, newToken, user, nil
}

func (s *postgresUserStore) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	hash := HashRefreshToken(rawToken)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, hash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	// Logout on an already-revoked or unknown token is a no-op, not an error.
	_, _ = res.RowsAffected()

	return nil
}

func scanUser(row interface{ Scan(dest ...interface{}) error }) (*User, error) {
	var (
		user        User
		displayName sql.NullString
		avatarURL   sql.NullString
		lastLoginAt sql.NullTime
	)

	err := row.Scan(
		&user.ID, &user.GithubID, &user.Username, &displayName, &avatarURL,
		&user.Role, &lastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.DisplayName = displayName.String
	user.AvatarURL = avatarURL.String

	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}

	return &user, nil
}
