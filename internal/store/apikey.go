package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type (
	// Role is the authorization input for every credential kind. Roles form a
	// strict total order viewer < contributor < admin (spec §4.5).
	Role string

	// ApiKey is an opaque database-backed credential of the form tsio_<random>.
	// Only KeyHash is ever persisted: the raw value exists transiently during
	// creation and during comparison on each request (spec §3).
	ApiKey struct {
		ID         string
		KeyHash    string
		KeyPrefix  string
		Name       string
		Role       Role
		ExpiresAt  *time.Time
		LastUsedAt *time.Time
		CreatedAt  time.Time
		DeletedAt  *time.Time
	}

	// ApiKeyStore persists and verifies ApiKey rows.
	ApiKeyStore interface {
		// Create mints a new raw key, hashes it, and inserts the row. The raw key
		// is returned exactly once; callers must surface it to the user now.
		Create(ctx context.Context, name string, role Role, expiresAt *time.Time) (rawKey string, key *ApiKey, err error)
		// VerifyAndTouch looks up an active, non-expired key by SHA-256(rawKey) and
		// best-effort updates last_used_at (failure non-fatal, spec §4.2).
		VerifyAndTouch(ctx context.Context, rawKey string) (*ApiKey, error)
		Get(ctx context.Context, id string) (*ApiKey, error)
		List(ctx context.Context) ([]*ApiKey, error)
		// Revoke soft-deletes the key.
		Revoke(ctx context.Context, id string) error
		// Restore clears a prior soft delete.
		Restore(ctx context.Context, id string) error
	}
)

const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleAdmin       Role = "admin"

	apiKeyPrefix       = "tsio_"
	apiKeyRandomBytes  = 32
	apiKeyPublicPrefix = 8
)

// roleRank gives each Role a position in the strict total order
// viewer < contributor < admin (spec §4.5).
var roleRank = map[Role]int{
	RoleViewer:      0,
	RoleContributor: 1,
	RoleAdmin:       2,
}

// IsValid reports whether r is one of the three known roles.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]

	return ok
}

// AtLeast reports whether r meets or exceeds the minimum required role.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// HashAPIKeyValue returns the hex-encoded SHA-256 digest of a raw API key.
// Unlike the teacher's bcrypt scheme, the spec mandates a plain, fast digest
// because lookup must be an O(1) keyed query, not a per-row bcrypt compare
// (spec §4.2: "Server computes SHA-256, looks up by hash").
func HashAPIKeyValue(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))

	return hex.EncodeToString(sum[:])
}

// generateRawAPIKey returns a new tsio_<random> opaque token.
func generateRawAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}

	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// postgresAPIKeyStore implements ApiKeyStore against PostgreSQL.
type postgresAPIKeyStore struct {
	conn *Connection
}

// NewAPIKeyStore returns a PostgreSQL-backed ApiKeyStore.
func NewAPIKeyStore(conn *Connection) ApiKeyStore {
	return &postgresAPIKeyStore{conn: conn}
}

func (s *postgresAPIKeyStore) Create(
	ctx context.Context,
	name string,
	role Role,
	expiresAt *time.Time,
) (string, *ApiKey, error) {
	if !role.IsValid() {
		return "", nil, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}

	rawKey, err := generateRawAPIKey()
	if err != nil {
		return "", nil, err
	}

	key := &ApiKey{
		ID:        NewID(),
		KeyHash:   HashAPIKeyValue(rawKey),
		KeyPrefix: rawKey[:apiKeyPublicPrefix],
		Name:      name,
		Role:      role,
		ExpiresAt: expiresAt,
	}

	query := `
		INSERT INTO api_keys (id, key_hash, key_prefix, name, role, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err = s.conn.QueryRowContext(ctx, query,
		key.ID, key.KeyHash, key.KeyPrefix, key.Name, string(key.Role), key.ExpiresAt,
	).Scan(&key.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}

	return rawKey, key, nil
}

func (s *postgresAPIKeyStore) VerifyAndTouch(ctx context.Context, rawKey string) (*ApiKey, error) {
	hash := HashAPIKeyValue(rawKey)

	query := `
		SELECT id, key_hash, key_prefix, name, role, expires_at, last_used_at, created_at, deleted_at
		FROM api_keys
		WHERE key_hash = $1 AND deleted_at IS NULL
	`

	key, err := scanAPIKey(s.conn.QueryRowContext(ctx, query, hash))
	if err != nil {
		return nil, err
	}

	// Defense in depth: key_hash is already a unique index lookup, but the
	// comparison itself stays constant-time so a future non-indexed path
	// (e.g. a cache) can reuse this function safely (spec §4.2, §8 property 7).
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, ErrNotFound
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrNotFound
	}

	// Best-effort: a failed last_used_at update never fails the request.
	_, _ = s.conn.ExecContext(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, key.ID)

	return key, nil
}

func (s *postgresAPIKeyStore) Get(ctx context.Context, id string) (*ApiKey, error) {
	query := `
		SELECT id, key_hash, key_prefix, name, role, expires_at, last_used_at, created_at, deleted_at
		FROM api_keys
		WHERE id = $1 AND deleted_at IS NULL
	`

	return scanAPIKey(s.conn.QueryRowContext(ctx, query, id))
}

func (s *postgresAPIKeyStore) List(ctx context.Context) ([]*ApiKey, error) {
	query := `
		SELECT id, key_hash, key_prefix, name, role, expires_at, last_used_at, created_at, deleted_at
		FROM api_keys
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*ApiKey

	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func (s *postgresAPIKeyStore) Revoke(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)

	return checkRowsAffected(res, err)
}

func (s *postgresAPIKeyStore) Restore(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, id)

	return checkRowsAffected(res, err)
}

func scanAPIKey(row interface{ Scan(dest ...interface{}) error }) (*ApiKey, error) {
	var (
		key        ApiKey
		expiresAt  sql.NullTime
		lastUsedAt sql.NullTime
		deletedAt  sql.NullTime
	)

	err := row.Scan(
		&key.ID, &key.KeyHash, &key.KeyPrefix, &key.Name, &key.Role,
		&expiresAt, &lastUsedAt, &key.CreatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan api key: %w", err)
	}

	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}

	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}

	if deletedAt.Valid {
		key.DeletedAt = &deletedAt.Time
	}

	return &key, nil
}
