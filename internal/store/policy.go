package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type (
	// OidcPolicy maps a repository pattern to a role granted to OIDC identities
	// matching it. Pattern grammar: either "owner/name" (exact) or "owner/*"
	// (wildcard within an owner); a bare "*" is forbidden (spec §4.3).
	OidcPolicy struct {
		ID          string
		Pattern     string
		Role        Role
		Enabled     bool
		Description string
	}

	// PolicyStore persists OidcPolicy rows. The 60s in-memory cache sitting in
	// front of this store is the Policy Engine's concern (internal/auth), not
	// the relational store's.
	PolicyStore interface {
		Create(ctx context.Context, pattern string, role Role, description string) (*OidcPolicy, error)
		Get(ctx context.Context, id string) (*OidcPolicy, error)
		// ListEnabled returns every enabled policy, used to populate the Policy
		// Engine's cache on refresh.
		ListEnabled(ctx context.Context) ([]*OidcPolicy, error)
		List(ctx context.Context) ([]*OidcPolicy, error)
		Update(ctx context.Context, id string, pattern string, role Role, enabled bool, description string) (*OidcPolicy, error)
		Delete(ctx context.Context, id string) error
	}
)

// ErrPolicyPatternInvalid is returned when a pattern is not "owner/name" or
// "owner/*", or is a bare "*".
var ErrPolicyPatternInvalid = errors.New("pattern must be owner/name or owner/* and not a bare wildcard")

// ErrPolicyRoleForbidden is returned when a caller attempts to grant the admin
// role via an OIDC policy (spec §4.3 constraint).
var ErrPolicyRoleForbidden = errors.New("oidc policies may not grant the admin role")

// ValidatePattern enforces the pattern grammar described in spec §4.3.
func ValidatePattern(pattern string) error {
	if pattern == "*" || !strings.Contains(pattern, "/") {
		return ErrPolicyPatternInvalid
	}

	owner, rest, _ := strings.Cut(pattern, "/")
	if owner == "" || rest == "" {
		return ErrPolicyPatternInvalid
	}

	return nil
}

// postgresPolicyStore implements PolicyStore against PostgreSQL.
type postgresPolicyStore struct {
	conn *Connection
}

// NewPolicyStore returns a PostgreSQL-backed PolicyStore.
func NewPolicyStore(conn *Connection) PolicyStore {
	return &postgresPolicyStore{conn: conn}
}

func (s *postgresPolicyStore) Create(ctx context.Context, pattern string, role Role, description string) (*OidcPolicy, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	if role == RoleAdmin {
		return nil, ErrPolicyRoleForbidden
	}

	policy := &OidcPolicy{
		ID:          NewID(),
		Pattern:     pattern,
		Role:        role,
		Enabled:     true,
		Description: description,
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO oidc_policies (id, pattern, role, enabled, description)
		VALUES ($1, $2, $3, $4, $5)
	`, policy.ID, policy.Pattern, string(policy.Role), policy.Enabled, policy.Description)
	if err != nil {
		return nil, fmt.Errorf("insert oidc policy: %w", err)
	}

	return policy, nil
}

func (s *postgresPolicyStore) Get(ctx context.Context, id string) (*OidcPolicy, error) {
	query := `SELECT id, pattern, role, enabled, description FROM oidc_policies WHERE id = $1`

	return scanPolicy(s.conn.QueryRowContext(ctx, query, id))
}

func (s *postgresPolicyStore) ListEnabled(ctx context.Context) ([]*OidcPolicy, error) {
	return s.list(ctx, `SELECT id, pattern, role, enabled, description FROM oidc_policies WHERE enabled = TRUE`)
}

func (s *postgresPolicyStore) List(ctx context.Context) ([]*OidcPolicy, error) {
	return s.list(ctx, `SELECT id, pattern, role, enabled, description FROM oidc_policies ORDER BY pattern ASC`)
}

func (s *postgresPolicyStore) list(ctx context.Context, query string) ([]*OidcPolicy, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list oidc policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var policies []*OidcPolicy

	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}

		policies = append(policies, policy)
	}

	return policies, rows.Err()
}

func (s *postgresPolicyStore) Update(
	ctx context.Context,
	id, pattern string,
	role Role,
	enabled bool,
	description string,
) (*OidcPolicy, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	if role == RoleAdmin {
		return nil, ErrPolicyRoleForbidden
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE oidc_policies SET pattern = $1, role = $2, enabled = $3, description = $4
		WHERE id = $5
	`, pattern, string(role), enabled, description, id)
	if err := checkRowsAffected(res, err); err != nil {
		return nil, err
	}

	return &OidcPolicy{ID: id, Pattern: pattern, Role: role, Enabled: enabled, Description: description}, nil
}

func (s *postgresPolicyStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM oidc_policies WHERE id = $1`, id)

	return checkRowsAffected(res, err)
}

func scanPolicy(row interface{ Scan(dest ...interface{}) error }) (*OidcPolicy, error) {
	var policy OidcPolicy

	err := row.Scan(&policy.ID, &policy.Pattern, &policy.Role, &policy.Enabled, &policy.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan oidc policy: %w", err)
	}

	return &policy, nil
}
