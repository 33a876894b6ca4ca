package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReportOidcClaim is 1:1 with a Report when the upload was authenticated via
// OIDC. It stores exactly the 13 "safe" public CI claims plus three audit
// fields; sensitive or replay-sensitive claims (jti, iss, aud, exp, iat, nbf)
// are deliberately dropped (spec §3, GLOSSARY "Safe claim").
type ReportOidcClaim struct {
	ID       string
	ReportID string

	// The 13 safe public CI claims from the GitHub Actions OIDC token.
	Repository      string
	RepositoryOwner string
	Ref             string
	SHA             string
	Workflow        string
	JobWorkflowRef  string
	RunID           string
	RunNumber       string
	RunAttempt      string
	Actor           string
	EventName       string
	Environment     string
	RefType         string

	// Audit fields.
	ResolvedRole Role
	RequestPath  string
	RequestMethod string
}

// SafeOidcClaims lists the 13 claim names persisted from an OIDC token, in the
// order they are extracted. Anything else in the token is discarded.
var SafeOidcClaims = []string{
	"repository",
	"repository_owner",
	"ref",
	"sha",
	"workflow",
	"job_workflow_ref",
	"run_id",
	"run_number",
	"run_attempt",
	"actor",
	"event_name",
	"environment",
	"ref_type",
}

// OidcClaimStore persists the one ReportOidcClaim row per OIDC-authenticated Report.
type OidcClaimStore interface {
	Create(ctx context.Context, claim *ReportOidcClaim) (*ReportOidcClaim, error)
	GetByReport(ctx context.Context, reportID string) (*ReportOidcClaim, error)
}

// postgresOidcClaimStore implements OidcClaimStore against PostgreSQL.
type postgresOidcClaimStore struct {
	conn *Connection
}

// NewOidcClaimStore returns a PostgreSQL-backed OidcClaimStore.
func NewOidcClaimStore(conn *Connection) OidcClaimStore {
	return &postgresOidcClaimStore{conn: conn}
}

func (s *postgresOidcClaimStore) Create(ctx context.Context, claim *ReportOidcClaim) (*ReportOidcClaim, error) {
	if claim.ID == "" {
		claim.ID = NewID()
	}

	query := `
		INSERT INTO report_oidc_claims (
			id, report_id, repository, repository_owner, ref, sha, workflow,
			job_workflow_ref, run_id, run_number, run_attempt, actor, event_name,
			environment, ref_type, resolved_role, request_path, request_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.conn.ExecContext(ctx, query,
		claim.ID, claim.ReportID, claim.Repository, claim.RepositoryOwner, claim.Ref, claim.SHA, claim.Workflow,
		claim.JobWorkflowRef, claim.RunID, claim.RunNumber, claim.RunAttempt, claim.Actor, claim.EventName,
		claim.Environment, claim.RefType, string(claim.ResolvedRole), claim.RequestPath, claim.RequestMethod,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report oidc claim: %w", err)
	}

	return claim, nil
}

func (s *postgresOidcClaimStore) GetByReport(ctx context.Context, reportID string) (*ReportOidcClaim, error) {
	query := `
		SELECT id, report_id, repository, repository_owner, ref, sha, workflow,
			job_workflow_ref, run_id, run_number, run_attempt, actor, event_name,
			environment, ref_type, resolved_role, request_path, request_method
		FROM report_oidc_claims
		WHERE report_id = $1
	`

	var claim ReportOidcClaim

	err := s.conn.QueryRowContext(ctx, query, reportID).Scan(
		&claim.ID, &claim.ReportID, &claim.Repository, &claim.RepositoryOwner, &claim.Ref, &claim.SHA, &claim.Workflow,
		&claim.JobWorkflowRef, &claim.RunID, &claim.RunNumber, &claim.RunAttempt, &claim.Actor, &claim.EventName,
		&claim.Environment, &claim.RefType, &claim.ResolvedRole, &claim.RequestPath, &claim.RequestMethod,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan report oidc claim: %w", err)
	}

	return &claim, nil
}
