package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type (
	// Framework identifies the front-end test framework that produced a report.
	Framework string

	// ReportStatus is the lifecycle state of a Report. It advances monotonically
	// except for Failed, which is a terminal error state reachable from any state
	// (spec §3).
	ReportStatus string

	// Report is a logical test run composed of one or more parallel Jobs.
	Report struct {
		ID            string
		ExpectedJobs  int
		Framework     Framework
		Status        ReportStatus
		CIMetadata    json.RawMessage // opaque CI metadata blob (repository, ref, sha, actor, run id, pr, ...)
		CreatedAt     time.Time
		UpdatedAt     time.Time
		DeletedAt     *time.Time
	}

	// ReportFilter narrows GET /reports listing by spec §6 query parameters.
	ReportFilter struct {
		Framework    Framework
		Status       ReportStatus
		GithubRepo   string
		GithubBranch string
		Limit        int
		Offset       int
	}

	// ReportStore persists and queries Report rows.
	ReportStore interface {
		// Create inserts a new Report in the initializing state.
		Create(ctx context.Context, expectedJobs int, framework Framework, ciMetadata json.RawMessage) (*Report, error)
		// Get fetches an active Report by id.
		Get(ctx context.Context, id string) (*Report, error)
		// List returns active Reports matching filter, newest first.
		List(ctx context.Context, filter ReportFilter) ([]*Report, int, error)
		// AdvanceStatus moves a Report to newStatus. Failed is reachable from any
		// state; all other transitions must move the status forward (spec §3
		// invariant: "status monotonically advances except failed").
		AdvanceStatus(ctx context.Context, id string, newStatus ReportStatus) error
	}
)

const (
	FrameworkPlaywright Framework = "playwright"
	FrameworkCypress    Framework = "cypress"
	FrameworkDetox      Framework = "detox"

	ReportStatusInitializing ReportStatus = "initializing"
	ReportStatusUploading    ReportStatus = "uploading"
	ReportStatusProcessing   ReportStatus = "processing"
	ReportStatusComplete     ReportStatus = "complete"
	ReportStatusFailed       ReportStatus = "failed"

	minExpectedJobs = 1
	maxExpectedJobs = 100

	defaultListLimit = 20
	maxListLimit     = 100
)

// ErrExpectedJobsOutOfRange is returned when expected_jobs falls outside [1, 100].
var ErrExpectedJobsOutOfRange = errors.New("expected_jobs must be between 1 and 100")

// reportStatusRank gives each status a position in the monotonic order used by
// AdvanceStatus. Failed has no rank: it is reachable from anywhere.
var reportStatusRank = map[ReportStatus]int{
	ReportStatusInitializing: 0,
	ReportStatusUploading:    1,
	ReportStatusProcessing:   2,
	ReportStatusComplete:     3,
}

// IsValid reports whether f is one of the three supported frameworks.
func (f Framework) IsValid() bool {
	switch f {
	case FrameworkPlaywright, FrameworkCypress, FrameworkDetox:
		return true
	default:
		return false
	}
}

// postgresReportStore implements ReportStore against PostgreSQL.
type postgresReportStore struct {
	conn *Connection
}

// NewReportStore returns a PostgreSQL-backed ReportStore.
func NewReportStore(conn *Connection) ReportStore {
	return &postgresReportStore{conn: conn}
}

func (s *postgresReportStore) Create(
	ctx context.Context,
	expectedJobs int,
	framework Framework,
	ciMetadata json.RawMessage,
) (*Report, error) {
	if expectedJobs < minExpectedJobs || expectedJobs > maxExpectedJobs {
		return nil, fmt.Errorf("%w: got %d", ErrExpectedJobsOutOfRange, expectedJobs)
	}

	if ciMetadata == nil {
		ciMetadata = json.RawMessage("{}")
	}

	report := &Report{
		ID:           NewID(),
		ExpectedJobs: expectedJobs,
		Framework:    framework,
		Status:       ReportStatusInitializing,
		CIMetadata:   ciMetadata,
	}

	query := `
		INSERT INTO reports (id, expected_jobs, framework, status, ci_metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := s.conn.QueryRowContext(ctx, query,
		report.ID, report.ExpectedJobs, string(report.Framework), string(report.Status), []byte(ciMetadata),
	).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	return report, nil
}

func (s *postgresReportStore) Get(ctx context.Context, id string) (*Report, error) {
	query := `
		SELECT id, expected_jobs, framework, status, ci_metadata, created_at, updated_at, deleted_at
		FROM reports
		WHERE id = $1 AND deleted_at IS NULL
	`

	return scanReport(s.conn.QueryRowContext(ctx, query, id))
}

func (s *postgresReportStore) List(ctx context.Context, filter ReportFilter) ([]*Report, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	where := "WHERE deleted_at IS NULL"
	args := []interface{}{}
	argN := 1

	addClause := func(clause string, value interface{}) {
		where += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, value)
		argN++
	}

	if filter.Framework != "" {
		addClause("framework =", string(filter.Framework))
	}

	if filter.Status != "" {
		addClause("status =", string(filter.Status))
	}

	if filter.GithubRepo != "" {
		addClause("ci_metadata->>'repository' =", filter.GithubRepo)
	}

	if filter.GithubBranch != "" {
		addClause("ci_metadata->>'ref' =", filter.GithubBranch)
	}

	var total int

	countQuery := "SELECT count(*) FROM reports " + where
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, expected_jobs, framework, status, ci_metadata, created_at, updated_at, deleted_at
		FROM reports %s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, where, argN, argN+1)
	args = append(args, limit, filter.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []*Report

	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}

		reports = append(reports, report)
	}

	return reports, total, rows.Err()
}

func (s *postgresReportStore) AdvanceStatus(ctx context.Context, id string, newStatus ReportStatus) error {
	if newStatus == ReportStatusFailed {
		res, err := s.conn.ExecContext(ctx,
			`UPDATE reports SET status = $1, updated_at = now() WHERE id = $2 AND deleted_at IS NULL`,
			string(ReportStatusFailed), id,
		)

		return checkRowsAffected(res, err)
	}

	newRank, ok := reportStatusRank[newStatus]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, newStatus)
	}

	// Only move forward: current rank must be strictly less than newRank, and the
	// report must not already be failed (failed is sticky/terminal per spec §4.8).
	res, err := s.conn.ExecContext(ctx, `
		UPDATE reports SET status = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL AND status != $3
		AND (
			($4::int = 1 AND status = 'initializing') OR
			($4::int = 2 AND status IN ('initializing','uploading')) OR
			($4::int = 3 AND status IN ('initializing','uploading','processing'))
		)
	`, string(newStatus), id, string(ReportStatusFailed), newRank)
	if err != nil {
		return fmt.Errorf("advance report status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance report status: %w", err)
	}

	if rows == 0 {
		// Idempotent no-op: the report may already be at or past newStatus, or
		// may already be failed. Neither is an error for the caller.
		return nil
	}

	return nil
}

func scanReport(row interface{ Scan(dest ...interface{}) error }) (*Report, error) {
	var (
		report    Report
		ciMeta    []byte
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&report.ID, &report.ExpectedJobs, &report.Framework, &report.Status,
		&ciMeta, &report.CreatedAt, &report.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan report: %w", err)
	}

	report.CIMetadata = ciMeta
	if deletedAt.Valid {
		report.DeletedAt = &deletedAt.Time
	}

	return &report, nil
}

// checkRowsAffected translates a zero-rows-affected UPDATE into ErrNotFound.
func checkRowsAffected(res sql.Result, err error) error {
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}

		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
