package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type (
	// CaseStatus is the outcome of a single TestCase.
	CaseStatus string

	// SuiteCounts are the aggregated case counts a parser reports for a TestSuite.
	SuiteCounts struct {
		Total   int `json:"total"`
		Passed  int `json:"passed"`
		Failed  int `json:"failed"`
		Skipped int `json:"skipped"`
		Flaky   int `json:"flaky"`
	}

	// TestSuite groups TestCase rows within a Job, populated by the parser
	// during ingestion (spec §4.7).
	TestSuite struct {
		ID        string
		JobID     string
		Title     string
		FilePath  string
		Counts    SuiteCounts
		Duration  time.Duration
		StartTime *time.Time
		CreatedAt time.Time
	}

	// TestCase is one logical test, with retries collapsed or expanded at the
	// parser's discretion. Retries of the same logical test share FullTitle, the
	// column callers group by (spec §3 invariant).
	TestCase struct {
		ID           string
		SuiteID      string
		JobID        string
		Title        string
		FullTitle    string
		Status       CaseStatus
		Duration     time.Duration
		RetryCount   int
		ErrorMessage string
		Attachments  json.RawMessage
		Sequence     int
		CreatedAt    time.Time
	}

	// ResultsStore persists parsed TestSuite/TestCase rows and serves the
	// test-results query surface (spec §6 test-results endpoints).
	ResultsStore interface {
		// CreateSuite inserts a TestSuite for jobID.
		CreateSuite(ctx context.Context, suite *TestSuite) (*TestSuite, error)
		// CreateCase inserts a TestCase for suiteID.
		CreateCase(ctx context.Context, tc *TestCase) (*TestCase, error)
		// SuitesByJob returns every TestSuite belonging to jobID.
		SuitesByJob(ctx context.Context, jobID string) ([]*TestSuite, error)
		// CasesBySuite returns every TestCase belonging to suiteID, ordered by sequence.
		CasesBySuite(ctx context.Context, suiteID string) ([]*TestCase, error)
		// CasesByJob returns every TestCase belonging to jobID across all of its
		// suites, the working set the screenshot linker matches against (spec §4.8).
		CasesByJob(ctx context.Context, jobID string) ([]*TestCase, error)
		// CasesByFullTitle returns every TestCase across a report sharing fullTitle,
		// i.e. the retries of one logical test (spec §3).
		CasesByFullTitle(ctx context.Context, reportID, fullTitle string) ([]*TestCase, error)
		// GetCase fetches a single TestCase by id.
		GetCase(ctx context.Context, id string) (*TestCase, error)
		// CreateSuiteWithCases inserts suite and its cases atomically: either all
		// rows land or none do (spec §4.8, "the orchestrator wraps the parser run
		// in a transaction"). cases' SuiteID is overwritten with the created
		// suite's id.
		CreateSuiteWithCases(ctx context.Context, suite *TestSuite, cases []*TestCase) (*TestSuite, []*TestCase, error)
	}
)

const (
	CaseStatusPassed   CaseStatus = "passed"
	CaseStatusFailed   CaseStatus = "failed"
	CaseStatusSkipped  CaseStatus = "skipped"
	CaseStatusFlaky    CaseStatus = "flaky"
	CaseStatusTimedOut CaseStatus = "timedOut"
)

// IsValid reports whether cs is a known CaseStatus.
func (cs CaseStatus) IsValid() bool {
	switch cs {
	case CaseStatusPassed, CaseStatusFailed, CaseStatusSkipped, CaseStatusFlaky, CaseStatusTimedOut:
		return true
	default:
		return false
	}
}

// postgresResultsStore implements ResultsStore against PostgreSQL.
type postgresResultsStore struct {
	conn *Connection
}

// NewResultsStore returns a PostgreSQL-backed ResultsStore.
func NewResultsStore(conn *Connection) ResultsStore {
	return &postgresResultsStore{conn: conn}
}

func (s *postgresResultsStore) CreateSuite(ctx context.Context, suite *TestSuite) (*TestSuite, error) {
	if suite.ID == "" {
		suite.ID = NewID()
	}

	query := `
		INSERT INTO test_suites (
			id, job_id, title, file_path, total, passed, failed, skipped, flaky,
			duration_ms, start_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := s.conn.QueryRowContext(ctx, query,
		suite.ID, suite.JobID, suite.Title, suite.FilePath,
		suite.Counts.Total, suite.Counts.Passed, suite.Counts.Failed, suite.Counts.Skipped, suite.Counts.Flaky,
		suite.Duration.Milliseconds(), suite.StartTime,
	).Scan(&suite.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert test suite: %w", err)
	}

	return suite, nil
}

func (s *postgresResultsStore) CreateCase(ctx context.Context, tc *TestCase) (*TestCase, error) {
	if tc.ID == "" {
		tc.ID = NewID()
	}

	if !tc.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown case status %q", ErrInvalidArgument, tc.Status)
	}

	attachments := tc.Attachments
	if attachments == nil {
		attachments = json.RawMessage("[]")
	}

	query := `
		INSERT INTO test_cases (
			id, suite_id, job_id, title, full_title, status,
			duration_ms, retry_count, error_message, attachments, sequence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := s.conn.QueryRowContext(ctx, query,
		tc.ID, tc.SuiteID, tc.JobID, tc.Title, tc.FullTitle, string(tc.Status),
		tc.Duration.Milliseconds(), tc.RetryCount, tc.ErrorMessage, []byte(attachments), tc.Sequence,
	).Scan(&tc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert test case: %w", err)
	}

	return tc, nil
}

func (s *postgresResultsStore) CreateSuiteWithCases(
	ctx context.Context, suite *TestSuite, cases []*TestCase,
) (*TestSuite, []*TestCase, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin suite tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if suite.ID == "" {
		suite.ID = NewID()
	}

	suiteQuery := `
		INSERT INTO test_suites (
			id, job_id, title, file_path, total, passed, failed, skipped, flaky,
			duration_ms, start_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err = tx.QueryRowContext(ctx, suiteQuery,
		suite.ID, suite.JobID, suite.Title, suite.FilePath,
		suite.Counts.Total, suite.Counts.Passed, suite.Counts.Failed, suite.Counts.Skipped, suite.Counts.Flaky,
		suite.Duration.Milliseconds(), suite.StartTime,
	).Scan(&suite.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert test suite: %w", err)
	}

	caseQuery := `
		INSERT INTO test_cases (
			id, suite_id, job_id, title, full_title, status,
			duration_ms, retry_count, error_message, attachments, sequence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	for _, tc := range cases {
		tc.SuiteID = suite.ID

		if tc.ID == "" {
			tc.ID = NewID()
		}

		if !tc.Status.IsValid() {
			return nil, nil, fmt.Errorf("%w: unknown case status %q", ErrInvalidArgument, tc.Status)
		}

		attachments := tc.Attachments
		if attachments == nil {
			attachments = json.RawMessage("[]")
		}

		err := tx.QueryRowContext(ctx, caseQuery,
			tc.ID, tc.SuiteID, tc.JobID, tc.Title, tc.FullTitle, string(tc.Status),
			tc.Duration.Milliseconds(), tc.RetryCount, tc.ErrorMessage, []byte(attachments), tc.Sequence,
		).Scan(&tc.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("insert test case %q: %w", tc.FullTitle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit suite tx: %w", err)
	}

	return suite, cases, nil
}

func (s *postgresResultsStore) SuitesByJob(ctx context.Context, jobID string) ([]*TestSuite, error) {
	query := `
		SELECT id, job_id, title, file_path, total, passed, failed, skipped, flaky,
			duration_ms, start_time, created_at
		FROM test_suites
		WHERE job_id = $1
		ORDER BY id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list test suites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suites []*TestSuite

	for rows.Next() {
		suite, err := scanSuite(rows)
		if err != nil {
			return nil, err
		}

		suites = append(suites, suite)
	}

	return suites, rows.Err()
}

func (s *postgresResultsStore) CasesBySuite(ctx context.Context, suiteID string) ([]*TestCase, error) {
	query := `
		SELECT id, suite_id, job_id, title, full_title, status,
			duration_ms, retry_count, error_message, attachments, sequence, created_at
		FROM test_cases
		WHERE suite_id = $1
		ORDER BY sequence ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, suiteID)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []*TestCase

	for rows.Next() {
		tc, err := scanCase(rows)
		if err != nil {
			return nil, err
		}

		cases = append(cases, tc)
	}

	return cases, rows.Err()
}

func (s *postgresResultsStore) CasesByJob(ctx context.Context, jobID string) ([]*TestCase, error) {
	query := `
		SELECT id, suite_id, job_id, title, full_title, status,
			duration_ms, retry_count, error_message, attachments, sequence, created_at
		FROM test_cases
		WHERE job_id = $1
		ORDER BY sequence ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list test cases for job: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []*TestCase

	for rows.Next() {
		tc, err := scanCase(rows)
		if err != nil {
			return nil, err
		}

		cases = append(cases, tc)
	}

	return cases, rows.Err()
}

func (s *postgresResultsStore) CasesByFullTitle(ctx context.Context, reportID, fullTitle string) ([]*TestCase, error) {
	query := `
		SELECT tc.id, tc.suite_id, tc.job_id, tc.title, tc.full_title, tc.status,
			tc.duration_ms, tc.retry_count, tc.error_message, tc.attachments, tc.sequence, tc.created_at
		FROM test_cases tc
		JOIN jobs j ON j.id = tc.job_id
		WHERE j.report_id = $1 AND tc.full_title = $2
		ORDER BY tc.created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, reportID, fullTitle)
	if err != nil {
		return nil, fmt.Errorf("list test case retries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []*TestCase

	for rows.Next() {
		tc, err := scanCase(rows)
		if err != nil {
			return nil, err
		}

		cases = append(cases, tc)
	}

	return cases, rows.Err()
}

func (s *postgresResultsStore) GetCase(ctx context.Context, id string) (*TestCase, error) {
	query := `
		SELECT id, suite_id, job_id, title, full_title, status,
			duration_ms, retry_count, error_message, attachments, sequence, created_at
		FROM test_cases
		WHERE id = $1
	`

	return scanCase(s.conn.QueryRowContext(ctx, query, id))
}

func scanSuite(row interface{ Scan(dest ...interface{}) error }) (*TestSuite, error) {
	var (
		suite      TestSuite
		durationMs int64
		startTime  sql.NullTime
	)

	err := row.Scan(
		&suite.ID, &suite.JobID, &suite.Title, &suite.FilePath,
		&suite.Counts.Total, &suite.Counts.Passed, &suite.Counts.Failed, &suite.Counts.Skipped, &suite.Counts.Flaky,
		&durationMs, &startTime, &suite.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan test suite: %w", err)
	}

	suite.Duration = time.Duration(durationMs) * time.Millisecond
	if startTime.Valid {
		suite.StartTime = &startTime.Time
	}

	return &suite, nil
}

func scanCase(row interface{ Scan(dest ...interface{}) error }) (*TestCase, error) {
	var (
		tc           TestCase
		durationMs   int64
		attachments  []byte
	)

	err := row.Scan(
		&tc.ID, &tc.SuiteID, &tc.JobID, &tc.Title, &tc.FullTitle, &tc.Status,
		&durationMs, &tc.RetryCount, &tc.ErrorMessage, &attachments, &tc.Sequence, &tc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan test case: %w", err)
	}

	tc.Duration = time.Duration(durationMs) * time.Millisecond
	tc.Attachments = attachments

	return &tc, nil
}
