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
	// JobStatus is the overall processing state of a Job.
	JobStatus string

	// UploadSubStatus tracks one of a Job's three independent artifact upload
	// channels. The zero value is "null": the channel has not been registered yet.
	UploadSubStatus string

	// CIJobIdentity identifies which CI matrix job produced a Job. (report_id,
	// JobID) must be unique so CI retries of the same shard do not create
	// duplicate Jobs (spec §3 idempotency invariant).
	CIJobIdentity struct {
		JobID   string `json:"job_id"`
		JobName string `json:"job_name,omitempty"`
	}

	// Job is one parallel shard of a Report: a single CI matrix job producing its
	// own HTML report, screenshots, and JSON results.
	Job struct {
		ID                      string
		ReportID                string
		Status                  JobStatus
		HTMLUploadStatus        UploadSubStatus
		ScreenshotsUploadStatus UploadSubStatus
		JSONUploadStatus        UploadSubStatus
		HTMLStorageKeyPrefix    string
		CIJobIdentity           *CIJobIdentity
		EnvironmentTags         map[string]string
		Duration                *time.Duration
		StartTime               *time.Time
		ErrorMessage            string
		CreatedAt               time.Time
		UpdatedAt               time.Time
	}

	// JobStore persists and queries Job rows.
	JobStore interface {
		// GetOrCreate returns the existing Job for (reportID, ci.JobID) if one
		// exists, otherwise creates it in the pending state. This makes job
		// registration idempotent across CI retries (spec §3). The bool result
		// is true when a new row was inserted.
		GetOrCreate(ctx context.Context, reportID string, ci *CIJobIdentity, tags map[string]string) (*Job, bool, error)
		// Get fetches a Job by id.
		Get(ctx context.Context, id string) (*Job, error)
		// ListByReport returns every Job belonging to reportID.
		ListByReport(ctx context.Context, reportID string) ([]*Job, error)
		// SetUploadStatus updates one of the three independent upload channels.
		SetUploadStatus(ctx context.Context, id string, kind UploadKind, status UploadSubStatus) error
		// SetHTMLStorageKeyPrefix records the object-store key prefix once the html
		// channel completes (spec §4.4).
		SetHTMLStorageKeyPrefix(ctx context.Context, id, prefix string) error
		// AdvanceStatus sets the job's overall processing status.
		AdvanceStatus(ctx context.Context, id string, status JobStatus) error
		// Fail marks the job failed with a short error message.
		Fail(ctx context.Context, id, errorMessage string) error
	}

	// UploadKind identifies which of a Job's three artifact channels is being
	// updated.
	UploadKind string
)

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"

	UploadSubStatusNull      UploadSubStatus = ""
	UploadSubStatusStarted   UploadSubStatus = "started"
	UploadSubStatusCompleted UploadSubStatus = "completed"
	UploadSubStatusFailed    UploadSubStatus = "failed"
	UploadSubStatusTimedOut  UploadSubStatus = "timedout"

	UploadKindHTML        UploadKind = "html"
	UploadKindScreenshots UploadKind = "screenshots"
	UploadKindJSON        UploadKind = "json"
)

// IsValid reports whether s is a known UploadSubStatus, including the null value.
func (s UploadSubStatus) IsValid() bool {
	switch s {
	case UploadSubStatusNull, UploadSubStatusStarted, UploadSubStatusCompleted, UploadSubStatusFailed, UploadSubStatusTimedOut:
		return true
	default:
		return false
	}
}

// postgresJobStore implements JobStore against PostgreSQL.
type postgresJobStore struct {
	conn *Connection
}

// NewJobStore returns a PostgreSQL-backed JobStore.
func NewJobStore(conn *Connection) JobStore {
	return &postgresJobStore{conn: conn}
}

func (s *postgresJobStore) GetOrCreate(
	ctx context.Context,
	reportID string,
	ci *CIJobIdentity,
	tags map[string]string,
) (*Job, bool, error) {
	if ci == nil || ci.JobID == "" {
		return nil, false, fmt.Errorf("%w: ci job identity is required", ErrInvalidArgument)
	}

	ciJSON, err := json.Marshal(ci)
	if err != nil {
		return nil, false, fmt.Errorf("marshal ci job identity: %w", err)
	}

	if tags == nil {
		tags = map[string]string{}
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, false, fmt.Errorf("marshal environment tags: %w", err)
	}

	existing, err := s.getByReportAndCIJobID(ctx, reportID, ci.JobID)
	if err == nil {
		return existing, false, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	job := &Job{
		ID:                      NewID(),
		ReportID:                reportID,
		Status:                  JobStatusPending,
		HTMLUploadStatus:        UploadSubStatusNull,
		ScreenshotsUploadStatus: UploadSubStatusNull,
		JSONUploadStatus:        UploadSubStatusNull,
		CIJobIdentity:           ci,
		EnvironmentTags:         tags,
	}

	query := `
		INSERT INTO jobs (
			id, report_id, status, ci_job_id, ci_job_identity, environment_tags,
			html_upload_status, screenshots_upload_status, json_upload_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (report_id, ci_job_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err = s.conn.QueryRowContext(ctx, query,
		job.ID, job.ReportID, string(job.Status), ci.JobID, ciJSON, tagsJSON,
		string(job.HTMLUploadStatus), string(job.ScreenshotsUploadStatus), string(job.JSONUploadStatus),
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	switch {
	case err == nil:
		return job, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// Lost the race against a concurrent GetOrCreate for the same
		// (report_id, ci_job_id): fall through to the row the winner inserted.
		existing, getErr := s.getByReportAndCIJobID(ctx, reportID, ci.JobID)
		if getErr != nil {
			return nil, false, getErr
		}

		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
}

const jobSelectColumns = `
	id, report_id, status, ci_job_identity, environment_tags,
	html_upload_status, screenshots_upload_status, json_upload_status,
	html_storage_key_prefix, duration_ms, start_time, error_message,
	created_at, updated_at
`

func (s *postgresJobStore) getByReportAndCIJobID(ctx context.Context, reportID, ciJobID string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM jobs WHERE report_id = $1 AND ci_job_id = $2`

	return scanJob(s.conn.QueryRowContext(ctx, query, reportID, ciJobID))
}

func (s *postgresJobStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM jobs WHERE id = $1`

	return scanJob(s.conn.QueryRowContext(ctx, query, id))
}

func (s *postgresJobStore) ListByReport(ctx context.Context, reportID string) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM jobs WHERE report_id = $1 ORDER BY id ASC`

	rows, err := s.conn.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (s *postgresJobStore) SetUploadStatus(ctx context.Context, id string, kind UploadKind, status UploadSubStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown upload status %q", ErrInvalidArgument, status)
	}

	var column string

	switch kind {
	case UploadKindHTML:
		column = "html_upload_status"
	case UploadKindScreenshots:
		column = "screenshots_upload_status"
	case UploadKindJSON:
		column = "json_upload_status"
	default:
		return fmt.Errorf("%w: unknown upload kind %q", ErrInvalidArgument, kind)
	}

	query := fmt.Sprintf(`UPDATE jobs SET %s = $1, updated_at = now() WHERE id = $2`, column)

	res, err := s.conn.ExecContext(ctx, query, string(status), id)

	return checkRowsAffected(res, err)
}

func (s *postgresJobStore) SetHTMLStorageKeyPrefix(ctx context.Context, id, prefix string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE jobs SET html_storage_key_prefix = $1, updated_at = now() WHERE id = $2`,
		prefix, id,
	)

	return checkRowsAffected(res, err)
}

func (s *postgresJobStore) AdvanceStatus(ctx context.Context, id string, status JobStatus) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)

	return checkRowsAffected(res, err)
}

func (s *postgresJobStore) Fail(ctx context.Context, id, errorMessage string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		string(JobStatusFailed), errorMessage, id,
	)

	return checkRowsAffected(res, err)
}

func scanJob(row interface{ Scan(dest ...interface{}) error }) (*Job, error) {
	var (
		job           Job
		ciJSON        sql.NullString
		tagsJSON      []byte
		prefix        sql.NullString
		durationMs    sql.NullInt64
		startTime     sql.NullTime
		errorMessage  sql.NullString
	)

	err := row.Scan(
		&job.ID, &job.ReportID, &job.Status, &ciJSON, &tagsJSON,
		&job.HTMLUploadStatus, &job.ScreenshotsUploadStatus, &job.JSONUploadStatus,
		&prefix, &durationMs, &startTime, &errorMessage,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan job: %w", err)
	}

	if ciJSON.Valid {
		var ci CIJobIdentity
		if err := json.Unmarshal([]byte(ciJSON.String), &ci); err != nil {
			return nil, fmt.Errorf("unmarshal ci job identity: %w", err)
		}

		job.CIJobIdentity = &ci
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &job.EnvironmentTags); err != nil {
			return nil, fmt.Errorf("unmarshal environment tags: %w", err)
		}
	}

	if prefix.Valid {
		job.HTMLStorageKeyPrefix = prefix.String
	}

	if durationMs.Valid {
		d := time.Duration(durationMs.Int64) * time.Millisecond
		job.Duration = &d
	}

	if startTime.Valid {
		job.StartTime = &startTime.Time
	}

	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}

	return &job, nil
}
