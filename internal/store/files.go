package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type (
	// FileStatus is the lifecycle of a single declared upload.
	FileStatus string

	// fileRecord holds the fields shared by HtmlFile, ScreenshotFile, and JsonFile.
	fileRecord struct {
		ID          string
		JobID       string
		Filename    string
		StorageKey  string
		SizeBytes   int64
		ContentType string
		Status      FileStatus
		UploadedAt  *time.Time
		CreatedAt   time.Time
		DeletedAt   *time.Time
	}

	// HtmlFile is a planned or completed HTML report upload for a job.
	HtmlFile struct {
		fileRecord
	}

	// ScreenshotFile is a planned or completed screenshot upload. TestName is
	// derived from the first path segment of Filename; Sequence is stable within
	// the job; TestCaseID is populated once a matching TestCase is linked after
	// JSON extraction (spec §4.7).
	ScreenshotFile struct {
		fileRecord
		TestName   string
		Sequence   int
		TestCaseID *string
	}

	// JsonFile is a planned or completed JSON results upload. ExtractedAt and
	// ExtractionError are set once the ingestion orchestrator has run the parser
	// against this file.
	JsonFile struct {
		fileRecord
		ExtractedAt     *time.Time
		ExtractionError *string
	}

	// FileEntry is one requested upload from an init payload.
	FileEntry struct {
		Path        string
		SizeBytes   int64
		ContentType string
	}

	// FileStore persists and queries upload records for one artifact kind
	// (html, screenshots, or json); the three kinds share schema and behavior
	// but live in separate tables per spec §3.
	FileStore interface {
		// Init inserts one row per entry with status pending, preserving any row
		// whose (job_id, filename) already exists (idempotent re-init, spec §4.3).
		Init(ctx context.Context, jobID string, entries []FileEntry, keyFn func(filename string) string) ([]fileRecord, error)
		// Pending returns the filenames still in pending status for jobID, the set
		// a multipart transfer is allowed to accept (spec §4.3).
		Pending(ctx context.Context, jobID string) (map[string]fileRecord, error)
		// MarkUploaded transitions filename from pending to uploaded. It is a
		// conditional UPDATE filtered on status='pending', so concurrent retries
		// of the same file race safely and only one wins (spec §4.3 ordering).
		MarkUploaded(ctx context.Context, jobID, filename string) (bool, error)
		// MarkFailed transitions filename to failed.
		MarkFailed(ctx context.Context, jobID, filename string) error
		// ListByJob returns every active row for jobID.
		ListByJob(ctx context.Context, jobID string) ([]fileRecord, error)
	}
)

const (
	FileStatusPending  FileStatus = "pending"
	FileStatusUploaded FileStatus = "uploaded"
	FileStatusFailed   FileStatus = "failed"
)

// postgresFileStore implements FileStore against a single table (html_files,
// screenshot_files, or json_files — table name is injected at construction).
type postgresFileStore struct {
	conn  *Connection
	table string
}

// NewHTMLFileStore returns a FileStore backed by the html_files table. HTML
// rows carry no kind-specific columns beyond the shared fileRecord fields,
// unlike screenshot_files/json_files (see screenshot_files.go, json_files.go).
func NewHTMLFileStore(conn *Connection) FileStore {
	return &postgresFileStore{conn: conn, table: "html_files"}
}

func (s *postgresFileStore) Init(
	ctx context.Context,
	jobID string,
	entries []FileEntry,
	keyFn func(filename string) string,
) ([]fileRecord, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin init tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	records := make([]fileRecord, 0, len(entries))

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, job_id, filename, storage_key, size_bytes, content_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id, filename) WHERE deleted_at IS NULL DO NOTHING
	`, s.table)

	selectQuery := fmt.Sprintf(`
		SELECT id, job_id, filename, storage_key, size_bytes, content_type, status, uploaded_at, created_at, deleted_at
		FROM %s
		WHERE job_id = $1 AND filename = $2 AND deleted_at IS NULL
	`, s.table)

	for _, entry := range entries {
		id := NewID()

		_, err := tx.ExecContext(ctx, insertQuery,
			id, jobID, entry.Path, keyFn(entry.Path), entry.SizeBytes, entry.ContentType, string(FileStatusPending),
		)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", s.table, err)
		}

		record, err := scanFileRecord(tx.QueryRowContext(ctx, selectQuery, jobID, entry.Path))
		if err != nil {
			return nil, fmt.Errorf("reselect %s: %w", s.table, err)
		}

		records = append(records, *record)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit init tx: %w", err)
	}

	return records, nil
}

func (s *postgresFileStore) Pending(ctx context.Context, jobID string) (map[string]fileRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, job_id, filename, storage_key, size_bytes, content_type, status, uploaded_at, created_at, deleted_at
		FROM %s
		WHERE job_id = $1 AND status = $2 AND deleted_at IS NULL
	`, s.table)

	rows, err := s.conn.QueryContext(ctx, query, jobID, string(FileStatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending %s: %w", s.table, err)
	}
	defer func() { _ = rows.Close() }()

	pending := make(map[string]fileRecord)

	for rows.Next() {
		record, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}

		pending[record.Filename] = *record
	}

	return pending, rows.Err()
}

func (s *postgresFileStore) MarkUploaded(ctx context.Context, jobID, filename string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET status = $1, uploaded_at = now()
		WHERE job_id = $2 AND filename = $3 AND status = $4 AND deleted_at IS NULL
	`, s.table)

	res, err := s.conn.ExecContext(ctx, query, string(FileStatusUploaded), jobID, filename, string(FileStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark %s uploaded: %w", s.table, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	// rows == 0 means this transfer lost the race, or the file was already
	// uploaded by an earlier retry: either way it's not an error (spec §4.3).
	return rows > 0, nil
}

func (s *postgresFileStore) MarkFailed(ctx context.Context, jobID, filename string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = $1
		WHERE job_id = $2 AND filename = $3 AND deleted_at IS NULL
	`, s.table)

	res, err := s.conn.ExecContext(ctx, query, string(FileStatusFailed), jobID, filename)

	return checkRowsAffected(res, err)
}

func (s *postgresFileStore) ListByJob(ctx context.Context, jobID string) ([]fileRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, job_id, filename, storage_key, size_bytes, content_type, status, uploaded_at, created_at, deleted_at
		FROM %s
		WHERE job_id = $1 AND deleted_at IS NULL
		ORDER BY filename ASC
	`, s.table)

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	defer func() { _ = rows.Close() }()

	var records []fileRecord

	for rows.Next() {
		record, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, *record)
	}

	return records, rows.Err()
}

func scanFileRecord(row interface{ Scan(dest ...interface{}) error }) (*fileRecord, error) {
	var (
		record     fileRecord
		uploadedAt sql.NullTime
		deletedAt  sql.NullTime
	)

	err := row.Scan(
		&record.ID, &record.JobID, &record.Filename, &record.StorageKey,
		&record.SizeBytes, &record.ContentType, &record.Status,
		&uploadedAt, &record.CreatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan file record: %w", err)
	}

	if uploadedAt.Valid {
		record.UploadedAt = &uploadedAt.Time
	}

	if deletedAt.Valid {
		record.DeletedAt = &deletedAt.Time
	}

	return &record, nil
}
