package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ScreenshotFileStore persists screenshot uploads, adding TestName/Sequence/
// TestCaseID on top of the shared FileStore contract (spec §3).
type ScreenshotFileStore interface {
	FileStore
	// ListUnlinkedByJob returns every active screenshot for jobID whose
	// TestCaseID is still null — the linker's working set (spec §4.8).
	ListUnlinkedByJob(ctx context.Context, jobID string) ([]ScreenshotFile, error)
	// LinkTestCase sets test_case_id for one screenshot row.
	LinkTestCase(ctx context.Context, screenshotID, caseID string) error
}

type postgresScreenshotFileStore struct {
	conn *Connection
}

// NewScreenshotFileStore returns a PostgreSQL-backed ScreenshotFileStore.
func NewScreenshotFileStore(conn *Connection) ScreenshotFileStore {
	return &postgresScreenshotFileStore{conn: conn}
}

const screenshotSelectColumns = `
	id, job_id, filename, storage_key, size_bytes, content_type, status, uploaded_at, created_at, deleted_at,
	test_name, sequence, test_case_id
`

// Init inserts one row per entry, deriving TestName from the first path
// segment and a per-job Sequence continuing from the job's highest existing
// sequence (spec §3
// "ScreenshotFile additionally stores test_name... and a stable per-job
// sequence").
func (s *postgresScreenshotFileStore) Init(
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

	var nextSeq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM screenshot_files WHERE job_id = $1`, jobID,
	).Scan(&nextSeq); err != nil {
		return nil, fmt.Errorf("compute next sequence: %w", err)
	}

	insertQuery := `
		INSERT INTO screenshot_files (
			id, job_id, filename, storage_key, size_bytes, content_type, status, test_name, sequence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, filename) WHERE deleted_at IS NULL DO NOTHING
	`

	selectQuery := `SELECT ` + screenshotSelectColumns + ` FROM screenshot_files WHERE job_id = $1 AND filename = $2 AND deleted_at IS NULL`

	records := make([]fileRecord, 0, len(entries))

	for _, entry := range entries {
		id := NewID()
		testName := screenshotTestName(entry.Path)

		_, err := tx.ExecContext(ctx, insertQuery,
			id, jobID, entry.Path, keyFn(entry.Path), entry.SizeBytes, entry.ContentType,
			string(FileStatusPending), testName, nextSeq,
		)
		if err != nil {
			return nil, fmt.Errorf("insert screenshot_files: %w", err)
		}

		screenshot, err := scanScreenshot(tx.QueryRowContext(ctx, selectQuery, jobID, entry.Path))
		if err != nil {
			return nil, fmt.Errorf("reselect screenshot_files: %w", err)
		}

		records = append(records, screenshot.fileRecord)
		nextSeq++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit init tx: %w", err)
	}

	return records, nil
}

// screenshotTestName derives the test_name from the first path segment (spec §3).
func screenshotTestName(filePath string) string {
	clean := path.Clean(filePath)

	first, _, found := strings.Cut(clean, "/")
	if !found {
		return clean
	}

	return first
}

func (s *postgresScreenshotFileStore) Pending(ctx context.Context, jobID string) (map[string]fileRecord, error) {
	query := `SELECT ` + screenshotSelectColumns + ` FROM screenshot_files WHERE job_id = $1 AND status = $2 AND deleted_at IS NULL`

	rows, err := s.conn.QueryContext(ctx, query, jobID, string(FileStatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending screenshot_files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending := make(map[string]fileRecord)

	for rows.Next() {
		screenshot, err := scanScreenshot(rows)
		if err != nil {
			return nil, err
		}

		pending[screenshot.Filename] = screenshot.fileRecord
	}

	return pending, rows.Err()
}

func (s *postgresScreenshotFileStore) MarkUploaded(ctx context.Context, jobID, filename string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE screenshot_files SET status = $1, uploaded_at = now()
		WHERE job_id = $2 AND filename = $3 AND status = $4 AND deleted_at IS NULL
	`, string(FileStatusUploaded), jobID, filename, string(FileStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark screenshot_files uploaded: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return rows > 0, nil
}

func (s *postgresScreenshotFileStore) MarkFailed(ctx context.Context, jobID, filename string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE screenshot_files SET status = $1 WHERE job_id = $2 AND filename = $3 AND deleted_at IS NULL`,
		string(FileStatusFailed), jobID, filename,
	)

	return checkRowsAffected(res, err)
}

func (s *postgresScreenshotFileStore) ListByJob(ctx context.Context, jobID string) ([]fileRecord, error) {
	query := `SELECT ` + screenshotSelectColumns + ` FROM screenshot_files WHERE job_id = $1 AND deleted_at IS NULL ORDER BY sequence ASC`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list screenshot_files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []fileRecord

	for rows.Next() {
		screenshot, err := scanScreenshot(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, screenshot.fileRecord)
	}

	return records, rows.Err()
}

func (s *postgresScreenshotFileStore) ListUnlinkedByJob(ctx context.Context, jobID string) ([]ScreenshotFile, error) {
	query := `SELECT ` + screenshotSelectColumns + ` FROM screenshot_files
		WHERE job_id = $1 AND test_case_id IS NULL AND deleted_at IS NULL ORDER BY sequence ASC`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list unlinked screenshot_files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var screenshots []ScreenshotFile

	for rows.Next() {
		screenshot, err := scanScreenshot(rows)
		if err != nil {
			return nil, err
		}

		screenshots = append(screenshots, *screenshot)
	}

	return screenshots, rows.Err()
}

func (s *postgresScreenshotFileStore) LinkTestCase(ctx context.Context, screenshotID, caseID string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE screenshot_files SET test_case_id = $1 WHERE id = $2 AND deleted_at IS NULL`,
		caseID, screenshotID,
	)

	return checkRowsAffected(res, err)
}

func scanScreenshot(row interface{ Scan(dest ...interface{}) error }) (*ScreenshotFile, error) {
	var (
		screenshot ScreenshotFile
		uploadedAt sql.NullTime
		deletedAt  sql.NullTime
		testCaseID sql.NullString
	)

	err := row.Scan(
		&screenshot.ID, &screenshot.JobID, &screenshot.Filename, &screenshot.StorageKey,
		&screenshot.SizeBytes, &screenshot.ContentType, &screenshot.Status,
		&uploadedAt, &screenshot.CreatedAt, &deletedAt,
		&screenshot.TestName, &screenshot.Sequence, &testCaseID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan screenshot_files: %w", err)
	}

	if uploadedAt.Valid {
		screenshot.UploadedAt = &uploadedAt.Time
	}

	if deletedAt.Valid {
		screenshot.DeletedAt = &deletedAt.Time
	}

	if testCaseID.Valid {
		screenshot.TestCaseID = &testCaseID.String
	}

	return &screenshot, nil
}
