package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JSONFileStore persists JSON result uploads, adding ExtractedAt/
// ExtractionError on top of the shared FileStore contract (spec §3, §4.8).
type JSONFileStore interface {
	FileStore
	// MarkExtracted records the outcome of a parser run against filename: a
	// non-empty extractionErr records the failure message and leaves
	// ExtractedAt unset; an empty extractionErr sets ExtractedAt = now.
	MarkExtracted(ctx context.Context, jobID, filename, extractionErr string) error
}

type postgresJSONFileStore struct {
	conn *Connection
}

// NewJSONFileStore returns a PostgreSQL-backed JSONFileStore.
func NewJSONFileStore(conn *Connection) JSONFileStore {
	return &postgresJSONFileStore{conn: conn}
}

const jsonFileSelectColumns = `
	id, job_id, filename, storage_key, size_bytes, content_type, status, uploaded_at, created_at, deleted_at,
	extracted_at, extraction_error
`

func (s *postgresJSONFileStore) Init(
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

	insertQuery := `
		INSERT INTO json_files (id, job_id, filename, storage_key, size_bytes, content_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id, filename) WHERE deleted_at IS NULL DO NOTHING
	`
	selectQuery := `SELECT ` + jsonFileSelectColumns + ` FROM json_files WHERE job_id = $1 AND filename = $2 AND deleted_at IS NULL`

	records := make([]fileRecord, 0, len(entries))

	for _, entry := range entries {
		id := NewID()

		if _, err := tx.ExecContext(ctx, insertQuery,
			id, jobID, entry.Path, keyFn(entry.Path), entry.SizeBytes, entry.ContentType, string(FileStatusPending),
		); err != nil {
			return nil, fmt.Errorf("insert json_files: %w", err)
		}

		jf, err := scanJSONFile(tx.QueryRowContext(ctx, selectQuery, jobID, entry.Path))
		if err != nil {
			return nil, fmt.Errorf("reselect json_files: %w", err)
		}

		records = append(records, jf.fileRecord)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit init tx: %w", err)
	}

	return records, nil
}

func (s *postgresJSONFileStore) Pending(ctx context.Context, jobID string) (map[string]fileRecord, error) {
	query := `SELECT ` + jsonFileSelectColumns + ` FROM json_files WHERE job_id = $1 AND status = $2 AND deleted_at IS NULL`

	rows, err := s.conn.QueryContext(ctx, query, jobID, string(FileStatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending json_files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending := make(map[string]fileRecord)

	for rows.Next() {
		jf, err := scanJSONFile(rows)
		if err != nil {
			return nil, err
		}

		pending[jf.Filename] = jf.fileRecord
	}

	return pending, rows.Err()
}

func (s *postgresJSONFileStore) MarkUploaded(ctx context.Context, jobID, filename string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE json_files SET status = $1, uploaded_at = now()
		WHERE job_id = $2 AND filename = $3 AND status = $4 AND deleted_at IS NULL
	`, string(FileStatusUploaded), jobID, filename, string(FileStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark json_files uploaded: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return rows > 0, nil
}

func (s *postgresJSONFileStore) MarkFailed(ctx context.Context, jobID, filename string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE json_files SET status = $1 WHERE job_id = $2 AND filename = $3 AND deleted_at IS NULL`,
		string(FileStatusFailed), jobID, filename,
	)

	return checkRowsAffected(res, err)
}

func (s *postgresJSONFileStore) ListByJob(ctx context.Context, jobID string) ([]fileRecord, error) {
	query := `SELECT ` + jsonFileSelectColumns + ` FROM json_files WHERE job_id = $1 AND deleted_at IS NULL ORDER BY filename ASC`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list json_files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []fileRecord

	for rows.Next() {
		jf, err := scanJSONFile(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, jf.fileRecord)
	}

	return records, rows.Err()
}

func (s *postgresJSONFileStore) MarkExtracted(ctx context.Context, jobID, filename, extractionErr string) error {
	var (
		extractedAt sql.NullTime
		errArg      sql.NullString
	)

	if extractionErr == "" {
		extractedAt = sql.NullTime{Time: time.Now(), Valid: true}
	} else {
		errArg = sql.NullString{String: extractionErr, Valid: true}
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE json_files SET extracted_at = $1, extraction_error = $2 WHERE job_id = $3 AND filename = $4 AND deleted_at IS NULL`,
		extractedAt, errArg, jobID, filename,
	)

	return checkRowsAffected(res, err)
}

func scanJSONFile(row interface{ Scan(dest ...interface{}) error }) (*JsonFile, error) {
	var (
		jf              JsonFile
		uploadedAt      sql.NullTime
		deletedAt       sql.NullTime
		extractedAt     sql.NullTime
		extractionError sql.NullString
	)

	err := row.Scan(
		&jf.ID, &jf.JobID, &jf.Filename, &jf.StorageKey, &jf.SizeBytes, &jf.ContentType, &jf.Status,
		&uploadedAt, &jf.CreatedAt, &deletedAt, &extractedAt, &extractionError,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("scan json_files: %w", err)
	}

	if uploadedAt.Valid {
		jf.UploadedAt = &uploadedAt.Time
	}

	if deletedAt.Valid {
		jf.DeletedAt = &deletedAt.Time
	}

	if extractedAt.Valid {
		jf.ExtractedAt = &extractedAt.Time
	}

	if extractionError.Valid {
		jf.ExtractionError = &extractionError.String
	}

	return &jf, nil
}
