package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
)

// Transfer runs the §4.7 transfer phase for one kind against a multipart
// reader: each part is matched against the job's pending rows for this kind,
// read into a bounded buffer, PUT to its precomputed key, and marked
// uploaded. Parts whose filename isn't currently pending are silently
// skipped (supports client retries resending already-transferred files).
func (c *Coordinator) Transfer(
	ctx context.Context,
	reportID, jobID string,
	kind objectstore.ArtifactKind,
	reader *multipart.Reader,
) (*TransferResult, error) {
	if _, err := c.loadOwnedJob(ctx, reportID, jobID); err != nil {
		return nil, err
	}

	fs := c.fileStore(kind)

	pending, err := fs.Pending(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load pending %s files: %w", kind, err)
	}

	uploadedThisRequest := 0

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		filename := part.FileName()

		record, ok := pending[filename]
		if filename == "" || !ok {
			_ = part.Close()
			continue
		}

		limit := sizeLimit(kind)

		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		_ = part.Close()

		if err != nil {
			return nil, fmt.Errorf("buffer part %q: %w", filename, err)
		}

		if int64(len(data)) > limit {
			return nil, fmt.Errorf("%w: part %q exceeds %d byte limit for kind %q",
				store.ErrInvalidArgument, filename, limit, kind)
		}

		if err := c.objects.Put(ctx, record.StorageKey, data, record.ContentType); err != nil {
			return nil, fmt.Errorf("store %q: %w", filename, err)
		}

		marked, err := fs.MarkUploaded(ctx, jobID, filename)
		if err != nil {
			return nil, fmt.Errorf("mark %q uploaded: %w", filename, err)
		}

		if marked {
			uploadedThisRequest++
		}
	}

	result, err := c.finishTransfer(ctx, jobID, kind, uploadedThisRequest)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// finishTransfer recomputes progress after a transfer request, advances the
// kind's sub-status to completed when every row is terminal, records the
// html storage prefix, and emits job_updated.
func (c *Coordinator) finishTransfer(
	ctx context.Context,
	jobID string,
	kind objectstore.ArtifactKind,
	uploadedThisRequest int,
) (*TransferResult, error) {
	progress, err := c.progress(ctx, jobID, kind)
	if err != nil {
		return nil, err
	}

	if progress.AllUploaded {
		if err := c.jobs.SetUploadStatus(ctx, jobID, uploadKind(kind), store.UploadSubStatusCompleted); err != nil {
			return nil, fmt.Errorf("set %s upload status completed: %w", kind, err)
		}

		if kind == objectstore.KindHTML {
			job, err := c.jobs.Get(ctx, jobID)
			if err == nil {
				prefix := objectstore.KeyPrefix(job.ReportID, jobID, objectstore.KindHTML)
				if err := c.jobs.SetHTMLStorageKeyPrefix(ctx, jobID, prefix); err != nil {
					c.logger.Error("failed to set html storage key prefix", slog.String("error", err.Error()))
				}
			}
		}

		c.bus.Send(eventbus.Event{
			Type:    eventbus.EventJobUpdated,
			Payload: map[string]string{"job_id": jobID, "kind": string(kind), "status": "completed"},
		})

		if kind == objectstore.KindJSON && c.onJSON != nil {
			c.onJSON(ctx, jobID)
		}
	}

	return &TransferResult{
		JobID:                jobID,
		FilesUploadedThisReq: uploadedThisRequest,
		TotalUploaded:        progress.Uploaded,
		TotalExpected:        progress.Total,
		AllUploaded:          progress.AllUploaded,
	}, nil
}

// Progress returns the §4.7 progress response for one kind, recomputed from
// DB counts; it is never cached.
func (c *Coordinator) Progress(ctx context.Context, reportID, jobID string, kind objectstore.ArtifactKind) (*ProgressResult, error) {
	if _, err := c.loadOwnedJob(ctx, reportID, jobID); err != nil {
		return nil, err
	}

	return c.progress(ctx, jobID, kind)
}

func (c *Coordinator) progress(ctx context.Context, jobID string, kind objectstore.ArtifactKind) (*ProgressResult, error) {
	records, err := c.fileStore(kind).ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", kind, err)
	}

	uploaded := 0

	for _, r := range records {
		if r.Status == store.FileStatusUploaded {
			uploaded++
		}
	}

	total := len(records)

	return &ProgressResult{
		JobID:       jobID,
		Uploaded:    uploaded,
		Total:       total,
		AllUploaded: total > 0 && uploaded == total,
	}, nil
}
