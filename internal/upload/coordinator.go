package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
)

// ErrJobNotOwned is returned when a job exists but belongs to a different
// report than the one named in the request path (spec §4.7 init: "Reject if
// the job does not exist or is not owned by the stated report (404)").
var ErrJobNotOwned = errors.New("job not owned by report")

// InitEntry is one requested upload from an init payload.
type InitEntry struct {
	Path string
	Size int64
}

// InitResult is the §4.7 init response shape.
type InitResult struct {
	JobID    string
	Accepted []string
	Rejected []Rejection
}

// TransferResult is the §4.7 transfer response shape.
type TransferResult struct {
	JobID                string
	FilesUploadedThisReq int
	TotalUploaded        int
	TotalExpected        int
	AllUploaded          bool
}

// ProgressResult is the §4.7 progress response shape.
type ProgressResult struct {
	JobID       string
	Uploaded    int
	Total       int
	AllUploaded bool
}

// Coordinator implements the Upload Coordinator (UC) described in spec §4.7
// for all three artifact kinds.
type Coordinator struct {
	jobs    store.JobStore
	files   map[objectstore.ArtifactKind]store.FileStore
	objects objectstore.Store
	bus     *eventbus.Bus
	onJSON  func(ctx context.Context, jobID string)
	logger  *slog.Logger
}

// New returns a Coordinator wired to the three per-kind FileStores. onJSON,
// if non-nil, is invoked after a JSON transfer completes all pending files —
// the Ingestion Orchestrator hooks in here (spec §4.8 "triggered when a
// job's json_upload_status becomes completed").
func New(
	jobs store.JobStore,
	htmlFiles, screenshotFiles, jsonFiles store.FileStore,
	objects objectstore.Store,
	bus *eventbus.Bus,
	onJSON func(ctx context.Context, jobID string),
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		jobs: jobs,
		files: map[objectstore.ArtifactKind]store.FileStore{
			objectstore.KindHTML:        htmlFiles,
			objectstore.KindScreenshots: screenshotFiles,
			objectstore.KindJSON:        jsonFiles,
		},
		objects: objects,
		bus:     bus,
		onJSON:  onJSON,
		logger:  logger,
	}
}

func (c *Coordinator) fileStore(kind objectstore.ArtifactKind) store.FileStore {
	return c.files[kind]
}

func uploadKind(kind objectstore.ArtifactKind) store.UploadKind {
	return store.UploadKind(kind)
}

// loadOwnedJob fetches jobID and verifies it belongs to reportID.
func (c *Coordinator) loadOwnedJob(ctx context.Context, reportID, jobID string) (*store.Job, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.ReportID != reportID {
		return nil, ErrJobNotOwned
	}

	return job, nil
}

// Init runs the §4.7 register phase for one kind: validates every entry,
// inserts DB rows for the accepted ones, and marks the kind's upload
// sub-status started.
func (c *Coordinator) Init(
	ctx context.Context,
	reportID, jobID string,
	kind objectstore.ArtifactKind,
	entries []InitEntry,
) (*InitResult, error) {
	if _, err := c.loadOwnedJob(ctx, reportID, jobID); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: file list must not be empty", store.ErrInvalidArgument)
	}

	var (
		storeEntries []store.FileEntry
		accepted     []string
		rejected     []Rejection
	)

	for _, e := range entries {
		if err := validate(kind, e.Path, e.Size); err != nil {
			rejected = append(rejected, Rejection{Path: e.Path, Reason: err.Error()})
			continue
		}

		storeEntries = append(storeEntries, store.FileEntry{
			Path:        e.Path,
			SizeBytes:   e.Size,
			ContentType: objectstore.InferContentType(e.Path),
		})
		accepted = append(accepted, e.Path)
	}

	if len(storeEntries) == 0 {
		return &InitResult{JobID: jobID, Rejected: rejected},
			fmt.Errorf("%w: no entries passed validation", store.ErrInvalidArgument)
	}

	keyFn := func(filename string) string { return objectstore.Key(reportID, jobID, kind, filename) }

	fs := c.fileStore(kind)
	if _, err := fs.Init(ctx, jobID, storeEntries, keyFn); err != nil {
		return nil, fmt.Errorf("init %s files: %w", kind, err)
	}

	if err := c.jobs.SetUploadStatus(ctx, jobID, uploadKind(kind), store.UploadSubStatusStarted); err != nil {
		return nil, fmt.Errorf("set %s upload status started: %w", kind, err)
	}

	return &InitResult{JobID: jobID, Accepted: accepted, Rejected: rejected}, nil
}
