package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
)

// fakeJobStore is a minimal in-memory store.JobStore. Coordinator.Init and
// Transfer only reach a FileStore once a job is confirmed to exist and be
// owned by the stated report, so the loadOwnedJob/validation-rejection paths
// below can be exercised without a FileStore fake at all. A FileStore fake
// can't be written outside package store: its interface methods return the
// unexported fileRecord type (see DESIGN.md).
type fakeJobStore struct {
	jobs map[string]*store.Job
}

func newFakeJobStore(jobs ...*store.Job) *fakeJobStore {
	m := make(map[string]*store.Job, len(jobs))
	for _, j := range jobs {
		m[j.ID] = j
	}

	return &fakeJobStore{jobs: m}
}

func (f *fakeJobStore) GetOrCreate(ctx context.Context, reportID string, ci *store.CIJobIdentity, tags map[string]string) (*store.Job, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (f *fakeJobStore) Get(ctx context.Context, id string) (*store.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return job, nil
}

func (f *fakeJobStore) ListByReport(ctx context.Context, reportID string) ([]*store.Job, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeJobStore) SetUploadStatus(ctx context.Context, id string, kind store.UploadKind, status store.UploadSubStatus) error {
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}

	switch kind {
	case store.UploadKind(objectstore.KindHTML):
		job.HTMLUploadStatus = status
	case store.UploadKind(objectstore.KindScreenshots):
		job.ScreenshotsUploadStatus = status
	case store.UploadKind(objectstore.KindJSON):
		job.JSONUploadStatus = status
	}

	return nil
}

func (f *fakeJobStore) SetHTMLStorageKeyPrefix(ctx context.Context, id, prefix string) error {
	return nil
}

func (f *fakeJobStore) AdvanceStatus(ctx context.Context, id string, status store.JobStatus) error {
	return nil
}

func (f *fakeJobStore) Fail(ctx context.Context, id, errorMessage string) error {
	return nil
}

func testCoordinator(jobs store.JobStore) *Coordinator {
	return New(jobs, nil, nil, nil, nil, eventbus.New(), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInit_JobNotFound(t *testing.T) {
	c := testCoordinator(newFakeJobStore())

	_, err := c.Init(context.Background(), "r1", "j1", objectstore.KindHTML,
		[]InitEntry{{Path: "index.html", Size: 10}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInit_JobNotOwnedByReport(t *testing.T) {
	c := testCoordinator(newFakeJobStore(&store.Job{ID: "j1", ReportID: "other-report"}))

	_, err := c.Init(context.Background(), "r1", "j1", objectstore.KindHTML,
		[]InitEntry{{Path: "index.html", Size: 10}})
	if !errors.Is(err, ErrJobNotOwned) {
		t.Fatalf("err = %v, want ErrJobNotOwned", err)
	}
}

func TestInit_RejectsEmptyEntryList(t *testing.T) {
	c := testCoordinator(newFakeJobStore(&store.Job{ID: "j1", ReportID: "r1"}))

	_, err := c.Init(context.Background(), "r1", "j1", objectstore.KindHTML, nil)
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestInit_AllEntriesRejectedByValidation(t *testing.T) {
	c := testCoordinator(newFakeJobStore(&store.Job{ID: "j1", ReportID: "r1"}))

	result, err := c.Init(context.Background(), "r1", "j1", objectstore.KindHTML,
		[]InitEntry{{Path: "../escape.html", Size: 10}, {Path: "data.json", Size: 10}})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}

	if result == nil || len(result.Rejected) != 2 {
		t.Fatalf("result = %+v, want 2 rejections", result)
	}

	if len(result.Accepted) != 0 {
		t.Fatalf("accepted = %v, want none", result.Accepted)
	}
}

func TestProgress_JobNotOwnedByReport(t *testing.T) {
	c := testCoordinator(newFakeJobStore(&store.Job{ID: "j1", ReportID: "other-report"}))

	_, err := c.Progress(context.Background(), "r1", "j1", objectstore.KindHTML)
	if !errors.Is(err, ErrJobNotOwned) {
		t.Fatalf("err = %v, want ErrJobNotOwned", err)
	}
}
