package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tsio/tsio/internal/store"
)

func TestHandleInitJob_CreatesAndIsIdempotent(t *testing.T) {
	s, reports, _, _ := newTestServer()

	report, _ := reports.Create(t.Context(), 2, store.FrameworkPlaywright, nil)

	body, _ := json.Marshal(initJobRequest{JobID: "shard-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/"+report.ID+"/jobs/init", bytes.NewReader(body))
	req.SetPathValue("report_id", report.ID)
	req = withCaller(req, contributorCaller())
	rec := httptest.NewRecorder()

	s.handleInitJob(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Repeat call with the same ci job id must be idempotent (200, not 201).
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/reports/"+report.ID+"/jobs/init", bytes.NewReader(body))
	req2.SetPathValue("report_id", report.ID)
	req2 = withCaller(req2, contributorCaller())
	rec2 := httptest.NewRecorder()

	s.handleInitJob(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("repeat status = %d, want 200: %s", rec2.Code, rec2.Body.String())
	}
}

func TestHandleInitJob_MissingJobID(t *testing.T) {
	s, reports, _, _ := newTestServer()

	report, _ := reports.Create(t.Context(), 1, store.FrameworkPlaywright, nil)

	body, _ := json.Marshal(initJobRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/"+report.ID+"/jobs/init", bytes.NewReader(body))
	req.SetPathValue("report_id", report.ID)
	req = withCaller(req, contributorCaller())
	rec := httptest.NewRecorder()

	s.handleInitJob(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleInitJob_UnknownReport(t *testing.T) {
	s, _, _, _ := newTestServer()

	body, _ := json.Marshal(initJobRequest{JobID: "shard-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/missing/jobs/init", bytes.NewReader(body))
	req.SetPathValue("report_id", "missing")
	req = withCaller(req, contributorCaller())
	rec := httptest.NewRecorder()

	s.handleInitJob(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListJobs_RequiresReportID(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleListJobs(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListJobs_ListsByReport(t *testing.T) {
	s, reports, jobs, _ := newTestServer()

	report, _ := reports.Create(t.Context(), 2, store.FrameworkPlaywright, nil)
	_, _, _ = jobs.GetOrCreate(t.Context(), report.ID, &store.CIJobIdentity{JobID: "shard-1"}, nil)
	_, _, _ = jobs.GetOrCreate(t.Context(), report.ID, &store.CIJobIdentity{JobID: "shard-2"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?report_id="+report.ID, nil)
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleListJobs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp jobListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(resp.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(resp.Jobs))
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1/jobs/missing", nil)
	req.SetPathValue("job_id", "missing")
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleGetJob(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
