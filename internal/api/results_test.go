package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tsio/tsio/internal/store"
)

func TestHandleListSuites_RequiresJobID(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test-suites", nil)
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleListSuites(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleJobSuitesAndCases(t *testing.T) {
	s, _, _, results := newTestServer()

	suite, _ := results.CreateSuite(t.Context(), &store.TestSuite{JobID: "job-1", Title: "checkout"})
	_, _ = results.CreateCase(t.Context(), &store.TestCase{SuiteID: suite.ID, JobID: "job-1", FullTitle: "checkout > pays"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/test-suites", nil)
	req.SetPathValue("id", "job-1")
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleJobSuites(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var suitesResp testSuiteListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &suitesResp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(suitesResp.Suites) != 1 {
		t.Fatalf("suites = %d, want 1", len(suitesResp.Suites))
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/test-cases", nil)
	req2.SetPathValue("id", "job-1")
	req2 = withCaller(req2, viewerCaller())
	rec2 := httptest.NewRecorder()

	s.handleJobCases(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec2.Code, rec2.Body.String())
	}

	var casesResp testCaseListResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &casesResp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(casesResp.Cases) != 1 {
		t.Fatalf("cases = %d, want 1", len(casesResp.Cases))
	}
}

func TestHandleGetCase_NotFound(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test-cases/missing", nil)
	req.SetPathValue("id", "missing")
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleGetCase(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSuiteCases(t *testing.T) {
	s, _, _, results := newTestServer()

	suite, _ := results.CreateSuite(t.Context(), &store.TestSuite{JobID: "job-1", Title: "checkout"})
	_, _ = results.CreateCase(t.Context(), &store.TestCase{SuiteID: suite.ID, JobID: "job-1", FullTitle: "checkout > pays"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test-suites/"+suite.ID+"/test-cases", nil)
	req.SetPathValue("id", suite.ID)
	req = withCaller(req, viewerCaller())
	rec := httptest.NewRecorder()

	s.handleSuiteCases(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp testCaseListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(resp.Cases) != 1 {
		t.Fatalf("cases = %d, want 1", len(resp.Cases))
	}
}
