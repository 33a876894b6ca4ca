package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/store"
)

// handleCreateReport handles POST /api/v1/reports (spec §6, contributor+).
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleContributor); !ok {
		return
	}

	var req createReportRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeError(w, r, s.logger, apiErr)

		return
	}

	if req.ExpectedJobs < 1 || req.ExpectedJobs > 100 {
		writeError(w, r, s.logger, invalidInput("expected_jobs must be between 1 and 100"))

		return
	}

	if strings.TrimSpace(req.Framework) == "" {
		writeError(w, r, s.logger, invalidInput("framework is required"))

		return
	}

	report, err := s.deps.Reports.Create(r.Context(), req.ExpectedJobs, store.Framework(req.Framework), req.GithubMetadata)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", ""))

		return
	}

	s.deps.Bus.Send(eventbus.Event{
		Type:      eventbus.EventReportCreated,
		Payload:   newReportResponse(report),
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, s.logger, http.StatusCreated, newReportResponse(report))
}

// handleListReports handles GET /api/v1/reports.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	limit, offset := parseLimitOffset(r)
	q := r.URL.Query()

	filter := store.ReportFilter{
		Framework:    store.Framework(q.Get("framework")),
		Status:       store.ReportStatus(q.Get("status")),
		GithubRepo:   q.Get("github_repo"),
		GithubBranch: q.Get("github_branch"),
		Limit:        limit,
		Offset:       offset,
	}

	reports, total, err := s.deps.Reports.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", ""))

		return
	}

	resp := reportListResponse{Reports: make([]reportResponse, len(reports)), Total: total}
	for i, rep := range reports {
		resp.Reports[i] = newReportResponse(rep)
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

// reportDetailResponse is GET /reports/{id}'s shape: a report plus its jobs
// (spec §6 "detail with jobs").
type reportDetailResponse struct {
	reportResponse

	Jobs []jobResponse `json:"jobs"`
}

// handleGetReport handles GET /api/v1/reports/{id}.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	id := r.PathValue("id")

	report, err := s.deps.Reports.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", id))

		return
	}

	jobs, err := s.deps.Jobs.ListByReport(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", id))

		return
	}

	jobResponses := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		jobResponses[i] = newJobResponse(j, false)
	}

	writeJSON(w, s.logger, http.StatusOK, reportDetailResponse{
		reportResponse: newReportResponse(report),
		Jobs:           jobResponses,
	})
}

// suitesResponse is GET /reports/{id}/suites's shape: suites grouped across
// every job belonging to the report, plus the job list when there's more
// than one (spec §6).
type suitesResponse struct {
	Suites []testSuiteResponse `json:"suites"`
	Jobs   []jobResponse       `json:"jobs,omitempty"`
}

// handleReportSuites handles GET /api/v1/reports/{id}/suites.
func (s *Server) handleReportSuites(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	id := r.PathValue("id")

	if _, err := s.deps.Reports.Get(r.Context(), id); err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", id))

		return
	}

	jobs, err := s.deps.Jobs.ListByReport(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", id))

		return
	}

	var suites []testSuiteResponse

	for _, j := range jobs {
		jobSuites, err := s.deps.Results.SuitesByJob(r.Context(), j.ID)
		if err != nil {
			writeError(w, r, s.logger, classifyStoreError(err, "report", id))

			return
		}

		for _, suite := range jobSuites {
			suites = append(suites, newTestSuiteResponse(suite))
		}
	}

	resp := suitesResponse{Suites: suites}

	if len(jobs) > 1 {
		resp.Jobs = make([]jobResponse, len(jobs))
		for i, j := range jobs {
			resp.Jobs[i] = newJobResponse(j, false)
		}
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

// specResponse is one collapsed logical test within GET
// /reports/{id}/suites/{suite_id}/specs: every retry sharing full_title,
// newest attempts last, the order the parser assigns via Sequence.
type specResponse struct {
	FullTitle string              `json:"full_title"`
	Attempts  []testCaseResponse  `json:"attempts"`
}

// handleSuiteSpecs handles GET /api/v1/reports/{id}/suites/{suite_id}/specs.
// Screenshot linking augmentation for detox reports (spec §6) is left to a
// follow-up: ScreenshotFile.TestCaseID is already populated by the linker
// (internal/ingestion/linker.go) but surfacing it here needs a join this
// handler doesn't yet perform.
func (s *Server) handleSuiteSpecs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	suiteID := r.PathValue("suite_id")

	cases, err := s.deps.Results.CasesBySuite(r.Context(), suiteID)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "suite", suiteID))

		return
	}

	grouped := make(map[string][]testCaseResponse)

	order := make([]string, 0)

	for _, c := range cases {
		if _, seen := grouped[c.FullTitle]; !seen {
			order = append(order, c.FullTitle)
		}

		grouped[c.FullTitle] = append(grouped[c.FullTitle], newTestCaseResponse(c))
	}

	specs := make([]specResponse, 0, len(order))
	for _, title := range order {
		specs = append(specs, specResponse{FullTitle: title, Attempts: grouped[title]})
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]interface{}{"specs": specs})
}

// searchResultGroup is one suite's matches within GET /reports/{id}/search.
type searchResultGroup struct {
	SuiteID string              `json:"suite_id"`
	Title   string              `json:"title"`
	Cases   []testCaseResponse  `json:"cases"`
}

const maxSearchLimit = 500

// handleReportSearch handles GET /api/v1/reports/{id}/search.
func (s *Server) handleReportSearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	id := r.PathValue("id")
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	if query == "" {
		writeError(w, r, s.logger, invalidInput("q is required"))

		return
	}

	if len(query) < s.config.Features.SearchMinLength {
		writeError(w, r, s.logger, invalidInput("q is shorter than the configured minimum search length"))

		return
	}

	limit := maxSearchLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	jobs, err := s.deps.Jobs.ListByReport(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "report", id))

		return
	}

	suiteTitles := make(map[string]string)
	groups := make(map[string]*searchResultGroup)

	var order []string

	matched := 0

	for _, j := range jobs {
		if matched >= limit {
			break
		}

		jobSuites, err := s.deps.Results.SuitesByJob(r.Context(), j.ID)
		if err != nil {
			writeError(w, r, s.logger, classifyStoreError(err, "report", id))

			return
		}

		for _, suite := range jobSuites {
			suiteTitles[suite.ID] = suite.Title
		}

		cases, err := s.deps.Results.CasesByJob(r.Context(), j.ID)
		if err != nil {
			writeError(w, r, s.logger, classifyStoreError(err, "report", id))

			return
		}

		for _, c := range cases {
			if matched >= limit {
				break
			}

			if !strings.Contains(strings.ToLower(c.Title), query) && !strings.Contains(strings.ToLower(c.FullTitle), query) {
				continue
			}

			g, ok := groups[c.SuiteID]
			if !ok {
				g = &searchResultGroup{SuiteID: c.SuiteID, Title: suiteTitles[c.SuiteID]}
				groups[c.SuiteID] = g
				order = append(order, c.SuiteID)
			}

			g.Cases = append(g.Cases, newTestCaseResponse(c))
			matched++
		}
	}

	results := make([]searchResultGroup, 0, len(order))
	for _, suiteID := range order {
		results = append(results, *groups[suiteID])
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]interface{}{"results": results})
}
