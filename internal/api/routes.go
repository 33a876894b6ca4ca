package api

import "net/http"

// setupRoutes registers the full tsio REST/WebSocket surface (spec §6) on
// mux. Every route here sits behind the middleware stack NewServer wraps the
// mux in; per-handler role enforcement happens inside each handler via
// requireRole.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("POST /api/v1/reports", s.handleCreateReport)
	mux.HandleFunc("GET /api/v1/reports", s.handleListReports)
	mux.HandleFunc("GET /api/v1/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/v1/reports/{id}/suites", s.handleReportSuites)
	mux.HandleFunc("GET /api/v1/reports/{id}/suites/{suite_id}/specs", s.handleSuiteSpecs)
	mux.HandleFunc("GET /api/v1/reports/{id}/search", s.handleReportSearch)

	mux.HandleFunc("POST /api/v1/reports/{report_id}/jobs/init", s.handleInitJob)
	mux.HandleFunc("GET /api/v1/reports/{report_id}/jobs/{job_id}", s.handleGetJob)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)

	mux.HandleFunc("POST /api/v1/reports/{report_id}/jobs/{job_id}/{kind}/init", s.handleUploadInit)
	mux.HandleFunc("POST /api/v1/reports/{report_id}/jobs/{job_id}/{kind}", s.handleUploadTransfer)
	mux.HandleFunc("GET /api/v1/reports/{report_id}/jobs/{job_id}/{kind}/progress", s.handleUploadProgress)

	mux.HandleFunc("GET /api/v1/test-suites", s.handleListSuites)
	mux.HandleFunc("GET /api/v1/test-cases", s.handleListCases)
	mux.HandleFunc("GET /api/v1/test-cases/{id}", s.handleGetCase)
	mux.HandleFunc("GET /api/v1/jobs/{id}/test-suites", s.handleJobSuites)
	mux.HandleFunc("GET /api/v1/jobs/{id}/test-cases", s.handleJobCases)
	mux.HandleFunc("GET /api/v1/test-suites/{id}/test-cases", s.handleSuiteCases)

	mux.HandleFunc("POST /api/v1/auth/keys", s.handleCreateAPIKey)
	mux.HandleFunc("GET /api/v1/auth/keys", s.handleListAPIKeys)
	mux.HandleFunc("GET /api/v1/auth/keys/{id}", s.handleGetAPIKey)
	mux.HandleFunc("DELETE /api/v1/auth/keys/{id}", s.handleRevokeAPIKey)
	mux.HandleFunc("POST /api/v1/auth/keys/{id}/restore", s.handleRestoreAPIKey)

	mux.HandleFunc("POST /api/v1/auth/oidc-policies", s.handleCreateOidcPolicy)
	mux.HandleFunc("GET /api/v1/auth/oidc-policies", s.handleListOidcPolicies)
	mux.HandleFunc("GET /api/v1/auth/oidc-policies/{id}", s.handleGetOidcPolicy)
	mux.HandleFunc("PUT /api/v1/auth/oidc-policies/{id}", s.handleUpdateOidcPolicy)
	mux.HandleFunc("DELETE /api/v1/auth/oidc-policies/{id}", s.handleDeleteOidcPolicy)

	if s.deps.OAuthBroker != nil {
		mux.HandleFunc("GET /api/v1/auth/github", s.deps.OAuthBroker.StartLogin)
		mux.HandleFunc("GET /api/v1/auth/github/callback", s.deps.OAuthBroker.HandleCallback)
		mux.HandleFunc("POST /api/v1/auth/refresh", s.deps.OAuthBroker.Refresh)
		mux.HandleFunc("POST /api/v1/auth/logout", s.deps.OAuthBroker.Logout)
	}

	mux.HandleFunc("GET /api/v1/auth/me", s.handleMe)

	mux.HandleFunc("GET /api/v1/ws", s.handleWebSocket)
}
