package api

import (
	"encoding/json"
	"time"

	"github.com/tsio/tsio/internal/store"
)

// Report DTOs (spec §6 /reports).

type createReportRequest struct {
	ExpectedJobs   int             `json:"expected_jobs"`
	Framework      string          `json:"framework"`
	GithubMetadata json.RawMessage `json:"github_metadata,omitempty"`
}

type reportResponse struct {
	ReportID       string          `json:"report_id"`
	Status         string          `json:"status"`
	ExpectedJobs   int             `json:"expected_jobs"`
	Framework      string          `json:"framework"`
	GithubMetadata json.RawMessage `json:"github_metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newReportResponse(r *store.Report) reportResponse {
	return reportResponse{
		ReportID:       r.ID,
		Status:         string(r.Status),
		ExpectedJobs:   r.ExpectedJobs,
		Framework:      string(r.Framework),
		GithubMetadata: r.CIMetadata,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type reportListResponse struct {
	Reports []reportResponse `json:"reports"`
	Total   int              `json:"total"`
}

// Job DTOs (spec §6 /reports/{id}/jobs).

type initJobRequest struct {
	JobID           string            `json:"job_id"`
	JobName         string            `json:"job_name,omitempty"`
	EnvironmentTags map[string]string `json:"environment_tags,omitempty"`
}

type jobResponse struct {
	JobID                   string            `json:"job_id"`
	ReportID                string            `json:"report_id"`
	Status                  string            `json:"status"`
	HTMLUploadStatus        string            `json:"html_upload_status"`
	ScreenshotsUploadStatus string            `json:"screenshots_upload_status"`
	JSONUploadStatus        string            `json:"json_upload_status"`
	CIJobID                 string            `json:"ci_job_id,omitempty"`
	CIJobName               string            `json:"ci_job_name,omitempty"`
	EnvironmentTags         map[string]string `json:"environment_tags,omitempty"`
	ErrorMessage            string            `json:"error_message,omitempty"`
	IsExisting              bool              `json:"is_existing,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

func newJobResponse(j *store.Job, isExisting bool) jobResponse {
	resp := jobResponse{
		JobID:                   j.ID,
		ReportID:                j.ReportID,
		Status:                  string(j.Status),
		HTMLUploadStatus:        string(j.HTMLUploadStatus),
		ScreenshotsUploadStatus: string(j.ScreenshotsUploadStatus),
		JSONUploadStatus:        string(j.JSONUploadStatus),
		EnvironmentTags:         j.EnvironmentTags,
		ErrorMessage:            j.ErrorMessage,
		IsExisting:              isExisting,
		CreatedAt:               j.CreatedAt,
		UpdatedAt:               j.UpdatedAt,
	}

	if j.CIJobIdentity != nil {
		resp.CIJobID = j.CIJobIdentity.JobID
		resp.CIJobName = j.CIJobIdentity.JobName
	}

	return resp
}

type jobListResponse struct {
	Jobs []jobResponse `json:"jobs"`
}

// Upload DTOs (spec §4.7/§6 init/transfer/progress).

type initUploadEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type initUploadRequest struct {
	Files []initUploadEntry `json:"files"`
}

type initUploadRejection struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type initUploadResponse struct {
	JobID    string                `json:"job_id"`
	Accepted []string              `json:"accepted"`
	Rejected []initUploadRejection `json:"rejected,omitempty"`
}

type transferResponse struct {
	JobID                string `json:"job_id"`
	FilesUploadedThisReq int    `json:"files_uploaded_this_request"`
	TotalUploaded        int    `json:"uploaded"`
	TotalExpected        int    `json:"total"`
	AllUploaded          bool   `json:"all_uploaded"`
}

type progressResponse struct {
	JobID       string `json:"job_id"`
	Uploaded    int    `json:"uploaded"`
	Total       int    `json:"total"`
	AllUploaded bool   `json:"all_uploaded"`
}

// Test-results query DTOs (spec §6 /test-suites, /test-cases).

type testSuiteResponse struct {
	SuiteID   string            `json:"suite_id"`
	JobID     string            `json:"job_id"`
	Title     string            `json:"title"`
	FilePath  string            `json:"file_path"`
	Counts    store.SuiteCounts `json:"counts"`
	Duration  string            `json:"duration"`
	StartTime *time.Time        `json:"start_time,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func newTestSuiteResponse(s *store.TestSuite) testSuiteResponse {
	return testSuiteResponse{
		SuiteID:   s.ID,
		JobID:     s.JobID,
		Title:     s.Title,
		FilePath:  s.FilePath,
		Counts:    s.Counts,
		Duration:  s.Duration.String(),
		StartTime: s.StartTime,
		CreatedAt: s.CreatedAt,
	}
}

type testSuiteListResponse struct {
	Suites []testSuiteResponse `json:"suites"`
}

type testCaseResponse struct {
	CaseID       string          `json:"case_id"`
	SuiteID      string          `json:"suite_id"`
	JobID        string          `json:"job_id"`
	Title        string          `json:"title"`
	FullTitle    string          `json:"full_title"`
	Status       string          `json:"status"`
	Duration     string          `json:"duration"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Attachments  json.RawMessage `json:"attachments,omitempty"`
	Sequence     int             `json:"sequence"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newTestCaseResponse(c *store.TestCase) testCaseResponse {
	return testCaseResponse{
		CaseID:       c.ID,
		SuiteID:      c.SuiteID,
		JobID:        c.JobID,
		Title:        c.Title,
		FullTitle:    c.FullTitle,
		Status:       string(c.Status),
		Duration:     c.Duration.String(),
		RetryCount:   c.RetryCount,
		ErrorMessage: c.ErrorMessage,
		Attachments:  c.Attachments,
		Sequence:     c.Sequence,
		CreatedAt:    c.CreatedAt,
	}
}

type testCaseListResponse struct {
	Cases []testCaseResponse `json:"cases"`
}

// API key admin DTOs (spec §6 /auth/keys).

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type apiKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	KeyPrefix  string     `json:"key_prefix"`
	Key        string     `json:"key,omitempty"` // only populated on creation
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newAPIKeyResponse(k *store.ApiKey, rawKey string) apiKeyResponse {
	return apiKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Role:       string(k.Role),
		KeyPrefix:  k.KeyPrefix,
		Key:        rawKey,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

type apiKeyListResponse struct {
	Keys []apiKeyResponse `json:"keys"`
}

// OIDC policy admin DTOs (spec §6 /auth/oidc-policies).

type createOidcPolicyRequest struct {
	Pattern     string `json:"pattern"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

type updateOidcPolicyRequest struct {
	Pattern     string `json:"pattern"`
	Role        string `json:"role"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

type oidcPolicyResponse struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Role        string `json:"role"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

func newOidcPolicyResponse(p *store.OidcPolicy) oidcPolicyResponse {
	return oidcPolicyResponse{
		ID:          p.ID,
		Pattern:     p.Pattern,
		Role:        string(p.Role),
		Enabled:     p.Enabled,
		Description: p.Description,
	}
}

type oidcPolicyListResponse struct {
	Policies []oidcPolicyResponse `json:"policies"`
}

// OAuth/session DTOs (spec §6 /auth/me).

type meResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role"`
}

func newMeResponse(u *store.User) meResponse {
	return meResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        string(u.Role),
	}
}

// Health DTOs.

type healthResponse struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}
