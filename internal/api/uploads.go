package api

import (
	"errors"
	"net/http"

	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
	"github.com/tsio/tsio/internal/upload"
)

// artifactKindFromPath maps the {kind} route segment to an
// objectstore.ArtifactKind, rejecting anything outside {html, screenshots,
// json} (spec §4.7).
func artifactKindFromPath(raw string) (objectstore.ArtifactKind, bool) {
	switch objectstore.ArtifactKind(raw) {
	case objectstore.KindHTML, objectstore.KindScreenshots, objectstore.KindJSON:
		return objectstore.ArtifactKind(raw), true
	default:
		return "", false
	}
}

// handleUploadInit handles POST
// /api/v1/reports/{report_id}/jobs/{job_id}/{kind}/init (spec §4.7,
// contributor+).
func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleContributor); !ok {
		return
	}

	kind, ok := artifactKindFromPath(r.PathValue("kind"))
	if !ok {
		writeError(w, r, s.logger, invalidInput("kind must be one of html, screenshots, json"))

		return
	}

	reportID := r.PathValue("report_id")
	jobID := r.PathValue("job_id")

	var req initUploadRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeError(w, r, s.logger, apiErr)

		return
	}

	entries := make([]upload.InitEntry, len(req.Files))
	for i, f := range req.Files {
		entries[i] = upload.InitEntry{Path: f.Path, Size: f.Size}
	}

	result, err := s.deps.Uploads.Init(r.Context(), reportID, jobID, kind, entries)
	if err != nil {
		writeError(w, r, s.logger, classifyUploadError(err, jobID))

		return
	}

	resp := initUploadResponse{JobID: result.JobID, Accepted: result.Accepted}
	for _, rej := range result.Rejected {
		resp.Rejected = append(resp.Rejected, initUploadRejection{Path: rej.Path, Reason: rej.Reason})
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

// handleUploadTransfer handles POST
// /api/v1/reports/{report_id}/jobs/{job_id}/{kind} (spec §4.7, contributor+,
// multipart/form-data body).
func (s *Server) handleUploadTransfer(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleContributor); !ok {
		return
	}

	kind, ok := artifactKindFromPath(r.PathValue("kind"))
	if !ok {
		writeError(w, r, s.logger, invalidInput("kind must be one of html, screenshots, json"))

		return
	}

	reportID := r.PathValue("report_id")
	jobID := r.PathValue("job_id")

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, s.logger, invalidInput("request must be multipart/form-data: "+err.Error()))

		return
	}

	result, err := s.deps.Uploads.Transfer(r.Context(), reportID, jobID, kind, reader)
	if err != nil {
		writeError(w, r, s.logger, classifyUploadError(err, jobID))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, transferResponse{
		JobID:                result.JobID,
		FilesUploadedThisReq: result.FilesUploadedThisReq,
		TotalUploaded:        result.TotalUploaded,
		TotalExpected:        result.TotalExpected,
		AllUploaded:          result.AllUploaded,
	})
}

// handleUploadProgress handles GET
// /api/v1/reports/{report_id}/jobs/{job_id}/{kind}/progress. Spec §6 names
// this for html and json only; it's wired for screenshots too since
// Coordinator.Progress is kind-generic, a harmless enrichment.
func (s *Server) handleUploadProgress(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	kind, ok := artifactKindFromPath(r.PathValue("kind"))
	if !ok {
		writeError(w, r, s.logger, invalidInput("kind must be one of html, screenshots, json"))

		return
	}

	reportID := r.PathValue("report_id")
	jobID := r.PathValue("job_id")

	result, err := s.deps.Uploads.Progress(r.Context(), reportID, jobID, kind)
	if err != nil {
		writeError(w, r, s.logger, classifyUploadError(err, jobID))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, progressResponse{
		JobID:       result.JobID,
		Uploaded:    result.Uploaded,
		Total:       result.Total,
		AllUploaded: result.AllUploaded,
	})
}

// classifyUploadError maps upload.Coordinator errors onto the api taxonomy,
// special-casing ErrJobNotOwned (spec §4.7: "Reject if the job does not
// exist or is not owned by the stated report (404)") before falling back to
// the general store-error classifier.
func classifyUploadError(err error, jobID string) *apiError {
	if errors.Is(err, upload.ErrJobNotOwned) {
		return notFound("job", jobID)
	}

	return classifyStoreError(err, "job", jobID)
}
