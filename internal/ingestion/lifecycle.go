package ingestion

import "github.com/tsio/tsio/internal/store"

// NextReportStatus computes the report status transition driven by job
// activity (spec §4.8 "Report status transitions"):
//
//	initializing -> uploading: first job init
//	*            -> failed:    any job failed (sticky, from any state)
//	*            -> complete:  completedJobs == expectedJobs
//
// It returns current unchanged if none of those triggers apply. failed is
// terminal: once current is failed, it is returned unchanged regardless of
// the other triggers (adapted from the teacher's OpenLineage run-cycle
// terminal-state-immutable rule).
func NextReportStatus(current store.ReportStatus, jobCount, completedJobs, expectedJobs int, anyJobFailed bool) store.ReportStatus {
	if current == store.ReportStatusFailed {
		return current
	}

	if anyJobFailed {
		return store.ReportStatusFailed
	}

	if expectedJobs > 0 && completedJobs >= expectedJobs {
		return store.ReportStatusComplete
	}

	if current == store.ReportStatusInitializing && jobCount > 0 {
		return store.ReportStatusUploading
	}

	return current
}

// NextJobStatus computes a job's overall processing status from its three
// upload sub-statuses and extraction outcome (spec §4.8: a job advances to
// complete once "all required sub-statuses are terminal", and to failed on
// any extraction or upload failure).
func NextJobStatus(current store.JobStatus, html, screenshots, json store.UploadSubStatus, extractionFailed bool) store.JobStatus {
	if current == store.JobStatusFailed {
		return current
	}

	if extractionFailed || html == store.UploadSubStatusFailed || html == store.UploadSubStatusTimedOut ||
		screenshots == store.UploadSubStatusFailed || screenshots == store.UploadSubStatusTimedOut ||
		json == store.UploadSubStatusFailed || json == store.UploadSubStatusTimedOut {
		return store.JobStatusFailed
	}

	htmlDone := html == store.UploadSubStatusCompleted || html == store.UploadSubStatusNull
	screenshotsDone := screenshots == store.UploadSubStatusCompleted || screenshots == store.UploadSubStatusNull
	jsonDone := json == store.UploadSubStatusCompleted

	if htmlDone && screenshotsDone && jsonDone {
		return store.JobStatusComplete
	}

	return store.JobStatusProcessing
}
