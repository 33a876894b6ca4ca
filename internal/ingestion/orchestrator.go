package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
)

// Orchestrator drives spec §4.8: run the parser against every uploaded JSON
// file for a job, persist the suites/cases it emits, advance the job and
// report status machines, and link screenshots to the cases just created.
type Orchestrator struct {
	parser      Parser
	validator   *Validator
	jobs        store.JobStore
	reports     store.ReportStore
	results     store.ResultsStore
	jsonFiles   store.JSONFileStore
	screenshots store.ScreenshotFileStore
	objects     objectstore.Store
	bus         *eventbus.Bus
	logger      *slog.Logger
}

// NewOrchestrator returns an Orchestrator ready to be wired as the upload
// Coordinator's onJSON hook.
func NewOrchestrator(
	parser Parser,
	jobs store.JobStore,
	reports store.ReportStore,
	results store.ResultsStore,
	jsonFiles store.JSONFileStore,
	screenshots store.ScreenshotFileStore,
	objects objectstore.Store,
	bus *eventbus.Bus,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		parser:      parser,
		validator:   NewValidator(),
		jobs:        jobs,
		reports:     reports,
		results:     results,
		jsonFiles:   jsonFiles,
		screenshots: screenshots,
		objects:     objects,
		bus:         bus,
		logger:      logger,
	}
}

// RunForJob runs the parser against every uploaded JSON file belonging to
// jobID (spec §4.8: triggered when json_upload_status becomes completed),
// persists suites and cases, links screenshots, and advances job/report
// status. It never returns an error to its caller: failures are recorded
// against the job itself, matching how the upload Coordinator invokes this
// as a fire-and-forget hook after responding to the client.
func (o *Orchestrator) RunForJob(ctx context.Context, jobID string) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		o.logger.Error("ingestion: failed to load job", slog.String("job_id", jobID), slog.String("error", err.Error()))

		return
	}

	files, err := o.jsonFiles.ListByJob(ctx, jobID)
	if err != nil {
		o.logger.Error("ingestion: failed to list json files", slog.String("job_id", jobID), slog.String("error", err.Error()))

		return
	}

	var extractionErr error

	for _, f := range files {
		if f.Status != store.FileStatusUploaded {
			continue
		}

		if err := o.extractOne(ctx, jobID, f.Filename, f.StorageKey); err != nil {
			extractionErr = err

			o.logger.Error("ingestion: extraction failed",
				slog.String("job_id", jobID), slog.String("file", f.Filename), slog.String("error", err.Error()))

			if markErr := o.jsonFiles.MarkExtracted(ctx, jobID, f.Filename, err.Error()); markErr != nil {
				o.logger.Error("ingestion: failed to record extraction error",
					slog.String("job_id", jobID), slog.String("file", f.Filename), slog.String("error", markErr.Error()))
			}

			continue
		}

		if err := o.jsonFiles.MarkExtracted(ctx, jobID, f.Filename, ""); err != nil {
			o.logger.Error("ingestion: failed to mark extracted",
				slog.String("job_id", jobID), slog.String("file", f.Filename), slog.String("error", err.Error()))
		}
	}

	LinkScreenshots(ctx, o.screenshots, o.results, jobID, o.logger)

	o.advanceJob(ctx, job, extractionErr != nil)
}

// extractOne runs the parser against one JSON file and persists the suites
// and cases it emits.
func (o *Orchestrator) extractOne(ctx context.Context, jobID, filename, storageKey string) error {
	reader := newObjectReader(ctx, o.objects, storageKey)

	result, err := o.parser.Parse(ctx, jobID, reader)
	if err != nil {
		return fmt.Errorf("parse %q: %w", filename, err)
	}

	if err := o.validator.ValidateResult(result); err != nil {
		return fmt.Errorf("validate %q: %w", filename, err)
	}

	for i := range result.Suites {
		if err := o.persistSuite(ctx, jobID, &result.Suites[i]); err != nil {
			return fmt.Errorf("persist suite from %q: %w", filename, err)
		}
	}

	return nil
}

// persistSuite inserts one parsed suite and all of its cases in a single
// transaction (spec §4.8): a parser crash or insert failure partway through
// a suite must not leave orphaned rows behind.
func (o *Orchestrator) persistSuite(ctx context.Context, jobID string, parsed *ParsedSuite) error {
	suite := &store.TestSuite{
		JobID:     jobID,
		Title:     parsed.Title,
		FilePath:  parsed.FilePath,
		Counts:    store.SuiteCounts(parsed.Counts),
		StartTime: parsed.StartTime,
	}

	if parsed.Duration != nil {
		suite.Duration = *parsed.Duration
	}

	cases := make([]*store.TestCase, 0, len(parsed.Cases))

	for i := range parsed.Cases {
		c := &parsed.Cases[i]

		tc := &store.TestCase{
			JobID:        jobID,
			Title:        c.Title,
			FullTitle:    c.FullTitle,
			Status:       store.CaseStatus(c.Status),
			RetryCount:   c.RetryCount,
			ErrorMessage: c.ErrorMessage,
			Attachments:  json.RawMessage(c.Attachments),
			Sequence:     c.Sequence,
		}

		if c.Duration != nil {
			tc.Duration = *c.Duration
		}

		cases = append(cases, tc)
	}

	created, _, err := o.results.CreateSuiteWithCases(ctx, suite, cases)
	if err != nil {
		return fmt.Errorf("create suite %q: %w", parsed.Title, err)
	}

	o.bus.Send(eventbus.Event{
		Type:    eventbus.EventSuitesAvailable,
		Payload: map[string]string{"job_id": jobID, "suite_id": created.ID},
	})

	return nil
}

// advanceJob recomputes the job's overall status from its upload
// sub-statuses and extraction outcome, then recomputes the owning report's
// status from its job counts (spec §4.8).
func (o *Orchestrator) advanceJob(ctx context.Context, job *store.Job, extractionFailed bool) {
	next := NextJobStatus(job.Status, job.HTMLUploadStatus, job.ScreenshotsUploadStatus, job.JSONUploadStatus, extractionFailed)

	switch {
	case next == store.JobStatusFailed && extractionFailed:
		if err := o.jobs.Fail(ctx, job.ID, "json extraction failed"); err != nil {
			o.logger.Error("ingestion: failed to mark job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	case next != job.Status:
		if err := o.jobs.AdvanceStatus(ctx, job.ID, next); err != nil {
			o.logger.Error("ingestion: failed to advance job status", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}

	o.advanceReport(ctx, job.ReportID)

	o.bus.Send(eventbus.Event{
		Type:    eventbus.EventJobUpdated,
		Payload: map[string]string{"job_id": job.ID, "status": string(next)},
	})
}

func (o *Orchestrator) advanceReport(ctx context.Context, reportID string) {
	report, err := o.reports.Get(ctx, reportID)
	if err != nil {
		o.logger.Error("ingestion: failed to load report", slog.String("report_id", reportID), slog.String("error", err.Error()))

		return
	}

	jobs, err := o.jobs.ListByReport(ctx, reportID)
	if err != nil {
		o.logger.Error("ingestion: failed to list jobs for report", slog.String("report_id", reportID), slog.String("error", err.Error()))

		return
	}

	completed, anyFailed := 0, false

	for _, j := range jobs {
		switch j.Status {
		case store.JobStatusComplete:
			completed++
		case store.JobStatusFailed:
			anyFailed = true
		}
	}

	next := NextReportStatus(report.Status, len(jobs), completed, report.ExpectedJobs, anyFailed)
	if next == report.Status {
		return
	}

	if err := o.reports.AdvanceStatus(ctx, reportID, next); err != nil {
		o.logger.Error("ingestion: failed to advance report status", slog.String("report_id", reportID), slog.String("error", err.Error()))

		return
	}

	o.bus.Send(eventbus.Event{
		Type:    eventbus.EventReportUpdated,
		Payload: map[string]string{"report_id": reportID, "status": string(next)},
	})
}
