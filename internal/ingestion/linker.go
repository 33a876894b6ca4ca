package ingestion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tsio/tsio/internal/store"
)

// LinkScreenshots implements the screenshot->case linker (spec §4.8): for
// every screenshot in jobID with a null test_case_id, it finds a case in the
// same job whose full_title equals, is a prefix of, or is a normalized form
// of the screenshot's test_name, and links it. Best-effort: a lookup or
// update failure is logged, not returned, so a linking problem never fails
// the upload/extraction request that triggered it.
func LinkScreenshots(
	ctx context.Context,
	screenshots store.ScreenshotFileStore,
	results store.ResultsStore,
	jobID string,
	logger *slog.Logger,
) {
	unlinked, err := screenshots.ListUnlinkedByJob(ctx, jobID)
	if err != nil {
		logger.Warn("screenshot linker: failed to list unlinked screenshots",
			slog.String("job_id", jobID), slog.String("error", err.Error()))

		return
	}

	if len(unlinked) == 0 {
		return
	}

	cases, err := results.CasesByJob(ctx, jobID)
	if err != nil {
		logger.Warn("screenshot linker: failed to list cases",
			slog.String("job_id", jobID), slog.String("error", err.Error()))

		return
	}

	for _, screenshot := range unlinked {
		match, ok := matchCase(screenshot.TestName, cases)
		if !ok {
			continue
		}

		if err := screenshots.LinkTestCase(ctx, screenshot.ID, match.ID); err != nil {
			logger.Warn("screenshot linker: failed to link",
				slog.String("screenshot_id", screenshot.ID), slog.String("case_id", match.ID),
				slog.String("error", err.Error()))
		}
	}
}

// matchCase finds the first case whose full_title equals, is a prefix of, or
// is a normalized form of testName (normalization: replace "/" with " > ",
// spec §4.8).
func matchCase(testName string, cases []*store.TestCase) (*store.TestCase, bool) {
	normalized := strings.ReplaceAll(testName, "/", " > ")

	for _, c := range cases {
		if c.FullTitle == testName || c.FullTitle == normalized {
			return c, true
		}
	}

	for _, c := range cases {
		if strings.HasPrefix(c.FullTitle, testName) || strings.HasPrefix(c.FullTitle, normalized) {
			return c, true
		}
	}

	return nil, false
}
