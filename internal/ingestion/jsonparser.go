package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GenericJSONParser implements Parser against a framework-neutral envelope:
//
//	{"suites": [{"title": "...", "file_path": "...", "duration_ms": 0,
//	  "cases": [{"title": "...", "full_title": "...", "status": "passed",
//	  "duration_ms": 0, "retry_count": 0, "error_message": "", "attachments": {}}]}]}
//
// Framework-specific parsers (Playwright/Cypress/Detox) are external
// collaborators the orchestrator only depends on through the Parser
// interface (spec §1); this is the one concrete implementation shipped
// in-tree, for callers whose CI step already normalizes its framework's
// native report into this shape before uploading.
type GenericJSONParser struct{}

// NewGenericJSONParser returns a ready GenericJSONParser.
func NewGenericJSONParser() *GenericJSONParser {
	return &GenericJSONParser{}
}

type jsonEnvelope struct {
	Suites []jsonSuite `json:"suites"`
}

type jsonSuite struct {
	Title      string     `json:"title"`
	FilePath   string     `json:"file_path"`
	DurationMs int64      `json:"duration_ms"`
	StartTime  *time.Time `json:"start_time"`
	Cases      []jsonCase `json:"cases"`
}

type jsonCase struct {
	Title        string          `json:"title"`
	FullTitle    string          `json:"full_title"`
	Status       string          `json:"status"`
	DurationMs   int64           `json:"duration_ms"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage string          `json:"error_message"`
	Attachments  json.RawMessage `json:"attachments"`
}

// Parse decodes the envelope and tallies each suite's SuiteCounts from its
// cases' statuses (spec §4.8: "the orchestrator... derives counts").
func (p *GenericJSONParser) Parse(_ context.Context, _ string, reader ObjectReader) (*ParseResult, error) {
	data, _, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read json file: %w", err)
	}

	var envelope jsonEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode json results: %w", err)
	}

	suites := make([]ParsedSuite, 0, len(envelope.Suites))

	var maxDuration time.Duration

	var earliestStart *time.Time

	for _, s := range envelope.Suites {
		suite := ParsedSuite{
			Title:     s.Title,
			FilePath:  s.FilePath,
			StartTime: s.StartTime,
			Cases:     make([]ParsedCase, 0, len(s.Cases)),
		}

		if s.DurationMs > 0 {
			d := time.Duration(s.DurationMs) * time.Millisecond
			suite.Duration = &d

			if d > maxDuration {
				maxDuration = d
			}
		}

		if s.StartTime != nil && (earliestStart == nil || s.StartTime.Before(*earliestStart)) {
			earliestStart = s.StartTime
		}

		for i, c := range s.Cases {
			status := CaseStatus(c.Status)

			switch status {
			case CaseStatusPassed:
				suite.Counts.Passed++
			case CaseStatusFailed, CaseStatusTimedOut:
				suite.Counts.Failed++
			case CaseStatusSkipped:
				suite.Counts.Skipped++
			case CaseStatusFlaky:
				suite.Counts.Flaky++
			}

			suite.Counts.Total++

			var duration *time.Duration
			if c.DurationMs > 0 {
				d := time.Duration(c.DurationMs) * time.Millisecond
				duration = &d
			}

			suite.Cases = append(suite.Cases, ParsedCase{
				Title:        c.Title,
				FullTitle:    c.FullTitle,
				Status:       status,
				Duration:     duration,
				RetryCount:   c.RetryCount,
				ErrorMessage: c.ErrorMessage,
				Attachments:  c.Attachments,
				Sequence:     i,
			})
		}

		suites = append(suites, suite)
	}

	result := &ParseResult{Suites: suites, StartTime: earliestStart}
	if maxDuration > 0 {
		result.Duration = &maxDuration
	}

	return result, nil
}
