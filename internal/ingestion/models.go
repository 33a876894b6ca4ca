// Package ingestion implements the Ingestion Orchestrator (spec §4.8): the
// component triggered when a job's JSON upload completes, invoking the
// framework parser contract and linking screenshots to the cases it
// produces.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// ParsedSuite is one TestSuite the parser contract emits for a job
	// (spec §4.8, §3 TestSuite).
	ParsedSuite struct {
		Title     string
		FilePath  string
		Counts    SuiteCounts
		Duration  *time.Duration
		StartTime *time.Time
		Cases     []ParsedCase
	}

	// SuiteCounts are the aggregated case counts a parser reports for a suite.
	SuiteCounts struct {
		Total   int
		Passed  int
		Failed  int
		Skipped int
		Flaky   int
	}

	// ParsedCase is one TestCase the parser contract emits within a suite
	// (spec §4.8, §3 TestCase). Sequence is the case's order within its
	// suite, assigned by the parser.
	ParsedCase struct {
		Title       string
		FullTitle   string
		Status      CaseStatus
		Duration    *time.Duration
		RetryCount  int
		ErrorMessage string
		Attachments []byte
		Sequence    int
	}

	// CaseStatus mirrors store.CaseStatus; kept as its own type so the parser
	// contract has no dependency on the persistence layer.
	CaseStatus string

	// ParseResult is what a successful parser run returns for one JSON file
	// (spec §4.8: "Emit zero or more TestSuite rows... zero or more TestCase
	// rows... May update the job's duration_ms and start_time").
	ParseResult struct {
		Suites    []ParsedSuite
		Duration  *time.Duration
		StartTime *time.Time
	}

	// Parser is the external collaborator contract (spec §1 "framework-
	// specific JSON parsers (Playwright/Cypress/Detox) — the core only
	// defines the contract against which parsers run"). Implementations are
	// out of scope for this component; the orchestrator only calls this
	// interface and handles its result/error.
	Parser interface {
		Parse(ctx context.Context, jobID string, objectReader ObjectReader) (*ParseResult, error)
	}

	// ObjectReader is the minimal view of object-store content a Parser
	// needs: the raw bytes of one JSON file plus its content type.
	ObjectReader interface {
		Read() ([]byte, string, error)
	}
)

const (
	CaseStatusPassed   CaseStatus = "passed"
	CaseStatusFailed   CaseStatus = "failed"
	CaseStatusSkipped  CaseStatus = "skipped"
	CaseStatusFlaky    CaseStatus = "flaky"
	CaseStatusTimedOut CaseStatus = "timedOut"
)

// IsValid reports whether s is a known CaseStatus.
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusPassed, CaseStatusFailed, CaseStatusSkipped, CaseStatusFlaky, CaseStatusTimedOut:
		return true
	default:
		return false
	}
}

var (
	// ErrSuiteTitleEmpty indicates a parser emitted a suite with no title.
	ErrSuiteTitleEmpty = errors.New("suite title cannot be empty")

	// ErrCaseFullTitleEmpty indicates a parser emitted a case with no full_title;
	// full_title is the column retries are grouped on (spec §3), so it cannot
	// be blank.
	ErrCaseFullTitleEmpty = errors.New("case full_title cannot be empty")

	// ErrCaseStatusInvalid indicates a parser emitted a case with an unknown status.
	ErrCaseStatusInvalid = errors.New("case status is not a recognized value")

	// ErrRetryCountNegative indicates a parser emitted a negative retry count.
	ErrRetryCountNegative = errors.New("case retry_count cannot be negative")
)

// Validate checks a ParsedSuite and its cases against the domain invariants
// spec §3 places on TestSuite/TestCase, before anything is written to the
// relational store.
func (s *ParsedSuite) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrSuiteTitleEmpty
	}

	for i := range s.Cases {
		if err := s.Cases[i].Validate(); err != nil {
			return fmt.Errorf("case %d: %w", i, err)
		}
	}

	return nil
}

// Validate checks one ParsedCase against spec §3's TestCase invariants.
func (c *ParsedCase) Validate() error {
	if strings.TrimSpace(c.FullTitle) == "" {
		return ErrCaseFullTitleEmpty
	}

	if !c.Status.IsValid() {
		return fmt.Errorf("%w: got %q", ErrCaseStatusInvalid, c.Status)
	}

	if c.RetryCount < 0 {
		return fmt.Errorf("%w: got %d", ErrRetryCountNegative, c.RetryCount)
	}

	return nil
}
