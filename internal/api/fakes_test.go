package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/tsio/tsio/internal/api/middleware"
	"github.com/tsio/tsio/internal/auth"
	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/store"
)

// fakeReportStore is an in-memory store.ReportStore for handler tests.
// Concrete stores are PostgreSQL-backed and exercised by the store package's
// own tests; these handler tests only need something satisfying the
// interface the handlers actually call.
type fakeReportStore struct {
	reports map[string]*store.Report
	nextErr error
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{reports: make(map[string]*store.Report)}
}

func (f *fakeReportStore) Create(_ context.Context, expectedJobs int, framework store.Framework, ciMetadata json.RawMessage) (*store.Report, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}

	r := &store.Report{
		ID:           store.NewID(),
		ExpectedJobs: expectedJobs,
		Framework:    framework,
		Status:       store.ReportStatusInitializing,
		CIMetadata:   ciMetadata,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.reports[r.ID] = r

	return r, nil
}

func (f *fakeReportStore) Get(_ context.Context, id string) (*store.Report, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}

	r, ok := f.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return r, nil
}

func (f *fakeReportStore) List(_ context.Context, filter store.ReportFilter) ([]*store.Report, int, error) {
	if f.nextErr != nil {
		return nil, 0, f.nextErr
	}

	var ids []string
	for id := range f.reports {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var out []*store.Report
	for _, id := range ids {
		out = append(out, f.reports[id])
	}

	return out, len(out), nil
}

func (f *fakeReportStore) AdvanceStatus(_ context.Context, id string, newStatus store.ReportStatus) error {
	r, ok := f.reports[id]
	if !ok {
		return store.ErrNotFound
	}

	r.Status = newStatus

	return nil
}

// fakeJobStore is an in-memory store.JobStore.
type fakeJobStore struct {
	jobs    map[string]*store.Job
	byJobID map[string]string // reportID|ciJobID -> jobID
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*store.Job), byJobID: make(map[string]string)}
}

func (f *fakeJobStore) GetOrCreate(_ context.Context, reportID string, ci *store.CIJobIdentity, tags map[string]string) (*store.Job, bool, error) {
	key := reportID + "|" + ci.JobID
	if id, ok := f.byJobID[key]; ok {
		return f.jobs[id], false, nil
	}

	j := &store.Job{
		ID:                      store.NewID(),
		ReportID:                reportID,
		Status:                  store.JobStatusPending,
		HTMLUploadStatus:        store.UploadSubStatusNull,
		ScreenshotsUploadStatus: store.UploadSubStatusNull,
		JSONUploadStatus:        store.UploadSubStatusNull,
		CIJobIdentity:           ci,
		EnvironmentTags:         tags,
		CreatedAt:               time.Now().UTC(),
		UpdatedAt:               time.Now().UTC(),
	}
	f.jobs[j.ID] = j
	f.byJobID[key] = j.ID

	return j, true, nil
}

func (f *fakeJobStore) Get(_ context.Context, id string) (*store.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return j, nil
}

func (f *fakeJobStore) ListByReport(_ context.Context, reportID string) ([]*store.Job, error) {
	var ids []string
	for id, j := range f.jobs {
		if j.ReportID == reportID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	var out []*store.Job
	for _, id := range ids {
		out = append(out, f.jobs[id])
	}

	return out, nil
}

func (f *fakeJobStore) SetUploadStatus(_ context.Context, id string, kind store.UploadKind, status store.UploadSubStatus) error {
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}

	switch kind {
	case store.UploadKindHTML:
		j.HTMLUploadStatus = status
	case store.UploadKindScreenshots:
		j.ScreenshotsUploadStatus = status
	case store.UploadKindJSON:
		j.JSONUploadStatus = status
	}

	return nil
}

func (f *fakeJobStore) SetHTMLStorageKeyPrefix(_ context.Context, id, prefix string) error {
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}

	j.HTMLStorageKeyPrefix = prefix

	return nil
}

func (f *fakeJobStore) AdvanceStatus(_ context.Context, id string, status store.JobStatus) error {
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}

	j.Status = status

	return nil
}

func (f *fakeJobStore) Fail(_ context.Context, id, errorMessage string) error {
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}

	j.Status = store.JobStatusFailed
	j.ErrorMessage = errorMessage

	return nil
}

// fakeResultsStore is an in-memory store.ResultsStore.
type fakeResultsStore struct {
	suites map[string]*store.TestSuite
	cases  map[string]*store.TestCase
}

func newFakeResultsStore() *fakeResultsStore {
	return &fakeResultsStore{suites: make(map[string]*store.TestSuite), cases: make(map[string]*store.TestCase)}
}

func (f *fakeResultsStore) CreateSuite(_ context.Context, suite *store.TestSuite) (*store.TestSuite, error) {
	s := *suite
	if s.ID == "" {
		s.ID = store.NewID()
	}

	s.CreatedAt = time.Now().UTC()
	f.suites[s.ID] = &s

	return &s, nil
}

func (f *fakeResultsStore) CreateCase(_ context.Context, tc *store.TestCase) (*store.TestCase, error) {
	c := *tc
	if c.ID == "" {
		c.ID = store.NewID()
	}

	c.CreatedAt = time.Now().UTC()
	f.cases[c.ID] = &c

	return &c, nil
}

func (f *fakeResultsStore) CreateSuiteWithCases(
	ctx context.Context, suite *store.TestSuite, cases []*store.TestCase,
) (*store.TestSuite, []*store.TestCase, error) {
	created, err := f.CreateSuite(ctx, suite)
	if err != nil {
		return nil, nil, err
	}

	createdCases := make([]*store.TestCase, 0, len(cases))

	for _, tc := range cases {
		tc.SuiteID = created.ID

		c, err := f.CreateCase(ctx, tc)
		if err != nil {
			return nil, nil, err
		}

		createdCases = append(createdCases, c)
	}

	return created, createdCases, nil
}

func (f *fakeResultsStore) SuitesByJob(_ context.Context, jobID string) ([]*store.TestSuite, error) {
	var ids []string
	for id, s := range f.suites {
		if s.JobID == jobID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	var out []*store.TestSuite
	for _, id := range ids {
		out = append(out, f.suites[id])
	}

	return out, nil
}

func (f *fakeResultsStore) CasesBySuite(_ context.Context, suiteID string) ([]*store.TestCase, error) {
	var ids []string
	for id, c := range f.cases {
		if c.SuiteID == suiteID {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return f.cases[ids[i]].Sequence < f.cases[ids[j]].Sequence })

	var out []*store.TestCase
	for _, id := range ids {
		out = append(out, f.cases[id])
	}

	return out, nil
}

func (f *fakeResultsStore) CasesByJob(_ context.Context, jobID string) ([]*store.TestCase, error) {
	var ids []string
	for id, c := range f.cases {
		if c.JobID == jobID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	var out []*store.TestCase
	for _, id := range ids {
		out = append(out, f.cases[id])
	}

	return out, nil
}

func (f *fakeResultsStore) CasesByFullTitle(_ context.Context, reportID, fullTitle string) ([]*store.TestCase, error) {
	var out []*store.TestCase
	for _, c := range f.cases {
		if c.FullTitle == fullTitle {
			out = append(out, c)
		}
	}

	return out, nil
}

func (f *fakeResultsStore) GetCase(_ context.Context, id string) (*store.TestCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return c, nil
}

// fakeAPIKeyStore is an in-memory store.ApiKeyStore.
type fakeAPIKeyStore struct {
	keys map[string]*store.ApiKey
}

func newFakeAPIKeyStore() *fakeAPIKeyStore {
	return &fakeAPIKeyStore{keys: make(map[string]*store.ApiKey)}
}

func (f *fakeAPIKeyStore) Create(_ context.Context, name string, role store.Role, expiresAt *time.Time) (string, *store.ApiKey, error) {
	k := &store.ApiKey{
		ID:        store.NewID(),
		KeyHash:   store.HashAPIKeyValue(name),
		KeyPrefix: "tsio_test",
		Name:      name,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	f.keys[k.ID] = k

	return "tsio_rawkey_" + k.ID, k, nil
}

func (f *fakeAPIKeyStore) VerifyAndTouch(_ context.Context, rawKey string) (*store.ApiKey, error) {
	return nil, store.ErrNotFound
}

func (f *fakeAPIKeyStore) Get(_ context.Context, id string) (*store.ApiKey, error) {
	k, ok := f.keys[id]
	if !ok || k.DeletedAt != nil {
		return nil, store.ErrNotFound
	}

	return k, nil
}

func (f *fakeAPIKeyStore) List(_ context.Context) ([]*store.ApiKey, error) {
	var ids []string
	for id := range f.keys {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var out []*store.ApiKey
	for _, id := range ids {
		out = append(out, f.keys[id])
	}

	return out, nil
}

func (f *fakeAPIKeyStore) Revoke(_ context.Context, id string) error {
	k, ok := f.keys[id]
	if !ok {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	k.DeletedAt = &now

	return nil
}

func (f *fakeAPIKeyStore) Restore(_ context.Context, id string) error {
	k, ok := f.keys[id]
	if !ok {
		return store.ErrNotFound
	}

	k.DeletedAt = nil

	return nil
}

// fakePolicyStore is an in-memory store.PolicyStore.
type fakePolicyStore struct {
	policies map[string]*store.OidcPolicy
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: make(map[string]*store.OidcPolicy)}
}

func (f *fakePolicyStore) Create(_ context.Context, pattern string, role store.Role, description string) (*store.OidcPolicy, error) {
	if err := store.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	if role == store.RoleAdmin {
		return nil, store.ErrPolicyRoleForbidden
	}

	p := &store.OidcPolicy{ID: store.NewID(), Pattern: pattern, Role: role, Enabled: true, Description: description}
	f.policies[p.ID] = p

	return p, nil
}

func (f *fakePolicyStore) Get(_ context.Context, id string) (*store.OidcPolicy, error) {
	p, ok := f.policies[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return p, nil
}

func (f *fakePolicyStore) ListEnabled(_ context.Context) ([]*store.OidcPolicy, error) {
	var out []*store.OidcPolicy
	for _, p := range f.policies {
		if p.Enabled {
			out = append(out, p)
		}
	}

	return out, nil
}

func (f *fakePolicyStore) List(_ context.Context) ([]*store.OidcPolicy, error) {
	var ids []string
	for id := range f.policies {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var out []*store.OidcPolicy
	for _, id := range ids {
		out = append(out, f.policies[id])
	}

	return out, nil
}

func (f *fakePolicyStore) Update(_ context.Context, id, pattern string, role store.Role, enabled bool, description string) (*store.OidcPolicy, error) {
	p, ok := f.policies[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if err := store.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	if role == store.RoleAdmin {
		return nil, store.ErrPolicyRoleForbidden
	}

	p.Pattern, p.Role, p.Enabled, p.Description = pattern, role, enabled, description

	return p, nil
}

func (f *fakePolicyStore) Delete(_ context.Context, id string) error {
	if _, ok := f.policies[id]; !ok {
		return store.ErrNotFound
	}

	delete(f.policies, id)

	return nil
}

// newTestServer builds a Server around fakes without going through
// NewServer, which panics on a nil DB; handler tests don't need a real
// connection pool.
func newTestServer() (*Server, *fakeReportStore, *fakeJobStore, *fakeResultsStore) {
	reports := newFakeReportStore()
	jobs := newFakeJobStore()
	results := newFakeResultsStore()

	cfg := &ServerConfig{Features: FeatureConfig{SearchMinLength: 3}}

	s := &Server{
		logger: testLogger(),
		config: cfg,
		deps: Dependencies{
			Bus:      eventbus.New(),
			Reports:  reports,
			Jobs:     jobs,
			Results:  results,
			APIKeys:  newFakeAPIKeyStore(),
			Policies: newFakePolicyStore(),
		},
	}

	return s, reports, jobs, results
}

// testLogger is a discard-output logger for handler tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withCaller returns a shallow copy of req carrying caller in context, the
// way the auth middleware attaches it before a handler runs.
func withCaller(req *http.Request, caller *auth.Caller) *http.Request {
	return req.WithContext(middleware.SetCaller(req.Context(), caller))
}
