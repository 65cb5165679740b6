package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/research"
)

type fakeJobStore struct {
	company       *models.CompanyProfile
	companyErr    error
	markRunning   int
	progress      []int
	iterations    []models.ResearchIteration
	iterationErr  error
	completed     bool
	completeScore int
	completeRec   string
	enqueue       bool
	failed        bool
	failReason    string
	jobs          []models.ResearchJob
	audits        []string
}

func (s *fakeJobStore) GetCompany(ctx context.Context, requestID string) (*models.CompanyProfile, error) {
	if s.companyErr != nil {
		return nil, s.companyErr
	}
	return s.company, nil
}

func (s *fakeJobStore) MarkJobRunning(ctx context.Context, id string) error {
	s.markRunning++
	return nil
}

func (s *fakeJobStore) UpdateJobProgress(ctx context.Context, id string, progress, currentIteration int) error {
	s.progress = append(s.progress, progress)
	return nil
}

func (s *fakeJobStore) CompleteJob(ctx context.Context, id, taskID string, riskScore int, recommendation string) (bool, error) {
	s.completed = true
	s.completeScore = riskScore
	s.completeRec = recommendation
	return s.enqueue, nil
}

func (s *fakeJobStore) FailJob(ctx context.Context, id, reason string) error {
	s.failed = true
	s.failReason = reason
	return nil
}

func (s *fakeJobStore) SaveIteration(ctx context.Context, it *models.ResearchIteration) error {
	s.iterations = append(s.iterations, *it)
	return s.iterationErr
}

func (s *fakeJobStore) ListJobsByRequest(ctx context.Context, requestID string) ([]models.ResearchJob, error) {
	return s.jobs, nil
}

func (s *fakeJobStore) InsertAudit(ctx context.Context, e *models.AuditEntry) error {
	s.audits = append(s.audits, e.Action)
	return nil
}

type fakeDocStore struct {
	docs           []models.IterationDocument
	consolidations []*models.ConsolidatedFindings
	saveErr        error
}

func (s *fakeDocStore) SaveIterationDocument(ctx context.Context, doc *models.IterationDocument) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.docs = append(s.docs, *doc)
	return nil
}

func (s *fakeDocStore) ListDocumentsByJobs(ctx context.Context, jobIDs []string) ([]models.IterationDocument, error) {
	var out []models.IterationDocument
	for _, d := range s.docs {
		for _, id := range jobIDs {
			if d.JobID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (s *fakeDocStore) SaveConsolidation(ctx context.Context, cf *models.ConsolidatedFindings) error {
	s.consolidations = append(s.consolidations, cf)
	return nil
}

type fakeCollector struct {
	content string
	err     error
	calls   int
}

func (c *fakeCollector) Research(ctx context.Context, q research.Query) (*research.Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &research.Result{Content: c.content, TokensUsed: 100, Citations: []string{"https://example.com"}}, nil
}

type fakeExtractor struct {
	candidates []models.CandidateFinding
	err        error
}

func (e *fakeExtractor) ExtractFindings(ctx context.Context, companyName, rawText string) ([]models.CandidateFinding, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.candidates, nil
}

func testJob(maxIterations int) *models.ResearchJob {
	return &models.ResearchJob{
		ID:            "job-1",
		RequestID:     "req-1",
		JobType:       models.JobLegal,
		Status:        models.StatusPending,
		MaxIterations: maxIterations,
	}
}

func testSetup(maxIterations int) (*fakeJobStore, *fakeDocStore, *fakeCollector, *fakeExtractor, *Runner) {
	jobs := &fakeJobStore{
		company: &models.CompanyProfile{RequestID: "req-1", Name: "Acme Ltd"},
		jobs:    []models.ResearchJob{{ID: "job-1", RequestID: "req-1", JobType: models.JobLegal, Status: models.StatusRunning}},
	}
	docs := &fakeDocStore{}
	collector := &fakeCollector{content: "Nothing adverse found for Acme Ltd."}
	extractor := &fakeExtractor{}
	runner := NewRunner(jobs, docs, collector, extractor, 0, zap.NewNop())
	return jobs, docs, collector, extractor, runner
}

func TestRun_CompletesThroughAllIterations(t *testing.T) {
	jobs, docs, collector, extractor, runner := testSetup(3)
	extractor.candidates = []models.CandidateFinding{
		{Title: "Pending suit", Severity: "medium", Status: "pending"},
	}

	err := runner.Run(context.Background(), testJob(3), "")
	require.NoError(t, err)

	assert.Equal(t, 1, jobs.markRunning)
	assert.Equal(t, 3, collector.calls)
	assert.Len(t, jobs.iterations, 3)
	assert.Len(t, docs.docs, 3)
	assert.True(t, jobs.completed)
	assert.False(t, jobs.failed)
	assert.NotEmpty(t, jobs.completeRec)
	assert.Contains(t, jobs.audits, "analysis_completed")
	require.Len(t, docs.consolidations, 1)
	assert.Equal(t, "req-1", docs.consolidations[0].RequestID)

	// Progress is monotone, ends at 100 and follows round(i/max*100).
	require.Equal(t, []int{33, 67, 100}, jobs.progress)
	for i, it := range jobs.iterations {
		assert.Equal(t, i+1, it.Number)
		assert.Equal(t, models.StatusCompleted, it.Status)
	}
}

func TestRun_SingleIterationProgress(t *testing.T) {
	jobs, _, _, _, runner := testSetup(1)
	require.NoError(t, runner.Run(context.Background(), testJob(1), ""))
	assert.Equal(t, []int{100}, jobs.progress)
}

func TestRun_MissingCompanyFailsWithoutStarting(t *testing.T) {
	jobs, _, collector, _, runner := testSetup(2)
	jobs.companyErr = errors.New("no rows")

	err := runner.Run(context.Background(), testJob(2), "")
	assert.ErrorIs(t, err, ErrMissingContext)
	assert.True(t, jobs.failed)
	assert.Contains(t, jobs.failReason, "missing company context")
	assert.Zero(t, jobs.markRunning, "a job without context never starts")
	assert.Zero(t, collector.calls)
	assert.Contains(t, jobs.audits, "job_failed")
}

func TestRun_CollectorErrorFailsJob(t *testing.T) {
	jobs, _, collector, _, runner := testSetup(2)
	collector.err = errors.New("upstream exploded")

	err := runner.Run(context.Background(), testJob(2), "")
	require.Error(t, err)
	assert.True(t, jobs.failed)
	assert.Contains(t, jobs.failReason, "iteration 1")
	assert.False(t, jobs.completed)
}

func TestRun_ExtractionFailureDegradesToAlerts(t *testing.T) {
	jobs, docs, collector, extractor, runner := testSetup(1)
	collector.content = "ED registered a money laundering case against Acme Ltd involving ₹50 crore."
	extractor.err = errors.New("synthesis unavailable")

	err := runner.Run(context.Background(), testJob(1), "")
	require.NoError(t, err, "extraction failure is recoverable")

	assert.True(t, jobs.completed)
	assert.Contains(t, jobs.audits, "extraction_degraded")
	require.Len(t, docs.docs, 1)
	assert.Empty(t, docs.docs[0].Findings)
	assert.NotEmpty(t, docs.docs[0].Alerts, "pattern alerts still recorded")
	assert.Greater(t, docs.docs[0].AlertScore, 0)
	assert.NotEmpty(t, docs.docs[0].Ruleset)
	assert.Equal(t, models.RecommendDecline, jobs.completeRec, "critical alert drives decline")
}

func TestRun_IterationPersistenceErrorFailsJob(t *testing.T) {
	jobs, _, _, _, runner := testSetup(2)
	jobs.iterationErr = errors.New("db down")

	err := runner.Run(context.Background(), testJob(2), "")
	require.Error(t, err)
	assert.True(t, jobs.failed)
	// The failed write is retried once with the failed status recorded.
	require.GreaterOrEqual(t, len(jobs.iterations), 2)
	assert.Equal(t, models.StatusFailed, jobs.iterations[1].Status)
}

func TestRun_DocumentSaveErrorFailsJob(t *testing.T) {
	jobs, docs, _, _, runner := testSetup(2)
	docs.saveErr = errors.New("mongo down")

	err := runner.Run(context.Background(), testJob(2), "")
	require.Error(t, err)
	assert.True(t, jobs.failed)
	assert.False(t, jobs.completed)
}

func TestRun_FindingsInheritJobTypeSource(t *testing.T) {
	_, docs, _, extractor, runner := testSetup(1)
	extractor.candidates = []models.CandidateFinding{
		{Title: "Unsourced", Severity: "low"},
		{Title: "Sourced", Severity: "low", Source: "nclt.gov.in"},
	}

	require.NoError(t, runner.Run(context.Background(), testJob(1), ""))
	require.Len(t, docs.docs, 1)
	require.Len(t, docs.docs[0].Findings, 2)
	assert.Equal(t, string(models.JobLegal), docs.docs[0].Findings[0].Source)
	assert.Equal(t, "nclt.gov.in", docs.docs[0].Findings[1].Source)
}

func TestRun_ReportTaskEnqueueSignal(t *testing.T) {
	jobs, _, _, _, runner := testSetup(1)
	jobs.enqueue = true
	require.NoError(t, runner.Run(context.Background(), testJob(1), ""))
	assert.True(t, jobs.completed)
}
