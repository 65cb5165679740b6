package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/models"
)

type fakeStore struct {
	company *models.CompanyProfile
	jobs    []models.ResearchJob
	exists  bool
	reports []*models.Report
	audits  []string
}

func (s *fakeStore) GetCompany(ctx context.Context, requestID string) (*models.CompanyProfile, error) {
	if s.company == nil {
		return nil, errors.New("no rows")
	}
	return s.company, nil
}

func (s *fakeStore) ListJobsByRequest(ctx context.Context, requestID string) ([]models.ResearchJob, error) {
	return s.jobs, nil
}

func (s *fakeStore) ReportExists(ctx context.Context, requestID string) (bool, error) {
	return s.exists, nil
}

func (s *fakeStore) InsertReport(ctx context.Context, r *models.Report) error {
	s.reports = append(s.reports, r)
	return nil
}

func (s *fakeStore) InsertAudit(ctx context.Context, e *models.AuditEntry) error {
	s.audits = append(s.audits, e.Action)
	return nil
}

type fakeConsStore struct {
	cf  *models.ConsolidatedFindings
	err error
}

func (s *fakeConsStore) GetConsolidation(ctx context.Context, requestID string) (*models.ConsolidatedFindings, error) {
	return s.cf, s.err
}

type fakeObjects struct {
	uploads map[string][]byte
	err     error
}

func (o *fakeObjects) UploadReport(ctx context.Context, key string, data []byte) error {
	if o.err != nil {
		return o.err
	}
	if o.uploads == nil {
		o.uploads = map[string][]byte{}
	}
	o.uploads[key] = data
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquires int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.acquires++
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	delete(l.held, key)
	return nil
}

type fakeRenderer struct {
	text string
	err  error
}

func (r *fakeRenderer) RenderSection(ctx context.Context, section string, data interface{}) (string, error) {
	return r.text, r.err
}

func completedJobs() []models.ResearchJob {
	jobs := make([]models.ResearchJob, 0, 4)
	for _, jt := range models.CoreJobTypes() {
		jobs = append(jobs, models.ResearchJob{
			ID: "job-" + string(jt), RequestID: "req-1", JobType: jt, Status: models.StatusCompleted,
		})
	}
	return jobs
}

func consolidation() *models.ConsolidatedFindings {
	return &models.ConsolidatedFindings{
		RequestID: "req-1",
		PrimaryEntity: models.EntityAnalysis{
			Name: "Acme Ltd",
			Findings: []models.StructuredFinding{
				{ID: "f1", Title: "SEBI penalty", Category: models.CategoryRegulatory,
					Severity: models.SeverityHigh, Status: models.FindingActive, VerificationLevel: "High"},
			},
		},
		Assessment: models.ComprehensiveRiskAssessment{
			OverallRiskLevel: models.RiskMedium,
			ConfidenceLevel:  "High",
			DataCompleteness: 100,
		},
	}
}

func testAssembler(store *fakeStore, cons *fakeConsStore, objects ObjectStore, locker Locker, render Renderer) *Assembler {
	return NewAssembler(store, cons, objects, locker, render, time.Hour, zap.NewNop())
}

func TestGenerate_NotReadyUntilAllCoreJobsComplete(t *testing.T) {
	jobs := completedJobs()
	jobs[2].Status = models.StatusRunning
	store := &fakeStore{company: &models.CompanyProfile{Name: "Acme Ltd"}, jobs: jobs}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, nil, nil, nil)

	_, err := a.Generate(context.Background(), "req-1")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, store.reports)
}

func TestGenerate_FailedJobBlocksReport(t *testing.T) {
	jobs := completedJobs()
	jobs[0].Status = models.StatusFailed
	store := &fakeStore{company: &models.CompanyProfile{Name: "Acme Ltd"}, jobs: jobs}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, nil, nil, nil)

	_, err := a.Generate(context.Background(), "req-1")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestGenerate_AtMostOnce(t *testing.T) {
	store := &fakeStore{
		company: &models.CompanyProfile{Name: "Acme Ltd"},
		jobs:    completedJobs(),
		exists:  true,
	}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, nil, nil, nil)

	_, err := a.Generate(context.Background(), "req-1")
	assert.ErrorIs(t, err, ErrAlreadyGenerated)
	assert.Empty(t, store.reports)
}

func TestGenerate_LockContention(t *testing.T) {
	store := &fakeStore{company: &models.CompanyProfile{Name: "Acme Ltd"}, jobs: completedJobs()}
	locker := &fakeLocker{held: map[string]bool{"report:req-1": true}}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, nil, locker, nil)

	_, err := a.Generate(context.Background(), "req-1")
	assert.ErrorIs(t, err, ErrAlreadyGenerated)
}

func TestGenerate_BuildsFullReport(t *testing.T) {
	store := &fakeStore{
		company: &models.CompanyProfile{Name: "Acme Ltd", CIN: "L123", Industry: "steel"},
		jobs:    completedJobs(),
	}
	objects := &fakeObjects{}
	locker := &fakeLocker{}
	render := &fakeRenderer{text: "Synthesized prose for the section."}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, objects, locker, render)

	rep, err := a.Generate(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, store.reports, 1)

	assert.Equal(t, "req-1", rep.RequestID)
	assert.Contains(t, rep.Title, "Acme Ltd")
	assert.Equal(t, models.RiskMedium, rep.RiskLevel)
	assert.GreaterOrEqual(t, rep.RiskScore, 0)
	assert.LessOrEqual(t, rep.RiskScore, 100)
	assert.NotEmpty(t, rep.Recommendation)
	assert.True(t, rep.ExpiresAt.After(rep.GeneratedAt))

	for name, text := range map[string]string{
		"executive_summary":     rep.ExecutiveSummary,
		"company_overview":      rep.Sections.CompanyOverview,
		"directors_analysis":    rep.Sections.DirectorsAnalysis,
		"legal_regulatory":      rep.Sections.LegalRegulatory,
		"negative_incidents":    rep.Sections.NegativeIncidents,
		"regulatory_compliance": rep.Sections.RegulatoryCompliance,
		"risk_assessment":       rep.Sections.RiskAssessment,
		"detailed_findings":     rep.Sections.DetailedFindings,
		"recommendations":       rep.Sections.Recommendations,
		"data_quality":          rep.Sections.DataQuality,
		"verification_summary":  rep.Sections.VerificationSummary,
	} {
		assert.NotEmpty(t, text, "section %s must never be empty", name)
	}

	assert.NotEmpty(t, rep.ObjectKey)
	assert.Contains(t, objects.uploads, rep.ObjectKey)
	assert.Contains(t, store.audits, "report_generated")
	assert.Empty(t, locker.held, "lock released after generation")
}

func TestGenerate_RendererFailureFallsBackToTemplates(t *testing.T) {
	store := &fakeStore{company: &models.CompanyProfile{Name: "Acme Ltd"}, jobs: completedJobs()}
	render := &fakeRenderer{err: errors.New("synthesis down")}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, nil, nil, render)

	rep, err := a.Generate(context.Background(), "req-1")
	require.NoError(t, err)

	assert.NotEmpty(t, rep.Sections.CompanyOverview)
	assert.Contains(t, rep.Sections.CompanyOverview, "Acme Ltd")
	assert.NotEmpty(t, rep.Sections.DetailedFindings)
	assert.Contains(t, rep.Sections.DetailedFindings, "SEBI penalty")
	assert.NotEmpty(t, rep.Sections.DirectorsAnalysis)
	assert.NotEmpty(t, rep.Sections.RiskAssessment)
}

func TestGenerate_UploadFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{company: &models.CompanyProfile{Name: "Acme Ltd"}, jobs: completedJobs()}
	objects := &fakeObjects{err: errors.New("minio unreachable")}
	a := testAssembler(store, &fakeConsStore{cf: consolidation()}, objects, nil, &fakeRenderer{text: "prose"})

	rep, err := a.Generate(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Empty(t, rep.ObjectKey)
	require.Len(t, store.reports, 1)
}

func TestGenerate_ConsolidationMissingFails(t *testing.T) {
	store := &fakeStore{company: &models.CompanyProfile{Name: "Acme Ltd"}, jobs: completedJobs()}
	a := testAssembler(store, &fakeConsStore{err: errors.New("not found")}, nil, nil, nil)

	_, err := a.Generate(context.Background(), "req-1")
	require.Error(t, err)
	assert.Empty(t, store.reports)
}

func TestTemplateSection_EmptyCollections(t *testing.T) {
	assert.Contains(t, templateSection("directors analysis", []models.EntityAnalysis{}),
		"No adverse findings")
	assert.Contains(t, templateSection("detailed findings", []models.StructuredFinding{}),
		"No findings were recorded")
}
