package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/alert"
	"github.com/credrisk/diligence-engine/internal/consolidate"
	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/normalize"
	"github.com/credrisk/diligence-engine/internal/research"
	"github.com/credrisk/diligence-engine/internal/risk"
)

// ErrMissingContext is the one non-recoverable job-level condition: no
// company data exists for the request, so there is nothing to research.
var ErrMissingContext = errors.New("missing company context for request")

// JobStore is the relational persistence the runner needs.
type JobStore interface {
	GetCompany(ctx context.Context, requestID string) (*models.CompanyProfile, error)
	MarkJobRunning(ctx context.Context, id string) error
	UpdateJobProgress(ctx context.Context, id string, progress, currentIteration int) error
	CompleteJob(ctx context.Context, id, taskID string, riskScore int, recommendation string) (bool, error)
	FailJob(ctx context.Context, id, reason string) error
	SaveIteration(ctx context.Context, it *models.ResearchIteration) error
	ListJobsByRequest(ctx context.Context, requestID string) ([]models.ResearchJob, error)
	InsertAudit(ctx context.Context, e *models.AuditEntry) error
}

// DocStore is the document persistence the runner needs.
type DocStore interface {
	SaveIterationDocument(ctx context.Context, doc *models.IterationDocument) error
	ListDocumentsByJobs(ctx context.Context, jobIDs []string) ([]models.IterationDocument, error)
	SaveConsolidation(ctx context.Context, cf *models.ConsolidatedFindings) error
}

// Collector produces raw research output for a query.
type Collector interface {
	Research(ctx context.Context, q research.Query) (*research.Result, error)
}

// Extractor pulls candidate findings out of raw research text.
type Extractor interface {
	ExtractFindings(ctx context.Context, companyName, rawText string) ([]models.CandidateFinding, error)
}

// Runner drives one research job through its iterations sequentially,
// persisting each iteration's results before starting the next.
type Runner struct {
	jobs      JobStore
	docs      DocStore
	collector Collector
	extractor Extractor
	delay     time.Duration
	log       *zap.Logger
}

func NewRunner(jobs JobStore, docs DocStore, collector Collector, extractor Extractor, delay time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		jobs:      jobs,
		docs:      docs,
		collector: collector,
		extractor: extractor,
		delay:     delay,
		log:       log,
	}
}

// Run executes the job to a terminal state. The job's status always ends at
// completed or failed: every early return path records the failure first.
// Failure is not retried here; callers create a new job to retry.
func (r *Runner) Run(ctx context.Context, job *models.ResearchJob, scope string) error {
	log := r.log.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.String("request_id", job.RequestID),
	)

	company, err := r.jobs.GetCompany(ctx, job.RequestID)
	if err != nil || company.Name == "" {
		reason := fmt.Sprintf("%v: request %s", ErrMissingContext, job.RequestID)
		r.fail(ctx, job, reason, log)
		return ErrMissingContext
	}
	log = log.With(zap.String("company", company.Name))

	if err := r.jobs.MarkJobRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	log.Info("job started", zap.Int("max_iterations", job.MaxIterations))

	var allFindings []models.StructuredFinding
	var allAlerts []models.CriticalAlert

	for i := 1; i <= job.MaxIterations; i++ {
		findings, alerts, err := r.runIteration(ctx, job, company, i, scope, log)
		if err != nil {
			r.fail(ctx, job, fmt.Sprintf("iteration %d: %v", i, err), log)
			return err
		}
		allFindings = append(allFindings, findings...)
		allAlerts = append(allAlerts, alerts...)

		progress := int(math.Round(float64(i) / float64(job.MaxIterations) * 100))
		if err := r.jobs.UpdateJobProgress(ctx, job.ID, progress, i); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}

		// Courtesy delay toward the research service; skipped after the last
		// iteration. Not part of correctness.
		if i < job.MaxIterations && r.delay > 0 {
			select {
			case <-ctx.Done():
				r.fail(ctx, job, ctx.Err().Error(), log)
				return ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}

	if err := r.consolidate(ctx, job, company); err != nil {
		// Consolidation failure is unrecoverable for the job: completion
		// requires the consolidated view.
		r.fail(ctx, job, fmt.Sprintf("consolidation: %v", err), log)
		return err
	}

	score := risk.Score(allFindings, allAlerts)
	recommendation := risk.Recommend(score, allFindings, allAlerts)

	taskID := uuid.NewString()
	enqueued, err := r.jobs.CompleteJob(ctx, job.ID, taskID, score, recommendation)
	if err != nil {
		r.fail(ctx, job, fmt.Sprintf("completion write: %v", err), log)
		return err
	}

	r.audit(ctx, "analysis_completed", map[string]interface{}{
		"job_id": job.ID, "job_type": job.JobType, "request_id": job.RequestID,
		"company": company.Name, "risk_score": score, "recommendation": recommendation,
		"findings": len(allFindings), "alerts": len(allAlerts),
	})
	if enqueued {
		log.Info("all core jobs complete, report generation scheduled",
			zap.String("task_id", taskID))
	}
	log.Info("job completed", zap.Int("risk_score", score), zap.String("recommendation", recommendation))
	return nil
}

func (r *Runner) runIteration(ctx context.Context, job *models.ResearchJob, company *models.CompanyProfile, number int, scope string, log *zap.Logger) ([]models.StructuredFinding, []models.CriticalAlert, error) {
	focus := research.IterationFocus(number)
	log.Info("iteration started", zap.Int("iteration", number), zap.String("focus", focus))

	q := research.BuildQuery(company, job.JobType, number, job.MaxIterations, scope)
	res, err := r.collector.Research(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	detection := alert.Detect(res.Content)

	cands, err := r.extractor.ExtractFindings(ctx, company.Name, res.Content)
	if err != nil {
		// Extraction failure degrades to pattern-matched alerts only; the
		// audit trail keeps enough context to reproduce.
		log.Warn("finding extraction failed, continuing with alerts only",
			zap.Int("iteration", number), zap.Error(err))
		r.audit(ctx, "extraction_degraded", map[string]interface{}{
			"job_id": job.ID, "job_type": job.JobType, "iteration": number,
			"company": company.Name, "error": err.Error(),
		})
		cands = nil
	}
	findings := normalize.Findings(cands)
	for i := range findings {
		if findings[i].Source == "" {
			findings[i].Source = string(job.JobType)
		}
	}

	doc := &models.IterationDocument{
		JobID:      job.ID,
		RequestID:  job.RequestID,
		JobType:    job.JobType,
		Number:     number,
		RawContent: res.Content,
		Findings:   findings,
		Alerts:     detection.Alerts,
		AlertScore: detection.AuxiliaryScore,
		Ruleset:    detection.RulesetVersion,
		Citations:  res.Citations,
	}
	if err := r.docs.SaveIterationDocument(ctx, doc); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	it := &models.ResearchIteration{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		Number:      number,
		Focus:       focus,
		Status:      models.StatusCompleted,
		Confidence:  iterationConfidence(res, findings),
		DataQuality: dataQuality(res, findings),
		TokensUsed:  res.TokensUsed,
		CompletedAt: &now,
	}
	if err := r.jobs.SaveIteration(ctx, it); err != nil {
		// Mark the iteration failed before propagating, so the stored state
		// reflects what happened.
		it.Status = models.StatusFailed
		_ = r.jobs.SaveIteration(ctx, it)
		return nil, nil, err
	}

	log.Info("iteration completed", zap.Int("iteration", number),
		zap.Int("findings", len(findings)), zap.Int("alerts", len(detection.Alerts)),
		zap.Int("tokens", res.TokensUsed), zap.Bool("degraded", res.Degraded))
	return findings, detection.Alerts, nil
}

// consolidate rebuilds the request-level view from every completed job plus
// the current one.
func (r *Runner) consolidate(ctx context.Context, job *models.ResearchJob, company *models.CompanyProfile) error {
	jobs, err := r.jobs.ListJobsByRequest(ctx, job.RequestID)
	if err != nil {
		return err
	}

	jobType := make(map[string]models.JobType)
	var ids []string
	for _, j := range jobs {
		if j.Status == models.StatusCompleted || j.ID == job.ID {
			ids = append(ids, j.ID)
			jobType[j.ID] = j.JobType
		}
	}

	docs, err := r.docs.ListDocumentsByJobs(ctx, ids)
	if err != nil {
		return err
	}

	byJob := make(map[string][]models.StructuredFinding)
	var order []string
	for _, d := range docs {
		if _, ok := byJob[d.JobID]; !ok {
			order = append(order, d.JobID)
		}
		byJob[d.JobID] = append(byJob[d.JobID], d.Findings...)
	}

	in := consolidate.Input{
		RequestID:   job.RequestID,
		CompanyName: company.Name,
		Directors:   company.Directors,
	}
	for _, id := range order {
		in.Jobs = append(in.Jobs, consolidate.JobFindings{
			JobType:  jobType[id],
			Findings: byJob[id],
		})
	}

	cf := consolidate.Consolidate(in)
	return r.docs.SaveConsolidation(ctx, cf)
}

func (r *Runner) fail(ctx context.Context, job *models.ResearchJob, reason string, log *zap.Logger) {
	if err := r.jobs.FailJob(ctx, job.ID, reason); err != nil {
		log.Error("failed to record job failure", zap.Error(err))
	}
	r.audit(ctx, "job_failed", map[string]interface{}{
		"job_id": job.ID, "job_type": job.JobType, "request_id": job.RequestID,
		"iteration": job.CurrentIteration, "reason": reason,
	})
	log.Error("job failed", zap.String("reason", reason))
}

func (r *Runner) audit(ctx context.Context, action string, details map[string]interface{}) {
	entry := &models.AuditEntry{Action: action, Details: details, Timestamp: time.Now()}
	if err := r.jobs.InsertAudit(ctx, entry); err != nil {
		r.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// iterationConfidence prefers the collaborator's own confidence signal and
// otherwise derives one from what the pass produced.
func iterationConfidence(res *research.Result, findings []models.StructuredFinding) float64 {
	if res.Confidence != nil {
		return *res.Confidence
	}
	conf := 0.5
	if len(findings) > 0 {
		conf += 0.2
	}
	if len(res.Citations) > 2 {
		conf += 0.2
	} else if len(res.Citations) > 0 {
		conf += 0.1
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func dataQuality(res *research.Result, findings []models.StructuredFinding) float64 {
	if res.Degraded {
		return 0.2
	}
	q := 0.4
	if len(res.Citations) > 0 {
		q += 0.3
	}
	dated := 0
	for _, f := range findings {
		if f.Date != "" {
			dated++
		}
	}
	if len(findings) > 0 && dated*2 >= len(findings) {
		q += 0.3
	}
	if q > 1 {
		q = 1
	}
	return q
}
