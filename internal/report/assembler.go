package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/risk"
)

// ErrNotReady means at least one core job type has not completed yet.
var ErrNotReady = errors.New("not all core research jobs are completed")

// ErrAlreadyGenerated means a report exists for the request; generation is
// at-most-once per request outside explicit regeneration.
var ErrAlreadyGenerated = errors.New("report already generated for request")

// Store is the relational persistence the assembler needs.
type Store interface {
	GetCompany(ctx context.Context, requestID string) (*models.CompanyProfile, error)
	ListJobsByRequest(ctx context.Context, requestID string) ([]models.ResearchJob, error)
	ReportExists(ctx context.Context, requestID string) (bool, error)
	InsertReport(ctx context.Context, r *models.Report) error
	InsertAudit(ctx context.Context, e *models.AuditEntry) error
}

// ConsolidationStore loads the consolidated view built at job completion.
type ConsolidationStore interface {
	GetConsolidation(ctx context.Context, requestID string) (*models.ConsolidatedFindings, error)
}

// ObjectStore persists the rendered report document. May be nil.
type ObjectStore interface {
	UploadReport(ctx context.Context, key string, data []byte) error
}

// Locker guards against racing workers rendering the same request twice.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Renderer produces prose for one report section. Failures fall back to the
// deterministic templates below.
type Renderer interface {
	RenderSection(ctx context.Context, section string, data interface{}) (string, error)
}

// Assembler turns a request's consolidated findings into the final report.
type Assembler struct {
	store   Store
	cons    ConsolidationStore
	objects ObjectStore
	locker  Locker
	render  Renderer
	ttl     time.Duration
	log     *zap.Logger
}

func NewAssembler(store Store, cons ConsolidationStore, objects ObjectStore, locker Locker, render Renderer, ttl time.Duration, log *zap.Logger) *Assembler {
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Assembler{store: store, cons: cons, objects: objects, locker: locker, render: render, ttl: ttl, log: log}
}

// Generate builds and persists the report for a request. It refuses to run
// before all four core job types are completed and runs at most once per
// request: an existence check plus a lock make redundant triggers harmless.
func (a *Assembler) Generate(ctx context.Context, requestID string) (*models.Report, error) {
	jobs, err := a.store.ListJobsByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	completed := map[models.JobType]bool{}
	for _, j := range jobs {
		if j.Status == models.StatusCompleted {
			completed[j.JobType] = true
		}
	}
	for _, jt := range models.CoreJobTypes() {
		if !completed[jt] {
			return nil, fmt.Errorf("%w: %s pending", ErrNotReady, jt)
		}
	}

	if exists, err := a.store.ReportExists(ctx, requestID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyGenerated
	}

	if a.locker != nil {
		ok, err := a.locker.Acquire(ctx, "report:"+requestID, 5*time.Minute)
		if err != nil {
			a.log.Warn("report lock unavailable, relying on existence check", zap.Error(err))
		} else if !ok {
			return nil, ErrAlreadyGenerated
		} else {
			defer func() { _ = a.locker.Release(context.WithoutCancel(ctx), "report:"+requestID) }()
		}
	}

	company, err := a.store.GetCompany(ctx, requestID)
	if err != nil {
		return nil, err
	}
	cf, err := a.cons.GetConsolidation(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load consolidation: %w", err)
	}

	findings := cf.PrimaryEntity.Findings
	score := risk.Score(findings, nil)
	recommendation := risk.Recommend(score, findings, nil)

	now := time.Now()
	rep := &models.Report{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		Title:            fmt.Sprintf("Due Diligence Report: %s", company.Name),
		ExecutiveSummary: a.section(ctx, "executive summary", summaryData(company, cf, score, recommendation)),
		Sections: models.ReportSections{
			CompanyOverview:      a.section(ctx, "company overview", company),
			DirectorsAnalysis:    a.section(ctx, "directors analysis", cf.Directors),
			LegalRegulatory:      a.section(ctx, "legal and regulatory proceedings", cf.LitigationHistory),
			NegativeIncidents:    a.section(ctx, "negative incidents", findingsBySeverity(findings)),
			RegulatoryCompliance: a.section(ctx, "regulatory compliance", cf.RegulatoryHistory),
			RiskAssessment:       a.section(ctx, "risk assessment", cf.Assessment),
			DetailedFindings:     a.section(ctx, "detailed findings", findings),
			Recommendations:      a.section(ctx, "recommendations", recommendationData(cf, recommendation)),
			DataQuality:          a.section(ctx, "data quality", cf.Assessment.DataCompleteness),
			VerificationSummary:  a.section(ctx, "verification summary", verificationData(findings)),
		},
		RiskLevel:      cf.Assessment.OverallRiskLevel,
		RiskScore:      score,
		Recommendation: recommendation,
		GeneratedAt:    now,
		ExpiresAt:      now.Add(a.ttl),
	}

	if a.objects != nil {
		key := fmt.Sprintf("reports/%s/%s.json", requestID, rep.ID)
		if data, err := json.Marshal(rep); err == nil {
			if err := a.objects.UploadReport(ctx, key, data); err != nil {
				a.log.Warn("report artifact upload failed", zap.String("request_id", requestID), zap.Error(err))
			} else {
				rep.ObjectKey = key
			}
		}
	}

	if err := a.store.InsertReport(ctx, rep); err != nil {
		return nil, err
	}

	a.auditReport(ctx, rep, company.Name)
	a.log.Info("report generated",
		zap.String("request_id", requestID), zap.String("report_id", rep.ID),
		zap.Int("risk_score", score), zap.String("recommendation", recommendation))
	return rep, nil
}

// section asks the synthesis renderer for prose and falls back to a
// deterministic template, so no section is ever left empty.
func (a *Assembler) section(ctx context.Context, name string, data interface{}) string {
	if a.render != nil {
		text, err := a.render.RenderSection(ctx, name, data)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		if err != nil {
			a.log.Warn("section synthesis failed, using template",
				zap.String("section", name), zap.Error(err))
		}
	}
	return templateSection(name, data)
}

// templateSection summarizes the same underlying data without the synthesis
// service.
func templateSection(name string, data interface{}) string {
	switch v := data.(type) {
	case *models.CompanyProfile:
		return fmt.Sprintf("%s is the subject of this due-diligence review. CIN: %s. Industry: %s. Jurisdiction: %s. Directors on record: %d.",
			v.Name, orNA(v.CIN), orNA(v.Industry), orNA(v.Jurisdiction), len(v.Directors))
	case []models.EntityAnalysis:
		if len(v) == 0 {
			return "No adverse findings were attributed to individual directors during this review."
		}
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, fmt.Sprintf("%s (%d findings)", e.Name, len(e.Findings)))
		}
		return fmt.Sprintf("Adverse findings were recorded against the following directors: %s. Each warrants individual review before credit approval.",
			strings.Join(parts, "; "))
	case []models.StructuredFinding:
		if len(v) == 0 {
			return "No findings were recorded in this category during the research performed."
		}
		parts := make([]string, 0, len(v))
		for i, f := range v {
			if i == 5 {
				parts = append(parts, fmt.Sprintf("and %d further findings", len(v)-5))
				break
			}
			parts = append(parts, fmt.Sprintf("[%s] %s (%s)", f.Severity, f.Title, f.Status))
		}
		return fmt.Sprintf("%d findings were recorded: %s.", len(v), strings.Join(parts, "; "))
	case models.ComprehensiveRiskAssessment:
		return fmt.Sprintf("Overall risk level: %s. Confidence: %s. Data completeness: %d%%. Primary risk factors: %s. Immediate attention required: %t.",
			v.OverallRiskLevel, v.ConfidenceLevel, v.DataCompleteness,
			orNA(strings.Join(v.PrimaryRiskFactors, "; ")), v.RequiresImmediateAttention)
	case map[string]interface{}:
		payload, _ := json.Marshal(v)
		return fmt.Sprintf("Summary of %s: %s", name, string(payload))
	case int:
		return fmt.Sprintf("Data completeness for this review stands at %d%% of the core research coverage.", v)
	default:
		payload, _ := json.Marshal(data)
		return fmt.Sprintf("Automated summary (%s): %s", name, string(payload))
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not available"
	}
	return s
}

func summaryData(company *models.CompanyProfile, cf *models.ConsolidatedFindings, score int, recommendation string) map[string]interface{} {
	return map[string]interface{}{
		"company":           company.Name,
		"risk_level":        cf.Assessment.OverallRiskLevel,
		"risk_score":        score,
		"recommendation":    recommendation,
		"risk_factors":      cf.Assessment.PrimaryRiskFactors,
		"total_findings":    len(cf.PrimaryEntity.Findings),
		"directors_flagged": len(cf.Directors),
	}
}

func recommendationData(cf *models.ConsolidatedFindings, recommendation string) map[string]interface{} {
	return map[string]interface{}{
		"credit_recommendation": recommendation,
		"follow_up_required":    cf.Assessment.FollowUpRequired,
		"mitigating_factors":    cf.Assessment.MitigatingFactors,
	}
}

func verificationData(findings []models.StructuredFinding) map[string]interface{} {
	counts := map[string]int{"High": 0, "Medium": 0, "Low": 0}
	for _, f := range findings {
		counts[f.VerificationLevel]++
	}
	return map[string]interface{}{"verification_levels": counts, "total": len(findings)}
}

// findingsBySeverity orders findings most severe first for the negative
// incidents section.
func findingsBySeverity(findings []models.StructuredFinding) []models.StructuredFinding {
	ordered := make([]models.StructuredFinding, 0, len(findings))
	for _, sev := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium,
		models.SeverityLow, models.SeverityInfo,
	} {
		for _, f := range findings {
			if f.Severity == sev {
				ordered = append(ordered, f)
			}
		}
	}
	return ordered
}

func (a *Assembler) auditReport(ctx context.Context, rep *models.Report, company string) {
	entry := &models.AuditEntry{
		Action: "report_generated",
		Details: map[string]interface{}{
			"request_id": rep.RequestID, "report_id": rep.ID, "company": company,
			"risk_score": rep.RiskScore, "recommendation": rep.Recommendation,
		},
		Timestamp: time.Now(),
	}
	if err := a.store.InsertAudit(ctx, entry); err != nil {
		a.log.Warn("audit write failed", zap.Error(err))
	}
}
