package models

import "time"

// ReportSections holds the named prose sections of a due-diligence report.
type ReportSections struct {
	CompanyOverview      string `json:"company_overview"`
	DirectorsAnalysis    string `json:"directors_analysis"`
	LegalRegulatory      string `json:"legal_regulatory"`
	NegativeIncidents    string `json:"negative_incidents"`
	RegulatoryCompliance string `json:"regulatory_compliance"`
	RiskAssessment       string `json:"risk_assessment"`
	DetailedFindings     string `json:"detailed_findings"`
	Recommendations      string `json:"recommendations"`
	DataQuality          string `json:"data_quality"`
	VerificationSummary  string `json:"verification_summary"`
}

// Report is the consolidated due-diligence report for one request. Created
// once all four core job types complete; immutable once written. Regeneration
// produces a new record, never an update.
type Report struct {
	ID               string         `json:"id"`
	RequestID        string         `json:"request_id"`
	Title            string         `json:"title"`
	ExecutiveSummary string         `json:"executive_summary"`
	Sections         ReportSections `json:"sections"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	RiskScore        int            `json:"risk_score"`
	Recommendation   string         `json:"credit_recommendation"`
	ObjectKey        string         `json:"object_key,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
}

// ReportTask is one outbox entry scheduling report generation for a request.
// Written in the same transaction as the completing job's status update so
// the "detached but eventually executed" guarantee survives process restarts.
type ReportTask struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	QueuedAt  time.Time `json:"queued_at"`
}
