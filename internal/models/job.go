package models

import "time"

// CompanyProfile is the subject of a research request, registered by the
// dashboard before any job is started.
type CompanyProfile struct {
	RequestID    string   `json:"request_id"`
	Name         string   `json:"name"`
	CIN          string   `json:"cin,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	Directors    []string `json:"directors,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResearchJob is one research engagement for one job type against one company
// request. Mutated only by the iteration runner; terminal once completed or
// failed. A failed job is retried by creating a new job, never resurrected.
type ResearchJob struct {
	ID               string     `json:"id"`
	RequestID        string     `json:"request_id"`
	JobType          JobType    `json:"job_type"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	MaxIterations    int        `json:"max_iterations"`
	CurrentIteration int        `json:"current_iteration"`
	Strategy         IterationStrategy `json:"iteration_strategy"`
	RiskScore        *int       `json:"risk_score,omitempty"`
	Recommendation   string     `json:"credit_recommendation,omitempty"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ResearchIteration is one pass within a job. Iterations run strictly
// sequentially; iteration i+1 never starts before i's persistence completes.
type ResearchIteration struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	Number      int        `json:"number"`
	Focus       string     `json:"focus"`
	Status      JobStatus  `json:"status"`
	Confidence  float64    `json:"confidence"`
	DataQuality float64    `json:"data_quality"`
	TokensUsed  int        `json:"tokens_used"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IterationDocument is the full per-iteration payload kept in MongoDB: raw
// research text plus the extracted findings and alerts.
type IterationDocument struct {
	JobID      string              `bson:"job_id"       json:"job_id"`
	RequestID  string              `bson:"request_id"   json:"request_id"`
	JobType    JobType             `bson:"job_type"     json:"job_type"`
	Number     int                 `bson:"number"       json:"number"`
	RawContent string              `bson:"raw_content"  json:"raw_content"`
	Findings   []StructuredFinding `bson:"findings"     json:"findings"`
	Alerts     []CriticalAlert     `bson:"alerts"       json:"alerts"`
	AlertScore int                 `bson:"alert_score"  json:"alert_score"`
	Ruleset    string              `bson:"ruleset"      json:"ruleset"`
	Citations  []string            `bson:"citations,omitempty" json:"citations,omitempty"`
	CreatedAt  time.Time           `bson:"created_at"   json:"created_at"`
}

// ResearchRequest is the JSON body for POST /api/research.
type ResearchRequest struct {
	RequestID     string `json:"request_id"`
	JobType       string `json:"job_type"`
	ResearchScope string `json:"research_scope,omitempty"`
	BudgetTokens  int    `json:"budget_tokens,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Strategy      string `json:"iteration_strategy,omitempty"`
}

// ResearchResponse acknowledges a research request.
type ResearchResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message"`
}

// AuditEntry is one append-only audit log record.
type AuditEntry struct {
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
	UserID    string                 `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
