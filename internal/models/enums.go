package models

// JobType identifies one of the four core research categories. A request's
// report is gated on all four reaching completed.
type JobType string

const (
	JobDirectors    JobType = "directors_research"
	JobLegal        JobType = "legal_research"
	JobNegativeNews JobType = "negative_news"
	JobRegulatory   JobType = "regulatory_research"
)

// CoreJobTypes returns the fixed set that gates report generation.
func CoreJobTypes() []JobType {
	return []JobType{JobDirectors, JobLegal, JobNegativeNews, JobRegulatory}
}

// ParseJobType validates an incoming job type string.
func ParseJobType(s string) (JobType, bool) {
	switch JobType(s) {
	case JobDirectors, JobLegal, JobNegativeNews, JobRegulatory:
		return JobType(s), true
	}
	return "", false
}

// JobStatus transitions only pending -> running -> {completed, failed}.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Severity of a finding or alert.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Category is the closed finding taxonomy. Arbitrary inbound strings are
// coerced to the nearest member at ingestion, never stored raw.
type Category string

const (
	CategoryRegulatory  Category = "Regulatory Compliance"
	CategoryLegal       Category = "Legal Proceedings"
	CategoryFinConduct  Category = "Financial Conduct"
	CategoryOperational Category = "Operational Risk"
	CategoryGovernance  Category = "Governance Issues"
	CategoryReputation  Category = "Reputational Risk"
	CategoryBusiness    Category = "Business Performance"
	CategoryCriminal    Category = "Criminal Activity"
	CategoryFinCrime    Category = "Financial Crime"
	CategoryOther       Category = "Other"
)

// FindingStatus is the lifecycle state of the underlying issue.
type FindingStatus string

const (
	FindingActive       FindingStatus = "Active"
	FindingResolved     FindingStatus = "Resolved"
	FindingPending      FindingStatus = "Pending"
	FindingInvestigated FindingStatus = "Under Investigation"
	FindingUnknown      FindingStatus = "Unknown"
)

// RiskLevel buckets the overall assessment.
type RiskLevel string

const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskMedium   RiskLevel = "Medium"
	RiskLow      RiskLevel = "Low"
)

// Credit recommendations produced by the decision table.
const (
	RecommendApprove     = "Approve"
	RecommendConditional = "Conditional Approve"
	RecommendReview      = "Further Review"
	RecommendDecline     = "Decline"
)

// IterationStrategy hints how many passes a job should make.
type IterationStrategy string

const (
	StrategySingle   IterationStrategy = "single"
	StrategyMulti    IterationStrategy = "multi"
	StrategyAdaptive IterationStrategy = "adaptive"
)
