package models

// Amount is a monetary figure as reported plus its numeric INR value when the
// text could be parsed. Value is in rupees; crore/lakh units are expanded.
type Amount struct {
	Text     string  `json:"text"               bson:"text"`
	Value    float64 `json:"value,omitempty"    bson:"value,omitempty"`
	Currency string  `json:"currency,omitempty" bson:"currency,omitempty"`
}

// BusinessImpact carries the credit-relevant dimensions of a finding.
// Risk fields use High/Medium/Low; CreditImpact uses Negative/Neutral/Positive.
type BusinessImpact struct {
	FinancialRisk           string `json:"financial_risk"             bson:"financial_risk"`
	OperationalRisk         string `json:"operational_risk"           bson:"operational_risk"`
	ReputationalRisk        string `json:"reputational_risk"          bson:"reputational_risk"`
	CreditImpact            string `json:"credit_impact"              bson:"credit_impact"`
	ProbabilityOfOccurrence int    `json:"probability_of_occurrence"  bson:"probability_of_occurrence"`
}

// StructuredFinding is one atomic, normalized fact extracted from research
// output. Category, Severity and Status are always members of the closed enums.
type StructuredFinding struct {
	ID                string         `json:"id"                 bson:"id"`
	Category          Category       `json:"category"           bson:"category"`
	Severity          Severity       `json:"severity"           bson:"severity"`
	Title             string         `json:"title"              bson:"title"`
	Description       string         `json:"description"        bson:"description"`
	Amount            *Amount        `json:"amount,omitempty"   bson:"amount,omitempty"`
	Date              string         `json:"date,omitempty"     bson:"date,omitempty"`
	Source            string         `json:"source,omitempty"   bson:"source,omitempty"`
	Status            FindingStatus  `json:"status"             bson:"status"`
	BusinessImpact    BusinessImpact `json:"business_impact"    bson:"business_impact"`
	VerificationLevel string         `json:"verification_level" bson:"verification_level"`
	ActionRequired    bool           `json:"action_required"    bson:"action_required"`
	TimelineImpact    string         `json:"timeline_impact"    bson:"timeline_impact"`
}

// CandidateFinding is the loosely-typed shape the synthesis service returns
// before normalization. Every field may be garbled or absent.
type CandidateFinding struct {
	Category          string `json:"category"`
	Severity          string `json:"severity"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Amount            string `json:"amount"`
	Date              string `json:"date"`
	Source            string `json:"source"`
	Status            string `json:"status"`
	FinancialRisk     string `json:"financial_risk"`
	OperationalRisk   string `json:"operational_risk"`
	ReputationalRisk  string `json:"reputational_risk"`
	CreditImpact      string `json:"credit_impact"`
	Probability       int    `json:"probability_of_occurrence"`
	VerificationLevel string `json:"verification_level"`
	TimelineImpact    string `json:"timeline_impact"`
}

// CriticalAlert is a red flag matched deterministically from raw research
// text, independent of synthesis-derived findings.
type CriticalAlert struct {
	Severity        Severity `json:"severity"         bson:"severity"`
	Category        string   `json:"category"         bson:"category"`
	Title           string   `json:"title"            bson:"title"`
	Description     string   `json:"description"      bson:"description"`
	FinancialImpact string   `json:"financial_impact" bson:"financial_impact"`
	SourceEvidence  string   `json:"source_evidence"  bson:"source_evidence"`
	Confidence      int      `json:"confidence"       bson:"confidence"`
}
