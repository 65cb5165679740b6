package models

// EntityAnalysis groups the findings attributed to one entity (the primary
// company or a director).
type EntityAnalysis struct {
	Name     string              `json:"name"     bson:"name"`
	Role     string              `json:"role,omitempty" bson:"role,omitempty"`
	Findings []StructuredFinding `json:"findings" bson:"findings"`
}

// ComprehensiveRiskAssessment is the overall judgement recomputed over the
// union of all completed jobs' findings.
type ComprehensiveRiskAssessment struct {
	OverallRiskLevel           RiskLevel `json:"overall_risk_level"           bson:"overall_risk_level"`
	PrimaryRiskFactors         []string  `json:"primary_risk_factors"         bson:"primary_risk_factors"`
	MitigatingFactors          []string  `json:"mitigating_factors"           bson:"mitigating_factors"`
	DataCompleteness           int       `json:"data_completeness"            bson:"data_completeness"`
	ConfidenceLevel            string    `json:"confidence_level"             bson:"confidence_level"`
	RequiresImmediateAttention bool      `json:"requires_immediate_attention" bson:"requires_immediate_attention"`
	FollowUpRequired           []string  `json:"follow_up_required"           bson:"follow_up_required"`
}

// ConsolidatedFindings is the per-request aggregate built fresh on every
// consolidation run. It is a pure function of the completed jobs' findings:
// consolidating the same snapshot twice yields a structurally equal value.
type ConsolidatedFindings struct {
	RequestID         string                      `json:"request_id"          bson:"request_id"`
	PrimaryEntity     EntityAnalysis              `json:"primary_entity"      bson:"primary_entity"`
	Directors         []EntityAnalysis            `json:"directors"           bson:"directors"`
	Subsidiaries      []string                    `json:"subsidiaries"        bson:"subsidiaries"`
	Associates        []string                    `json:"associates"          bson:"associates"`
	RegulatoryHistory []StructuredFinding         `json:"regulatory_history"  bson:"regulatory_history"`
	LitigationHistory []StructuredFinding         `json:"litigation_history"  bson:"litigation_history"`
	Assessment        ComprehensiveRiskAssessment `json:"risk_assessment"     bson:"risk_assessment"`
}
