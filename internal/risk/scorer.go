package risk

import (
	"math"

	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/normalize"
)

// Severity base scores and weights for findings. The score is a weighted
// average, not a sum, so piles of low-impact findings can't inflate it.
var findingBase = map[models.Severity]float64{
	models.SeverityCritical: 90,
	models.SeverityHigh:     70,
	models.SeverityMedium:   45,
	models.SeverityLow:      25,
	models.SeverityInfo:     5,
}

var findingWeight = map[models.Severity]float64{
	models.SeverityCritical: 3,
	models.SeverityHigh:     2.5,
	models.SeverityMedium:   2,
	models.SeverityLow:      1.5,
	models.SeverityInfo:     0.5,
}

var alertBase = map[models.Severity]float64{
	models.SeverityCritical: 95,
	models.SeverityHigh:     75,
	models.SeverityMedium:   50,
}

var alertWeight = map[models.Severity]float64{
	models.SeverityCritical: 3,
	models.SeverityHigh:     2.5,
	models.SeverityMedium:   2,
}

// findingScore applies the multiplier ladder to one finding's base score.
func findingScore(f models.StructuredFinding) float64 {
	score := findingBase[f.Severity]

	switch f.BusinessImpact.FinancialRisk {
	case "High":
		score *= 1.3
	case "Medium":
		score *= 1.1
	}
	switch f.BusinessImpact.OperationalRisk {
	case "High":
		score *= 1.2
	case "Medium":
		score *= 1.05
	}
	if f.BusinessImpact.CreditImpact == "Negative" {
		score *= 1.25
	}
	if p := f.BusinessImpact.ProbabilityOfOccurrence; p > 0 {
		score *= float64(p) / 100
	}

	switch f.Status {
	case models.FindingActive, models.FindingPending:
		score *= 1.2
	case models.FindingResolved:
		score *= 0.7
	}

	if f.Amount != nil {
		switch {
		case f.Amount.Value > 10*normalize.Crore:
			score *= 1.4
		case f.Amount.Value > 5*normalize.Crore:
			score *= 1.2
		case f.Amount.Value > normalize.Crore:
			score *= 1.1
		}
	}
	return score
}

// Score computes the 0-100 aggregate risk score over findings and alerts.
// Zero inputs score zero.
func Score(findings []models.StructuredFinding, alerts []models.CriticalAlert) int {
	var weightedSum, weightTotal float64

	for _, f := range findings {
		w := findingWeight[f.Severity]
		weightedSum += findingScore(f) * w
		weightTotal += w
	}
	for _, a := range alerts {
		base, ok := alertBase[a.Severity]
		if !ok {
			continue
		}
		w := alertWeight[a.Severity]
		weightedSum += base * (float64(a.Confidence) / 100) * w
		weightTotal += w
	}

	if weightTotal == 0 {
		return 0
	}
	score := int(math.Round(weightedSum / weightTotal))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Recommend evaluates the credit decision table top-down; first match wins.
// It is a deterministic function of (score, findings, alerts).
func Recommend(score int, findings []models.StructuredFinding, alerts []models.CriticalAlert) string {
	highCount := 0
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			return models.RecommendDecline
		case models.SeverityHigh:
			highCount++
		}
	}
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			return models.RecommendDecline
		}
	}

	switch {
	case score > 80:
		return models.RecommendDecline
	case score > 65:
		return models.RecommendReview
	case highCount >= 3:
		return models.RecommendReview
	case highCount >= 1:
		return models.RecommendConditional
	case score > 40:
		return models.RecommendConditional
	default:
		return models.RecommendApprove
	}
}

// RequiresImmediateAttention flags requests that should surface at the top
// of the analyst's queue.
func RequiresImmediateAttention(score int, findings []models.StructuredFinding, alerts []models.CriticalAlert) bool {
	if score > 75 {
		return true
	}
	activeHigh := 0
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			return true
		}
		if f.Severity == models.SeverityHigh && (f.Status == models.FindingActive || f.ActionRequired) {
			activeHigh++
		}
		if f.Amount != nil && f.Amount.Value > 5*normalize.Crore {
			return true
		}
	}
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			return true
		}
	}
	return activeHigh >= 2
}

// Level buckets a finding set into the overall risk level used by the
// consolidated assessment.
func Level(findings []models.StructuredFinding) models.RiskLevel {
	var critical, high, medium int
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		case models.SeverityMedium:
			medium++
		}
	}
	switch {
	case critical > 0:
		return models.RiskCritical
	case high > 2:
		return models.RiskHigh
	case high >= 1 || medium > 3:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
