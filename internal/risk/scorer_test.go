package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credrisk/diligence-engine/internal/models"
)

func finding(sev models.Severity, opts ...func(*models.StructuredFinding)) models.StructuredFinding {
	f := models.StructuredFinding{
		ID:       "f-1",
		Category: models.CategoryFinConduct,
		Severity: sev,
		Title:    "test finding",
		Status:   models.FindingUnknown,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func TestScore_Range(t *testing.T) {
	cases := []struct {
		name     string
		findings []models.StructuredFinding
		alerts   []models.CriticalAlert
	}{
		{"empty", nil, nil},
		{"single info", []models.StructuredFinding{finding(models.SeverityInfo)}, nil},
		{"stacked criticals", []models.StructuredFinding{
			finding(models.SeverityCritical, func(f *models.StructuredFinding) {
				f.BusinessImpact.FinancialRisk = "High"
				f.BusinessImpact.OperationalRisk = "High"
				f.BusinessImpact.CreditImpact = "Negative"
				f.Status = models.FindingActive
				f.Amount = &models.Amount{Value: 200e7}
			}),
			finding(models.SeverityCritical),
		}, nil},
		{"alerts only", nil, []models.CriticalAlert{
			{Severity: models.SeverityCritical, Confidence: 95},
			{Severity: models.SeverityMedium, Confidence: 50},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := Score(tc.findings, tc.alerts)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		})
	}
}

func TestScore_ZeroInputsScoreZero(t *testing.T) {
	assert.Equal(t, 0, Score(nil, nil))
}

// Replacing any LOW finding with an otherwise-identical CRITICAL finding must
// never lower the score.
func TestScore_MonotonicInSeverity(t *testing.T) {
	variants := []func(*models.StructuredFinding){
		func(f *models.StructuredFinding) {},
		func(f *models.StructuredFinding) { f.BusinessImpact.FinancialRisk = "High" },
		func(f *models.StructuredFinding) { f.Status = models.FindingResolved },
		func(f *models.StructuredFinding) {
			f.BusinessImpact.CreditImpact = "Negative"
			f.BusinessImpact.ProbabilityOfOccurrence = 40
		},
		func(f *models.StructuredFinding) { f.Amount = &models.Amount{Value: 12e7} },
	}
	contexts := [][]models.StructuredFinding{
		nil,
		{finding(models.SeverityMedium)},
		{finding(models.SeverityCritical, func(f *models.StructuredFinding) {
			f.BusinessImpact.FinancialRisk = "High"
			f.BusinessImpact.OperationalRisk = "High"
			f.Status = models.FindingActive
		})},
		{finding(models.SeverityHigh), finding(models.SeverityHigh), finding(models.SeverityLow)},
	}

	for _, variant := range variants {
		for _, rest := range contexts {
			low := append(append([]models.StructuredFinding{}, rest...), finding(models.SeverityLow, variant))
			critical := append(append([]models.StructuredFinding{}, rest...), finding(models.SeverityCritical, variant))
			assert.GreaterOrEqual(t, Score(critical, nil), Score(low, nil))
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	findings := []models.StructuredFinding{
		finding(models.SeverityHigh, func(f *models.StructuredFinding) { f.Status = models.FindingActive }),
		finding(models.SeverityMedium),
	}
	alerts := []models.CriticalAlert{{Severity: models.SeverityHigh, Confidence: 80}}

	first := Score(findings, alerts)
	firstRec := Recommend(first, findings, alerts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(findings, alerts))
		assert.Equal(t, firstRec, Recommend(Score(findings, alerts), findings, alerts))
	}
}

// A single CRITICAL "director disqualified" finding must score >= 90 and
// decline.
func TestScore_DisqualifiedDirectorScenario(t *testing.T) {
	findings := []models.StructuredFinding{
		finding(models.SeverityCritical, func(f *models.StructuredFinding) {
			f.Title = "Director disqualified by regulator"
			f.Category = models.CategoryGovernance
			f.BusinessImpact.FinancialRisk = "High"
			f.Status = models.FindingActive
		}),
	}
	score := Score(findings, nil)
	require.GreaterOrEqual(t, score, 90)
	assert.Equal(t, models.RecommendDecline, Recommend(score, findings, nil))
}

func TestRecommend_DecisionTable(t *testing.T) {
	high := func(n int) []models.StructuredFinding {
		out := make([]models.StructuredFinding, n)
		for i := range out {
			out[i] = finding(models.SeverityHigh)
		}
		return out
	}

	cases := []struct {
		name     string
		score    int
		findings []models.StructuredFinding
		alerts   []models.CriticalAlert
		want     string
	}{
		{"critical finding declines at any score", 10,
			[]models.StructuredFinding{finding(models.SeverityCritical)}, nil, models.RecommendDecline},
		{"critical alert declines", 10, nil,
			[]models.CriticalAlert{{Severity: models.SeverityCritical, Confidence: 70}}, models.RecommendDecline},
		{"score above 80 declines", 81, nil, nil, models.RecommendDecline},
		{"score above 65 reviews", 66, nil, nil, models.RecommendReview},
		{"three highs review", 50, high(3), nil, models.RecommendReview},
		{"one high conditional", 30, high(1), nil, models.RecommendConditional},
		{"score above 40 conditional", 41, nil, nil, models.RecommendConditional},
		{"clean approves", 20, nil, nil, models.RecommendApprove},
		{"zero approves", 0, nil, nil, models.RecommendApprove},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Recommend(tc.score, tc.findings, tc.alerts))
		})
	}
}

func TestRequiresImmediateAttention(t *testing.T) {
	activeHigh := finding(models.SeverityHigh, func(f *models.StructuredFinding) {
		f.Status = models.FindingActive
	})

	assert.True(t, RequiresImmediateAttention(76, nil, nil), "score above 75")
	assert.True(t, RequiresImmediateAttention(10,
		[]models.StructuredFinding{finding(models.SeverityCritical)}, nil), "critical finding")
	assert.True(t, RequiresImmediateAttention(10, nil,
		[]models.CriticalAlert{{Severity: models.SeverityCritical, Confidence: 60}}), "critical alert")
	assert.True(t, RequiresImmediateAttention(10,
		[]models.StructuredFinding{activeHigh, activeHigh}, nil), "two active highs")
	assert.True(t, RequiresImmediateAttention(10,
		[]models.StructuredFinding{finding(models.SeverityLow, func(f *models.StructuredFinding) {
			f.Amount = &models.Amount{Value: 6e7}
		})}, nil), "amount above five crore")

	assert.False(t, RequiresImmediateAttention(10, nil, nil))
	assert.False(t, RequiresImmediateAttention(40,
		[]models.StructuredFinding{activeHigh}, nil), "a single active high is not enough")
}

func TestLevel_Buckets(t *testing.T) {
	mk := func(sevs ...models.Severity) []models.StructuredFinding {
		out := make([]models.StructuredFinding, len(sevs))
		for i, s := range sevs {
			out[i] = finding(s)
		}
		return out
	}

	assert.Equal(t, models.RiskLow, Level(nil))
	assert.Equal(t, models.RiskCritical, Level(mk(models.SeverityCritical, models.SeverityLow)))
	assert.Equal(t, models.RiskHigh, Level(mk(models.SeverityHigh, models.SeverityHigh, models.SeverityHigh)))
	assert.Equal(t, models.RiskMedium, Level(mk(models.SeverityHigh)))
	assert.Equal(t, models.RiskMedium, Level(mk(models.SeverityMedium, models.SeverityMedium, models.SeverityMedium, models.SeverityMedium)))
	assert.Equal(t, models.RiskLow, Level(mk(models.SeverityMedium, models.SeverityLow, models.SeverityInfo)))
}
