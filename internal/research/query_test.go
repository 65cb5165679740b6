package research

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/credrisk/diligence-engine/internal/models"
)

func TestIterationFocus(t *testing.T) {
	assert.Equal(t, FocusPrimaryEntity, IterationFocus(0))
	assert.Equal(t, FocusPrimaryEntity, IterationFocus(1))
	assert.Equal(t, FocusRelatedEntities, IterationFocus(2))
	assert.Equal(t, FocusVerification, IterationFocus(3))
	assert.Equal(t, FocusFinalValidation, IterationFocus(4))
	assert.Equal(t, FocusFinalValidation, IterationFocus(9))
}

func TestBuildQuery(t *testing.T) {
	company := &models.CompanyProfile{
		RequestID:    "req-1",
		Name:         "Acme Industries Ltd",
		CIN:          "L12345MH2001PLC000001",
		Industry:     "steel manufacturing",
		Jurisdiction: "Mumbai, India",
		Directors:    []string{"Rakesh Sharma", "Priya Nair"},
	}

	q := BuildQuery(company, models.JobDirectors, 1, 3, "focus on export subsidiaries")
	assert.Contains(t, q.Prompt, "Acme Industries Ltd")
	assert.Contains(t, q.Prompt, "L12345MH2001PLC000001")
	assert.Contains(t, q.Prompt, "Rakesh Sharma")
	assert.Contains(t, q.Prompt, "export subsidiaries")
	assert.Contains(t, q.Prompt, "pass 1 of 3")
	assert.Contains(t, q.SystemInstruction, "primary company")
	assert.Equal(t, "standard", q.SearchDepth)
	assert.False(t, q.Reduced)

	// Director names only appear for the directors job.
	legal := BuildQuery(company, models.JobLegal, 1, 3, "")
	assert.NotContains(t, legal.Prompt, "Rakesh Sharma")
	assert.Contains(t, legal.Prompt, "litigation")

	// Later passes switch to deep search.
	deep := BuildQuery(company, models.JobLegal, 3, 3, "")
	assert.Equal(t, "deep", deep.SearchDepth)
}

func TestBuildQuery_MinimalProfile(t *testing.T) {
	company := &models.CompanyProfile{RequestID: "req-2", Name: "Bare Co"}
	q := BuildQuery(company, models.JobNegativeNews, 2, 2, "")
	assert.Contains(t, q.Prompt, "Bare Co")
	assert.NotContains(t, q.Prompt, "CIN")
	assert.Contains(t, q.Prompt, "pass 2 of 2")
}

func TestBuildQuery_Deterministic(t *testing.T) {
	company := &models.CompanyProfile{Name: "Acme", Directors: []string{"A", "B"}}
	first := BuildQuery(company, models.JobRegulatory, 2, 4, "scope")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildQuery(company, models.JobRegulatory, 2, 4, "scope"))
	}
}

func TestReduceScope(t *testing.T) {
	company := &models.CompanyProfile{Name: "Acme Industries Ltd", Industry: "steel"}
	full := BuildQuery(company, models.JobLegal, 3, 3, "broad extra scope")
	reduced := ReduceScope(full)

	assert.True(t, reduced.Reduced)
	assert.Equal(t, "standard", reduced.SearchDepth)
	assert.Less(t, len(reduced.Prompt), len(full.Prompt))
	assert.True(t, strings.HasPrefix(reduced.Prompt, "Research Acme Industries Ltd"))
	assert.Contains(t, reduced.Prompt, "most significant adverse information")
	assert.Equal(t, full.SystemInstruction, reduced.SystemInstruction)
}
