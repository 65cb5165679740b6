package research

import (
	"fmt"
	"strings"

	"github.com/credrisk/diligence-engine/internal/models"
)

// Query is the prompt pair sent to the research service for one iteration.
type Query struct {
	SystemInstruction string
	Prompt            string
	SearchDepth       string
	Reduced           bool
}

// Iteration focus ladder. Iteration 1 covers the primary entity, 2 the
// related entities, 3 deep verification, and anything beyond is final
// validation of earlier results.
const (
	FocusPrimaryEntity   = "primary_entity"
	FocusRelatedEntities = "related_entities"
	FocusVerification    = "deep_verification"
	FocusFinalValidation = "final_validation"
)

// IterationFocus returns the research focus for an iteration number.
func IterationFocus(iteration int) string {
	switch {
	case iteration <= 1:
		return FocusPrimaryEntity
	case iteration == 2:
		return FocusRelatedEntities
	case iteration == 3:
		return FocusVerification
	default:
		return FocusFinalValidation
	}
}

var jobTypeSubjects = map[models.JobType]string{
	models.JobDirectors:    "directors and key managerial personnel: disqualifications, DIN status, other directorships, past conduct",
	models.JobLegal:        "litigation and legal proceedings: court cases, NCLT matters, arbitration, enforcement actions",
	models.JobNegativeNews: "adverse media coverage: fraud allegations, defaults, investigations, reputational incidents",
	models.JobRegulatory:   "regulatory compliance: SEBI, RBI and MCA orders, penalties, license actions, filing defaults",
}

var focusInstructions = map[string]string{
	FocusPrimaryEntity:   "Focus on the primary company itself. Establish the baseline factual record before looking at related parties.",
	FocusRelatedEntities: "Focus on related entities: directors, promoters, group companies, subsidiaries and associates connected to the primary company.",
	FocusVerification:    "Verify and deepen earlier results. Cross-check dates, amounts and case numbers; surface anything the first passes missed.",
	FocusFinalValidation: "Final validation pass. Confirm or retract prior findings; flag anything unresolved or contradictory.",
}

// BuildQuery turns a company profile, job type and iteration number into a
// research prompt and an iteration-specific system instruction. Pure
// function, no I/O.
func BuildQuery(company *models.CompanyProfile, jobType models.JobType, iteration, maxIterations int, scope string) Query {
	focus := IterationFocus(iteration)

	var b strings.Builder
	fmt.Fprintf(&b, "Research %s", company.Name)
	if company.CIN != "" {
		fmt.Fprintf(&b, " (CIN %s)", company.CIN)
	}
	if company.Jurisdiction != "" {
		fmt.Fprintf(&b, ", %s", company.Jurisdiction)
	}
	fmt.Fprintf(&b, ". Subject: %s.", jobTypeSubjects[jobType])
	if jobType == models.JobDirectors && len(company.Directors) > 0 {
		fmt.Fprintf(&b, " Known directors: %s.", strings.Join(company.Directors, ", "))
	}
	if company.Industry != "" {
		fmt.Fprintf(&b, " Industry context: %s.", company.Industry)
	}
	if scope != "" {
		fmt.Fprintf(&b, " Additional scope: %s.", scope)
	}
	fmt.Fprintf(&b, " This is pass %d of %d (%s).", iteration, maxIterations, focus)

	system := fmt.Sprintf(
		"You are a due-diligence researcher for a credit risk team. %s "+
			"Report concrete, sourced facts with dates and amounts where available. "+
			"State clearly when nothing adverse is found.",
		focusInstructions[focus])

	depth := "standard"
	if focus == FocusVerification || focus == FocusFinalValidation {
		depth = "deep"
	}

	return Query{
		SystemInstruction: system,
		Prompt:            b.String(),
		SearchDepth:       depth,
	}
}

// ReduceScope shrinks a query for the reduced-scope fallback retry: it keeps
// only the first sentence of the prompt and downgrades the search depth.
func ReduceScope(q Query) Query {
	prompt := q.Prompt
	if idx := strings.Index(prompt, ". "); idx > 0 {
		prompt = prompt[:idx+1]
	}
	return Query{
		SystemInstruction: q.SystemInstruction,
		Prompt:            prompt + " Provide a brief summary of the most significant adverse information only.",
		SearchDepth:       "standard",
		Reduced:           true,
	}
}
