package consolidate

import (
	"fmt"
	"strings"

	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/risk"
)

// JobFindings is one completed job's contribution to consolidation.
type JobFindings struct {
	JobType  models.JobType
	Findings []models.StructuredFinding
}

// Input is the completed-jobs snapshot consolidation runs over.
type Input struct {
	RequestID   string
	CompanyName string
	Directors   []string
	Jobs        []JobFindings
}

// Consolidate merges every completed job's findings into one entity-centric
// view and recomputes the overall risk assessment over the union. It is a
// pure function of its input: the same snapshot always yields a structurally
// equal result, so racing triggers are harmless.
func Consolidate(in Input) *models.ConsolidatedFindings {
	cf := &models.ConsolidatedFindings{
		RequestID: in.RequestID,
		PrimaryEntity: models.EntityAnalysis{
			Name:     in.CompanyName,
			Findings: []models.StructuredFinding{},
		},
		Directors:         []models.EntityAnalysis{},
		Subsidiaries:      []string{},
		Associates:        []string{},
		RegulatoryHistory: []models.StructuredFinding{},
		LitigationHistory: []models.StructuredFinding{},
	}

	// Director buckets keep the profile's listing order; unattributed director
	// findings collect in a trailing bucket.
	directorIdx := make(map[string]int, len(in.Directors))
	for _, name := range in.Directors {
		directorIdx[name] = -1
	}
	var unattributed []models.StructuredFinding

	for _, job := range in.Jobs {
		for _, f := range job.Findings {
			cf.PrimaryEntity.Findings = append(cf.PrimaryEntity.Findings, f)

			switch job.JobType {
			case models.JobDirectors:
				if mentionsDirector(f) {
					name := matchDirector(f, in.Directors)
					if name == "" {
						unattributed = append(unattributed, f)
						break
					}
					idx, seen := directorIdx[name]
					if !seen || idx == -1 {
						cf.Directors = append(cf.Directors, models.EntityAnalysis{
							Name: name, Role: "Director", Findings: []models.StructuredFinding{},
						})
						directorIdx[name] = len(cf.Directors) - 1
						idx = directorIdx[name]
					}
					cf.Directors[idx].Findings = append(cf.Directors[idx].Findings, f)
				}
			case models.JobLegal:
				cf.LitigationHistory = append(cf.LitigationHistory, f)
			case models.JobRegulatory:
				cf.RegulatoryHistory = append(cf.RegulatoryHistory, f)
			}
		}
	}
	if len(unattributed) > 0 {
		cf.Directors = append(cf.Directors, models.EntityAnalysis{
			Name: "Board (unattributed)", Role: "Director", Findings: unattributed,
		})
	}

	cf.Assessment = assess(in, cf.PrimaryEntity.Findings)
	return cf
}

// mentionsDirector is a best-effort substring classification, not a
// guaranteed-exclusive partition: a finding can land in a director bucket and
// still appear in the primary list.
func mentionsDirector(f models.StructuredFinding) bool {
	if f.Category == models.CategoryGovernance {
		return true
	}
	text := strings.ToLower(f.Title + " " + string(f.Category))
	return strings.Contains(text, "director")
}

func matchDirector(f models.StructuredFinding, directors []string) string {
	text := strings.ToLower(f.Title + " " + f.Description)
	for _, name := range directors {
		if name != "" && strings.Contains(text, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func assess(in Input, findings []models.StructuredFinding) models.ComprehensiveRiskAssessment {
	score := risk.Score(findings, nil)
	level := risk.Level(findings)

	a := models.ComprehensiveRiskAssessment{
		OverallRiskLevel:           level,
		PrimaryRiskFactors:         riskFactors(findings, 7),
		MitigatingFactors:          mitigatingFactors(findings, 5),
		DataCompleteness:           completeness(in.Jobs),
		RequiresImmediateAttention: risk.RequiresImmediateAttention(score, findings, nil),
		FollowUpRequired:           followUps(findings),
	}
	a.ConfidenceLevel = confidenceLevel(a.DataCompleteness, len(findings))
	return a
}

// riskFactors lists the most severe findings' titles, severity-major then
// input order, capped at n.
func riskFactors(findings []models.StructuredFinding, n int) []string {
	ordered := []string{}
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium} {
		for _, f := range findings {
			if f.Severity == sev && len(ordered) < n {
				ordered = append(ordered, fmt.Sprintf("[%s] %s", f.Severity, f.Title))
			}
		}
	}
	return ordered
}

func mitigatingFactors(findings []models.StructuredFinding, n int) []string {
	out := []string{}
	resolved := 0
	for _, f := range findings {
		if f.Status == models.FindingResolved {
			resolved++
			if len(out) < n-1 {
				out = append(out, fmt.Sprintf("Resolved: %s", f.Title))
			}
		}
	}
	hasCritical := false
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			hasCritical = true
			break
		}
	}
	if !hasCritical && len(out) < n {
		out = append(out, "No critical findings identified")
	}
	return out
}

func followUps(findings []models.StructuredFinding) []string {
	out := []string{}
	for _, f := range findings {
		if f.ActionRequired && len(out) < 5 {
			out = append(out, fmt.Sprintf("Verify status of: %s", f.Title))
		}
	}
	return out
}

// completeness is the share of core job types present in the snapshot.
func completeness(jobs []JobFindings) int {
	present := map[models.JobType]bool{}
	for _, j := range jobs {
		present[j.JobType] = true
	}
	core := models.CoreJobTypes()
	count := 0
	for _, jt := range core {
		if present[jt] {
			count++
		}
	}
	return count * 100 / len(core)
}

func confidenceLevel(completeness, findingCount int) string {
	switch {
	case completeness >= 75 && findingCount > 0:
		return "High"
	case completeness >= 50:
		return "Medium"
	default:
		return "Low"
	}
}
