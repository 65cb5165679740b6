package alert

import (
	"math"
	"regexp"
	"strings"

	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/normalize"
)

// RulesetVersion identifies the active pattern table. Rule order and weights
// are part of this version so alert scoring stays reproducible across
// deployments.
const RulesetVersion = "2025-08"

// MaxAlerts bounds a detection pass; matches beyond the cap are dropped in
// match order.
const MaxAlerts = 10

// evidenceWindow is the number of characters kept around a match as source
// evidence.
const evidenceWindow = 100

// Rule is one severity-tagged pattern in the red-flag table.
type Rule struct {
	Title         string
	Pattern       *regexp.Regexp
	Severity      models.Severity
	Category      string
	Weight        float64
	Corroborating []string
}

// ruleset is immutable after init. Order matters: earlier rules claim their
// matches first and survive truncation.
var ruleset = []Rule{
	{
		Title:         "Money laundering exposure",
		Pattern:       regexp.MustCompile(`(?i)money\s+laundering|hawala|proceeds\s+of\s+crime`),
		Severity:      models.SeverityCritical,
		Category:      "Money Laundering",
		Weight:        3,
		Corroborating: []string{"ed", "enforcement directorate", "pmla", "attachment", "fema"},
	},
	{
		Title:         "Terror financing exposure",
		Pattern:       regexp.MustCompile(`(?i)terror\s+financ\w*|uapa`),
		Severity:      models.SeverityCritical,
		Category:      "Terror Financing",
		Weight:        3,
		Corroborating: []string{"nia", "fatf", "designated"},
	},
	{
		Title:         "Director disqualification",
		Pattern:       regexp.MustCompile(`(?i)director\w*\s+(?:\w+\s+){0,5}disqualif\w*|disqualified\s+director`),
		Severity:      models.SeverityCritical,
		Category:      "Director Disqualification",
		Weight:        3,
		Corroborating: []string{"mca", "din", "section 164", "registrar of companies"},
	},
	{
		Title:         "Insolvency proceedings",
		Pattern:       regexp.MustCompile(`(?i)insolvency|liquidation|winding[\s-]up|corporate\s+debtor|\bcirp\b`),
		Severity:      models.SeverityCritical,
		Category:      "Insolvency",
		Weight:        3,
		Corroborating: []string{"nclt", "ibc", "resolution professional", "committee of creditors"},
	},
	{
		Title:         "Wilful default",
		Pattern:       regexp.MustCompile(`(?i)wilful\s+default\w*|willful\s+default\w*`),
		Severity:      models.SeverityCritical,
		Category:      "Loan Default",
		Weight:        3,
		Corroborating: []string{"rbi", "cibil", "lender", "consortium"},
	},
	{
		Title:         "Fraud allegation",
		Pattern:       regexp.MustCompile(`(?i)\bfraud\w*\b|embezzle\w*|siphon\w*|fund\s+diversion`),
		Severity:      models.SeverityHigh,
		Category:      "Fraud",
		Weight:        2.5,
		Corroborating: []string{"fir", "cbi", "sfio", "chargesheet", "forensic audit"},
	},
	{
		Title:         "Regulatory penalty",
		Pattern:       regexp.MustCompile(`(?i)(?:sebi|rbi|mca|irdai|cci)\s+(?:\w+\s+){0,8}(?:penalt\w*|fine\w*|barred|debarred|banned)`),
		Severity:      models.SeverityHigh,
		Category:      "Regulatory Penalty",
		Weight:        2.5,
		Corroborating: []string{"order", "adjudication", "show cause", "violation"},
	},
	{
		Title:         "Enforcement raid or seizure",
		Pattern:       regexp.MustCompile(`(?i)(?:\bed\b|cbi|income\s+tax|enforcement\s+directorate)\s+(?:\w+\s+){0,6}(?:raid\w*|search\w*|seiz\w*|summons)`),
		Severity:      models.SeverityHigh,
		Category:      "Enforcement Action",
		Weight:        2.5,
		Corroborating: []string{"premises", "documents", "custody", "investigation"},
	},
	{
		Title:         "Loan default or NPA",
		Pattern:       regexp.MustCompile(`(?i)loan\s+default\w*|\bnpa\b|non[\s-]performing\s+asset|debt\s+restructur\w*`),
		Severity:      models.SeverityHigh,
		Category:      "Loan Default",
		Weight:        2.5,
		Corroborating: []string{"bank", "lender", "overdue", "one-time settlement"},
	},
	{
		Title:         "Bribery or corruption",
		Pattern:       regexp.MustCompile(`(?i)briber\w*|corrupt\w*|kickback\w*`),
		Severity:      models.SeverityHigh,
		Category:      "Corruption",
		Weight:        2.5,
		Corroborating: []string{"prevention of corruption", "lokpal", "acb"},
	},
	{
		Title:         "Tax evasion",
		Pattern:       regexp.MustCompile(`(?i)tax\s+evasion|gst\s+(?:fraud|evasion)|bogus\s+invoic\w*`),
		Severity:      models.SeverityMedium,
		Category:      "Tax Evasion",
		Weight:        2,
		Corroborating: []string{"dggi", "show cause", "input tax credit"},
	},
	{
		Title:         "Shell company linkage",
		Pattern:       regexp.MustCompile(`(?i)shell\s+compan\w*|paper\s+compan\w*|benami`),
		Severity:      models.SeverityMedium,
		Category:      "Shell Company",
		Weight:        2,
		Corroborating: []string{"struck off", "layering", "round tripping"},
	},
	{
		Title:         "Auditor concerns",
		Pattern:       regexp.MustCompile(`(?i)auditor\w*\s+(?:\w+\s+){0,4}(?:resign\w*|qualif\w*|disclaim\w*)|qualified\s+opinion`),
		Severity:      models.SeverityMedium,
		Category:      "Governance",
		Weight:        2,
		Corroborating: []string{"going concern", "material misstatement", "internal controls"},
	},
}

// Rules exposes the active ruleset for inspection.
func Rules() []Rule {
	return ruleset
}

// Detection is the output of one pass over raw research text. The auxiliary
// score is advisory only; the finding-based weighted score remains the
// authoritative input to the credit decision.
type Detection struct {
	Alerts         []models.CriticalAlert
	AuxiliaryScore int
	RulesetVersion string
}

// Detect scans raw research text against the ruleset and emits at most
// MaxAlerts critical alerts, kept in match order.
func Detect(text string) Detection {
	d := Detection{RulesetVersion: RulesetVersion}
	if strings.TrimSpace(text) == "" {
		return d
	}

	var weightedSum, weightTotal float64
	for _, rule := range ruleset {
		locs := rule.Pattern.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			window := evidence(text, loc[0], loc[1])
			conf := confidence(rule, window)
			amount := normalize.ParseAmount(window)

			impact := ""
			if amount != nil {
				impact = amount.Text
			}

			if len(d.Alerts) < MaxAlerts {
				d.Alerts = append(d.Alerts, models.CriticalAlert{
					Severity:        rule.Severity,
					Category:        rule.Category,
					Title:           rule.Title,
					Description:     strings.TrimSpace(text[loc[0]:loc[1]]),
					FinancialImpact: impact,
					SourceEvidence:  window,
					Confidence:      conf,
				})
			}

			base := alertBase(rule.Severity)
			weightedSum += base * rule.Weight * float64(conf) / 100
			weightTotal += rule.Weight
		}
	}

	if weightTotal > 0 {
		d.AuxiliaryScore = clamp(int(math.Round(weightedSum / weightTotal)))
	}
	return d
}

func alertBase(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return 95
	case models.SeverityHigh:
		return 75
	default:
		return 50
	}
}

// confidence derives a 0-100 score from match specificity: a monetary amount
// in the evidence window and corroborating keywords nearby both raise it.
func confidence(rule Rule, window string) int {
	conf := 60
	lower := strings.ToLower(window)
	if normalize.ParseAmount(window) != nil {
		conf += 20
	}
	hits := 0
	for _, kw := range rule.Corroborating {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits > 0 {
		conf += 10
	}
	if hits > 1 {
		conf += 5
	}
	return clamp(conf)
}

func evidence(text string, start, end int) string {
	return strings.TrimSpace(evidenceAt(text, start, end))
}

func evidenceAt(text string, start, end int) string {
	lo := start - evidenceWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + evidenceWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
