package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/credrisk/diligence-engine/internal/models"
)

// Crore and lakh in rupees, for amount-tier comparisons.
const (
	Crore = 1e7
	Lakh  = 1e5
)

// categoryKeywords maps lowercase keywords to the closed category enum.
// Checked in order; first hit wins.
var categoryKeywords = []struct {
	keywords []string
	category models.Category
}{
	{[]string{"money laundering", "terror financ", "hawala", "pmla", "financial crime"}, models.CategoryFinCrime},
	{[]string{"criminal", "fir ", "chargesheet", "charge sheet", "prosecution", "arrest"}, models.CategoryCriminal},
	{[]string{"regulat", "sebi", "rbi", "mca", "compliance", "license", "licence"}, models.CategoryRegulatory},
	{[]string{"legal", "litigation", "lawsuit", "court", "nclt", "arbitration", "tribunal", "proceeding"}, models.CategoryLegal},
	{[]string{"fraud", "misconduct", "embezzle", "bribery", "corruption", "default", "npa", "insolven"}, models.CategoryFinConduct},
	{[]string{"governance", "director", "board", "promoter", "audit"}, models.CategoryGovernance},
	{[]string{"operation", "supply", "disruption", "safety", "environment"}, models.CategoryOperational},
	{[]string{"reputation", "media", "news", "controversy", "allegation"}, models.CategoryReputation},
	{[]string{"performance", "revenue", "profit", "loss", "financial result", "growth"}, models.CategoryBusiness},
}

// Category coerces an arbitrary category string to the closed enum,
// defaulting to Other. Never fails.
func Category(raw string) models.Category {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return models.CategoryOther
	}
	for _, c := range []models.Category{
		models.CategoryRegulatory, models.CategoryLegal, models.CategoryFinConduct,
		models.CategoryOperational, models.CategoryGovernance, models.CategoryReputation,
		models.CategoryBusiness, models.CategoryCriminal, models.CategoryFinCrime, models.CategoryOther,
	} {
		if lower == strings.ToLower(string(c)) {
			return c
		}
	}
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return models.CategoryOther
}

// Severity coerces an arbitrary severity string, defaulting to MEDIUM.
func Severity(raw string) models.Severity {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CRITICAL", "SEVERE", "VERY HIGH":
		return models.SeverityCritical
	case "HIGH", "MAJOR", "SERIOUS":
		return models.SeverityHigh
	case "MEDIUM", "MODERATE", "MED":
		return models.SeverityMedium
	case "LOW", "MINOR":
		return models.SeverityLow
	case "INFO", "INFORMATIONAL", "NONE", "NEGLIGIBLE":
		return models.SeverityInfo
	default:
		return models.SeverityMedium
	}
}

// Status coerces an arbitrary status string, defaulting to Unknown.
func Status(raw string) models.FindingStatus {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case lower == "":
		return models.FindingUnknown
	case strings.Contains(lower, "resolv"), strings.Contains(lower, "closed"),
		strings.Contains(lower, "settled"), strings.Contains(lower, "dismissed"):
		return models.FindingResolved
	case strings.Contains(lower, "investigat"), strings.Contains(lower, "inquiry"),
		strings.Contains(lower, "probe"):
		return models.FindingInvestigated
	case strings.Contains(lower, "pending"), strings.Contains(lower, "ongoing hearing"),
		strings.Contains(lower, "sub judice"), strings.Contains(lower, "awaiting"):
		return models.FindingPending
	case strings.Contains(lower, "active"), strings.Contains(lower, "ongoing"),
		strings.Contains(lower, "open"), strings.Contains(lower, "current"):
		return models.FindingActive
	default:
		return models.FindingUnknown
	}
}

var amountPattern = regexp.MustCompile(`(?i)(?:₹|rs\.?\s*|inr\s*|\$|usd\s*)\s*([\d,]+(?:\.\d+)?)\s*(crores?|cr\b|lakhs?|million|mn\b|billion|bn\b)?`)

// ParseAmount extracts the first monetary amount from text, expanding Indian
// units to rupees. Dollar amounts convert at a fixed nominal rate so tier
// comparisons stay deterministic.
func ParseAmount(text string) *models.Amount {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	numStr := strings.ReplaceAll(m[1], ",", "")
	value, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return &models.Amount{Text: strings.TrimSpace(m[0])}
	}

	unit := strings.ToLower(strings.TrimSpace(m[2]))
	switch {
	case strings.HasPrefix(unit, "crore"), unit == "cr":
		value *= Crore
	case strings.HasPrefix(unit, "lakh"):
		value *= Lakh
	case unit == "million", unit == "mn":
		value *= 1e6
	case unit == "billion", unit == "bn":
		value *= 1e9
	}

	currency := "INR"
	if strings.Contains(m[0], "$") || strings.Contains(strings.ToLower(m[0]), "usd") {
		currency = "USD"
		value *= 83 // nominal INR conversion for tier comparison
	}
	return &models.Amount{Text: strings.TrimSpace(m[0]), Value: value, Currency: currency}
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"January 2006",
	"Jan 2006",
	"2006",
}

// Date re-emits a parseable date as a calendar date, otherwise passes the
// input through unchanged.
func Date(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return trimmed
}

func verificationLevel(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "verified", "confirmed":
		return "High"
	case "low", "unverified", "rumour", "rumor":
		return "Low"
	default:
		return "Medium"
	}
}

func timelineImpact(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "immediate"):
		return "Immediate"
	case strings.Contains(lower, "long"):
		return "Long-term"
	default:
		return "Short-term"
	}
}

func riskLevel(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "severe", "critical":
		return "High"
	case "low", "minimal", "negligible":
		return "Low"
	case "":
		return ""
	default:
		return "Medium"
	}
}

func creditImpact(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "negative"), strings.Contains(lower, "adverse"):
		return "Negative"
	case strings.Contains(lower, "positive"):
		return "Positive"
	case lower == "":
		return ""
	default:
		return "Neutral"
	}
}

// Finding standardizes one candidate into the canonical schema. It never
// fails: unrecognized inputs degrade to the safest defaults. action_required
// is derived from the normalized fields, not trusted from input.
func Finding(c models.CandidateFinding) models.StructuredFinding {
	f := models.StructuredFinding{
		ID:          uuid.NewString(),
		Category:    Category(c.Category),
		Severity:    Severity(c.Severity),
		Title:       strings.TrimSpace(c.Title),
		Description: strings.TrimSpace(c.Description),
		Date:        Date(c.Date),
		Source:      strings.TrimSpace(c.Source),
		Status:      Status(c.Status),
		BusinessImpact: models.BusinessImpact{
			FinancialRisk:           riskLevel(c.FinancialRisk),
			OperationalRisk:         riskLevel(c.OperationalRisk),
			ReputationalRisk:        riskLevel(c.ReputationalRisk),
			CreditImpact:            creditImpact(c.CreditImpact),
			ProbabilityOfOccurrence: clampProbability(c.Probability),
		},
		VerificationLevel: verificationLevel(c.VerificationLevel),
		TimelineImpact:    timelineImpact(c.TimelineImpact),
	}
	if f.Title == "" {
		f.Title = "Untitled finding"
	}
	if c.Amount != "" {
		f.Amount = ParseAmount(c.Amount)
	}
	if f.Amount == nil && c.Description != "" {
		f.Amount = ParseAmount(c.Description)
	}
	f.ActionRequired = deriveActionRequired(f)
	return f
}

// Findings normalizes a batch, preserving order.
func Findings(cands []models.CandidateFinding) []models.StructuredFinding {
	out := make([]models.StructuredFinding, 0, len(cands))
	for _, c := range cands {
		out = append(out, Finding(c))
	}
	return out
}

func deriveActionRequired(f models.StructuredFinding) bool {
	if f.Severity == models.SeverityCritical || f.Severity == models.SeverityHigh {
		return true
	}
	switch f.Status {
	case models.FindingActive, models.FindingPending, models.FindingInvestigated:
		return true
	}
	return f.Amount != nil && f.Amount.Value > Crore
}

func clampProbability(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
