package rag

import (
	"regexp"
	"strings"

	"github.com/ternarybob/trutina/internal/models"
)

var (
	accountNumberPattern = regexp.MustCompile(`\b\d{8,16}\b`)
	amountPattern        = regexp.MustCompile(`\$\s?[\d,]+(?:\.\d+)?`)
	datePattern          = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
)

var intentKeywords = map[models.QueryIntent][]string{
	models.IntentComparative: {"compare", "versus", "vs", "difference", "better", "worse", "against"},
	models.IntentProcedural:  {"how do i", "how to", "steps", "process", "procedure", "workflow"},
	models.IntentAnalytical:  {"why", "how", "analyze", "analysis", "explain", "trend", "driver", "impact"},
	models.IntentFactual:     {"what", "who", "when", "where", "which", "define", "list"},
}

// intentOrder fixes precedence: comparative and procedural phrasing beats
// the generic factual question words they often contain.
var intentOrder = []models.QueryIntent{
	models.IntentComparative,
	models.IntentProcedural,
	models.IntentAnalytical,
	models.IntentFactual,
}

var domainTagKeywords = map[string][]string{
	"fraud":       {"fraud", "fraudulent", "chargeback", "scam", "suspicious transaction"},
	"credit":      {"credit", "score", "loan", "lending", "underwriting", "approval"},
	"aml":         {"aml", "money laundering", "sanctions", "kyc", "structuring"},
	"collections": {"collection", "collections", "delinquent", "recovery", "past due"},
	"governance":  {"governance", "compliance", "regulatory", "audit", "model risk", "sr 11-7"},
}

var rewritePrefix = map[models.QueryIntent]string{
	models.IntentFactual:     "Provide a direct factual answer: ",
	models.IntentAnalytical:  "Analyze and explain: ",
	models.IntentComparative: "Compare the options in: ",
	models.IntentProcedural:  "Describe the procedure for: ",
	models.IntentGeneral:     "",
}

// AnalyzeQuery classifies intent by keyword, extracts entities and domain
// tags with regexes, derives metadata filters and rewrites the query with
// an intent-appropriate prefix. Fully deterministic.
func AnalyzeQuery(query string) models.QueryAnalysis {
	lower := strings.ToLower(query)

	intent := models.IntentGeneral
	for _, candidate := range intentOrder {
		if containsAny(lower, intentKeywords[candidate]) {
			intent = candidate
			break
		}
	}

	entities := make(map[string][]string)
	if accounts := accountNumberPattern.FindAllString(query, -1); len(accounts) > 0 {
		entities["account_numbers"] = accounts
	}
	if amounts := amountPattern.FindAllString(query, -1); len(amounts) > 0 {
		entities["amounts"] = amounts
	}
	if dates := datePattern.FindAllString(query, -1); len(dates) > 0 {
		entities["dates"] = dates
	}

	tags := make([]string, 0)
	for _, tag := range []string{"fraud", "credit", "aml", "collections", "governance"} {
		if containsAny(lower, domainTagKeywords[tag]) {
			tags = append(tags, tag)
		}
	}

	filters := make(map[string]string)
	if len(tags) == 1 {
		// a single unambiguous domain narrows the search
		filters["domain"] = tags[0]
	}

	analysis := models.QueryAnalysis{
		Intent:         intent,
		DomainTags:     tags,
		RewrittenQuery: rewritePrefix[intent] + query,
	}
	if len(entities) > 0 {
		analysis.Entities = entities
	}
	if len(filters) > 0 {
		analysis.Filters = filters
	}
	return analysis
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
