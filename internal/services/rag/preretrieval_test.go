package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/trutina/internal/models"
)

func TestIntentClassification(t *testing.T) {
	cases := []struct {
		query  string
		intent models.QueryIntent
	}{
		{"What is the current fraud loss rate?", models.IntentFactual},
		{"Why did delinquency trend up last quarter?", models.IntentAnalytical},
		{"Compare random forest versus gradient boosting here", models.IntentComparative},
		{"How do I rerun the preprocessing pipeline?", models.IntentProcedural},
		{"fraud numbers please", models.IntentGeneral},
	}

	for _, tc := range cases {
		analysis := AnalyzeQuery(tc.query)
		assert.Equal(t, tc.intent, analysis.Intent, "query: %s", tc.query)
	}
}

func TestEntityExtraction(t *testing.T) {
	analysis := AnalyzeQuery("Was account 12345678 charged $1,250.00 on 2026-01-15?")

	assert.Contains(t, analysis.Entities["account_numbers"], "12345678")
	assert.Contains(t, analysis.Entities["amounts"], "$1,250.00")
	assert.Contains(t, analysis.Entities["dates"], "2026-01-15")
}

func TestDomainTagsAndFilters(t *testing.T) {
	fraud := AnalyzeQuery("Show suspicious transaction patterns flagged as fraud")
	assert.Contains(t, fraud.DomainTags, "fraud")
	assert.Equal(t, "fraud", fraud.Filters["domain"])

	// two domains: ambiguous, no filter
	mixed := AnalyzeQuery("Does the fraud model affect credit approval rates?")
	assert.Len(t, mixed.DomainTags, 2)
	assert.Empty(t, mixed.Filters)

	none := AnalyzeQuery("What time is the batch run?")
	assert.Empty(t, none.DomainTags)
	assert.Empty(t, none.Filters)
}

func TestQueryRewrite(t *testing.T) {
	factual := AnalyzeQuery("What is PSI?")
	assert.Equal(t, "Provide a direct factual answer: What is PSI?", factual.RewrittenQuery)

	general := AnalyzeQuery("fraud summary")
	assert.Equal(t, "fraud summary", general.RewrittenQuery)
}
