package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateScoresBounded(t *testing.T) {
	scores := Evaluate(
		"what is the fraud loss rate",
		"The fraud loss rate is 2.3 percent. It has declined for two quarters.",
		"The fraud loss rate is 2.3 percent. It has declined for two consecutive quarters across all regions.")

	for name, score := range map[string]float64{
		"relevance":     scores.Relevance,
		"groundedness":  scores.Groundedness,
		"completeness":  scores.Completeness,
		"hallucination": scores.Hallucination,
		"coherence":     scores.Coherence,
	} {
		assert.GreaterOrEqual(t, score, 0.0, name)
		assert.LessOrEqual(t, score, 1.0, name)
	}

	assert.InDelta(t, 1.0, scores.Groundedness+scores.Hallucination, 1e-9,
		"hallucination is defined as 1 - groundedness")
}

func TestGroundedResponseScoresHigh(t *testing.T) {
	context := "Quarterly fraud losses totaled 4.2 million dollars. Chargebacks drove most of the increase."
	grounded := Evaluate("fraud losses", "Fraud losses totaled 4.2 million dollars.", context)
	fabricated := Evaluate("fraud losses", "Martian colonists stole seventeen spaceships yesterday evening.", context)

	assert.Greater(t, grounded.Groundedness, fabricated.Groundedness)
	assert.Less(t, grounded.Hallucination, fabricated.Hallucination)
}

func TestEmptyResponseScoresZero(t *testing.T) {
	scores := Evaluate("anything", "", "some context")
	assert.Equal(t, 0.0, scores.Relevance)
	assert.Equal(t, 0.0, scores.Groundedness)
	assert.Equal(t, 0.0, scores.Coherence)
	assert.Equal(t, 1.0, scores.Hallucination)
}

func TestCoherencePrefersWellFormedSentences(t *testing.T) {
	tidy := Evaluate("q", "The model performed well. Accuracy held steady. Recall improved slightly.", "")
	messy := Evaluate("q", "model ok   maybe good who knows accuracy???? recall", "")

	assert.Greater(t, tidy.Coherence, messy.Coherence)
}
