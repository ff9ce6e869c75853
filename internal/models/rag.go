package models

// QueryIntent is the keyword-classified intent of a RAG query.
type QueryIntent string

const (
	IntentFactual     QueryIntent = "factual"
	IntentAnalytical  QueryIntent = "analytical"
	IntentComparative QueryIntent = "comparative"
	IntentProcedural  QueryIntent = "procedural"
	IntentGeneral     QueryIntent = "general"
)

// QueryAnalysis is the pre-retrieval product: intent, extracted entities,
// metadata filters and the rewritten query.
type QueryAnalysis struct {
	Intent         QueryIntent       `json:"intent"`
	Entities       map[string][]string `json:"entities,omitempty"`
	DomainTags     []string          `json:"domain_tags,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	RewrittenQuery string            `json:"rewritten_query"`
}

// SourceRef attributes one context chunk in a RAG answer.
type SourceRef struct {
	Source     string  `json:"source"`
	ChunkID    string  `json:"chunk_id"`
	Relevance  float64 `json:"relevance"`
	Collection string  `json:"collection"`
}

// EvaluationScores are the five answer quality scores, each in [0, 1].
type EvaluationScores struct {
	Relevance     float64 `json:"relevance"`
	Groundedness  float64 `json:"groundedness"`
	Completeness  float64 `json:"completeness"`
	Hallucination float64 `json:"hallucination"`
	Coherence     float64 `json:"coherence"`
}

// RAGResponse is the full answer envelope returned to callers.
type RAGResponse struct {
	Query      string            `json:"query"`
	Response   string            `json:"response"`
	Sources    []SourceRef       `json:"sources"`
	Intent     QueryIntent       `json:"intent"`
	Cached     bool              `json:"cached"`
	NoResults  bool              `json:"no_results,omitempty"`
	Error      string            `json:"error,omitempty"`
	Scores     *EvaluationScores `json:"scores,omitempty"`
	ElapsedMS  float64           `json:"elapsed_ms"`
}
