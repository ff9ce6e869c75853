package models

import "time"

// PreprocessingReport is the per-use-case analysis artifact produced by the
// preprocessing stage. It is persisted both to a run-indexed SQL table and as
// JSON files under preprocessing_output/<use_case_key>/.
type PreprocessingReport struct {
	UseCaseKey            string                 `json:"use_case_key"`
	Label                 string                 `json:"label"`
	DataQualityScore      float64                `json:"data_quality_score"`
	ColumnProfiles        []ColumnProfile        `json:"column_profiles,omitempty"`
	OutlierSummary        map[string]interface{} `json:"outlier_summary,omitempty"`
	CorrelationTopPairs   []CorrelationPair      `json:"correlation_top_pairs,omitempty"`
	TargetDistribution    map[string]int         `json:"target_distribution,omitempty"`
	NormalizationParams   map[string][2]float64  `json:"normalization_params,omitempty"`
	StandardizationParams map[string][2]float64  `json:"standardization_params,omitempty"`
	FeatureSuggestions    []string               `json:"feature_engineering_suggestions,omitempty"`
	RunTimestamp          time.Time              `json:"run_timestamp"`
	ElapsedSeconds        float64                `json:"elapsed_seconds"`
}

// CorrelationPair is one entry of the top correlated column pairs.
type CorrelationPair struct {
	ColumnA     string  `json:"column_a"`
	ColumnB     string  `json:"column_b"`
	Correlation float64 `json:"correlation"`
}

// Text2SQLEntry is one row of the text2sql history table.
type Text2SQLEntry struct {
	ID              int64     `json:"id"`
	NaturalLanguage string    `json:"natural_language"`
	GeneratedSQL    string    `json:"generated_sql"`
	Executed        bool      `json:"executed"`
	RowCount        int       `json:"row_count"`
	CreatedAt       time.Time `json:"created_at"`
}
