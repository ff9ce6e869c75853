// Package stats computes on-demand dataset analyses for the admin stats
// endpoints. Every call loads the dataset frame fresh; nothing is cached.
package stats

import (
	"context"
	"math"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/dataframe"
	"github.com/ternarybob/trutina/internal/interfaces"
)

type Service struct {
	datasets interfaces.DatasetStorage
	cfg      *common.Config
	logger   arbor.ILogger
}

func NewService(datasets interfaces.DatasetStorage, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{datasets: datasets, cfg: cfg, logger: logger}
}

func (s *Service) loadFrame(ctx context.Context, datasetID int64) (*dataframe.Frame, error) {
	dataset, err := s.datasets.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return dataframe.LoadCSV(dataset.FilePath, s.cfg.Storage.SampleLimit)
}

// CorrelationPair is one entry of the pairwise Pearson matrix.
type CorrelationPair struct {
	ColumnA     string  `json:"column_a"`
	ColumnB     string  `json:"column_b"`
	Correlation float64 `json:"correlation"`
}

// Correlations computes Pearson correlation for every numeric column pair,
// sorted by absolute strength.
func (s *Service) Correlations(ctx context.Context, datasetID int64) ([]CorrelationPair, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	numeric := frame.NumericColumns()
	if len(numeric) < 2 {
		return nil, apperr.Data("dataset needs at least two numeric columns for correlations")
	}

	columns := make(map[string][]float64, len(numeric))
	for _, name := range numeric {
		columns[name] = frame.NumericColumn(name)
	}

	var pairs []CorrelationPair
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			r := pearson(columns[numeric[i]], columns[numeric[j]])
			pairs = append(pairs, CorrelationPair{
				ColumnA:     numeric[i],
				ColumnB:     numeric[j],
				Correlation: r,
			})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Correlation) > math.Abs(pairs[j].Correlation)
	})
	return pairs, nil
}

// ColumnDistribution summarizes one numeric column.
type ColumnDistribution struct {
	Column    string    `json:"column"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Median    float64   `json:"median"`
	Skewness  float64   `json:"skewness"`
	BinEdges  []float64 `json:"bin_edges"`
	BinCounts []int     `json:"bin_counts"`
}

// Distributions builds a ten-bin histogram plus moments for every numeric
// column.
func (s *Service) Distributions(ctx context.Context, datasetID int64) ([]ColumnDistribution, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	numeric := frame.NumericColumns()
	if len(numeric) == 0 {
		return nil, apperr.Data("dataset has no numeric columns")
	}

	out := make([]ColumnDistribution, 0, len(numeric))
	for _, name := range numeric {
		values := frame.NumericColumn(name)
		dist := ColumnDistribution{Column: name}
		dist.Mean, dist.Std = meanStd(values)
		dist.Min, dist.Max = minMax(values)
		dist.Median = percentile(values, 0.5)
		dist.Skewness = skewness(values, dist.Mean, dist.Std)
		dist.BinEdges, dist.BinCounts = histogram(values, 10)
		out = append(out, dist)
	}
	return out, nil
}

// OutlierSummary reports IQR-fence outliers for one column.
type OutlierSummary struct {
	Column     string  `json:"column"`
	LowerFence float64 `json:"lower_fence"`
	UpperFence float64 `json:"upper_fence"`
	Count      int     `json:"count"`
	Percent    float64 `json:"percent"`
}

// Outliers flags values outside the 1.5 IQR fences per numeric column.
func (s *Service) Outliers(ctx context.Context, datasetID int64) ([]OutlierSummary, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	numeric := frame.NumericColumns()
	if len(numeric) == 0 {
		return nil, apperr.Data("dataset has no numeric columns")
	}

	out := make([]OutlierSummary, 0, len(numeric))
	for _, name := range numeric {
		values := frame.NumericColumn(name)
		q1 := percentile(values, 0.25)
		q3 := percentile(values, 0.75)
		iqr := q3 - q1
		lower := q1 - 1.5*iqr
		upper := q3 + 1.5*iqr

		count := 0
		for _, v := range values {
			if v < lower || v > upper {
				count++
			}
		}
		out = append(out, OutlierSummary{
			Column:     name,
			LowerFence: lower,
			UpperFence: upper,
			Count:      count,
			Percent:    100 * float64(count) / float64(len(values)),
		})
	}
	return out, nil
}

// ClassDistribution is the value frequency of the target column.
type ClassDistribution struct {
	TargetColumn string         `json:"target_column"`
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	Imbalanced   bool           `json:"imbalanced"`
}

// ClassDistributionFor counts target values. The minority share below 10%
// marks the dataset imbalanced.
func (s *Service) ClassDistributionFor(ctx context.Context, datasetID int64, targetColumn string) (*ClassDistribution, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if targetColumn == "" {
		targetColumn = frame.Columns[len(frame.Columns)-1]
	}
	if !frame.HasColumn(targetColumn) {
		return nil, apperr.Validation("target column %q not found in dataset", targetColumn)
	}

	counts := make(map[string]int)
	for _, v := range frame.Column(targetColumn) {
		counts[v]++
	}
	minority := math.MaxInt
	for _, c := range counts {
		if c < minority {
			minority = c
		}
	}
	total := frame.NumRows()
	return &ClassDistribution{
		TargetColumn: targetColumn,
		Counts:       counts,
		Total:        total,
		Imbalanced:   len(counts) > 1 && float64(minority)/float64(total) < 0.1,
	}, nil
}

// FeatureSuggestion is one feature-engineering recommendation.
type FeatureSuggestion struct {
	Column     string `json:"column"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// FeatureEngineering derives transformation suggestions from column shape:
// heavy skew, constant columns, near-duplicate numeric pairs and
// high-cardinality categoricals.
func (s *Service) FeatureEngineering(ctx context.Context, datasetID int64) ([]FeatureSuggestion, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	var suggestions []FeatureSuggestion
	numeric := frame.NumericColumns()
	numericSet := make(map[string]struct{}, len(numeric))
	for _, name := range numeric {
		numericSet[name] = struct{}{}
	}

	for _, name := range numeric {
		values := frame.NumericColumn(name)
		mean, std := meanStd(values)
		if std < 1e-12 {
			suggestions = append(suggestions, FeatureSuggestion{
				Column: name, Suggestion: "drop", Reason: "constant column carries no signal",
			})
			continue
		}
		if skew := skewness(values, mean, std); math.Abs(skew) > 2 {
			suggestions = append(suggestions, FeatureSuggestion{
				Column: name, Suggestion: "log_transform", Reason: "heavy skew",
			})
		}
	}

	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			r := pearson(frame.NumericColumn(numeric[i]), frame.NumericColumn(numeric[j]))
			if math.Abs(r) > 0.95 {
				suggestions = append(suggestions, FeatureSuggestion{
					Column:     numeric[j],
					Suggestion: "drop_correlated",
					Reason:     "near-duplicate of " + numeric[i],
				})
			}
		}
	}

	for _, name := range frame.Columns {
		if _, isNumeric := numericSet[name]; isNumeric {
			continue
		}
		unique := make(map[string]struct{})
		for _, v := range frame.Column(name) {
			unique[v] = struct{}{}
		}
		if len(unique) > 50 {
			suggestions = append(suggestions, FeatureSuggestion{
				Column: name, Suggestion: "hash_encode", Reason: "high-cardinality categorical",
			})
		} else if len(unique) > 1 {
			suggestions = append(suggestions, FeatureSuggestion{
				Column: name, Suggestion: "one_hot_encode", Reason: "low-cardinality categorical",
			})
		}
	}
	return suggestions, nil
}
