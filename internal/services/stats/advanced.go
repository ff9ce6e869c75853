package stats

import (
	"context"
	"math"
	"sort"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/dataframe"
)

// ColumnStability reports the Population Stability Index of one column
// between the first and second half of the dataset.
type ColumnStability struct {
	Column string  `json:"column"`
	PSI    float64 `json:"psi"`
	Rating string  `json:"rating"`
}

// Stability splits rows into earlier and later halves and computes PSI per
// numeric column over ten quantile bins. Below 0.1 is stable, below 0.25
// is drifting, above is unstable.
func (s *Service) Stability(ctx context.Context, datasetID int64) ([]ColumnStability, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if frame.NumRows() < 20 {
		return nil, apperr.Data("dataset too small for a stability split, need at least 20 rows")
	}
	numeric := frame.NumericColumns()
	if len(numeric) == 0 {
		return nil, apperr.Data("dataset has no numeric columns")
	}

	half := frame.NumRows() / 2
	out := make([]ColumnStability, 0, len(numeric))
	for _, name := range numeric {
		values := frame.NumericColumn(name)
		psi := populationStabilityIndex(values[:half], values[half:], 10)

		rating := "stable"
		if psi >= 0.25 {
			rating = "unstable"
		} else if psi >= 0.1 {
			rating = "drifting"
		}
		out = append(out, ColumnStability{Column: name, PSI: psi, Rating: rating})
	}
	return out, nil
}

// LeakageFinding flags a feature suspiciously predictive of the target.
type LeakageFinding struct {
	Column      string  `json:"column"`
	Correlation float64 `json:"correlation"`
	Severity    string  `json:"severity"`
}

// Leakage correlates every numeric feature against the encoded target and
// flags near-perfect predictors.
func (s *Service) Leakage(ctx context.Context, datasetID int64, targetColumn string) ([]LeakageFinding, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	target, err := encodedTarget(frame, targetColumn)
	if err != nil {
		return nil, err
	}

	var findings []LeakageFinding
	for _, name := range frame.NumericColumns(targetColumn) {
		r := pearson(frame.NumericColumn(name), target)
		abs := math.Abs(r)
		if abs <= 0.8 {
			continue
		}
		severity := "medium"
		if abs > 0.95 {
			severity = "high"
		}
		findings = append(findings, LeakageFinding{Column: name, Correlation: r, Severity: severity})
	}
	sort.Slice(findings, func(i, j int) bool {
		return math.Abs(findings[i].Correlation) > math.Abs(findings[j].Correlation)
	})
	return findings, nil
}

// CalibrationBin is one reliability-curve point.
type CalibrationBin struct {
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
	Count         int     `json:"count"`
}

// CalibrationReport is the reliability curve plus the Brier score of a
// probability column against a binary target.
type CalibrationReport struct {
	ScoreColumn string           `json:"score_column"`
	Bins        []CalibrationBin `json:"bins"`
	BrierScore  float64          `json:"brier_score"`
}

// Calibration bins predicted probabilities into deciles and compares each
// bin's mean prediction with the observed positive rate.
func (s *Service) Calibration(ctx context.Context, datasetID int64, scoreColumn, targetColumn string) (*CalibrationReport, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if scoreColumn == "" {
		scoreColumn = "score"
	}
	if !frame.HasColumn(scoreColumn) {
		return nil, apperr.Validation("score column %q not found in dataset", scoreColumn)
	}
	target, err := encodedTarget(frame, targetColumn)
	if err != nil {
		return nil, err
	}

	scores := frame.NumericColumn(scoreColumn)
	report := &CalibrationReport{ScoreColumn: scoreColumn}

	brier := 0.0
	for i, p := range scores {
		d := p - target[i]
		brier += d * d
	}
	report.BrierScore = brier / float64(len(scores))

	for b := 0; b < 10; b++ {
		low := float64(b) / 10
		high := float64(b+1) / 10
		sumP, sumY, count := 0.0, 0.0, 0
		for i, p := range scores {
			if p >= low && (p < high || (b == 9 && p <= high)) {
				sumP += p
				sumY += target[i]
				count++
			}
		}
		if count == 0 {
			continue
		}
		report.Bins = append(report.Bins, CalibrationBin{
			MeanPredicted: sumP / float64(count),
			ObservedRate:  sumY / float64(count),
			Count:         count,
		})
	}
	return report, nil
}

// GroupFairness is the positive rate of one protected-attribute group.
type GroupFairness struct {
	Group        string  `json:"group"`
	Count        int     `json:"count"`
	PositiveRate float64 `json:"positive_rate"`
}

// FairnessReport compares positive rates across groups of a categorical
// attribute. Parity gap is max rate minus min rate.
type FairnessReport struct {
	GroupColumn string          `json:"group_column"`
	Groups      []GroupFairness `json:"groups"`
	ParityGap   float64         `json:"parity_gap"`
}

// Fairness computes demographic parity over a grouping column.
func (s *Service) Fairness(ctx context.Context, datasetID int64, groupColumn, targetColumn string) (*FairnessReport, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if groupColumn == "" || !frame.HasColumn(groupColumn) {
		return nil, apperr.Validation("group column %q not found in dataset", groupColumn)
	}
	target, err := encodedTarget(frame, targetColumn)
	if err != nil {
		return nil, err
	}

	groups := frame.Column(groupColumn)
	positives := make(map[string]float64)
	counts := make(map[string]int)
	for i, group := range groups {
		positives[group] += target[i]
		counts[group]++
	}

	report := &FairnessReport{GroupColumn: groupColumn}
	minRate, maxRate := math.Inf(1), math.Inf(-1)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rate := positives[name] / float64(counts[name])
		report.Groups = append(report.Groups, GroupFairness{
			Group: name, Count: counts[name], PositiveRate: rate,
		})
		if rate < minRate {
			minRate = rate
		}
		if rate > maxRate {
			maxRate = rate
		}
	}
	if len(names) > 1 {
		report.ParityGap = maxRate - minRate
	}
	return report, nil
}

// ThresholdCost is the expected cost at one decision threshold.
type ThresholdCost struct {
	Threshold      float64 `json:"threshold"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Cost           float64 `json:"cost"`
}

// CostThresholdReport sweeps decision thresholds and picks the cheapest.
type CostThresholdReport struct {
	ScoreColumn   string          `json:"score_column"`
	FPCost        float64         `json:"fp_cost"`
	FNCost        float64         `json:"fn_cost"`
	Sweep         []ThresholdCost `json:"sweep"`
	BestThreshold float64         `json:"best_threshold"`
}

// CostThreshold evaluates thresholds 0.05..0.95 in 0.05 steps against a
// binary target with asymmetric error costs. Missed positives default to
// five times the cost of false alarms.
func (s *Service) CostThreshold(ctx context.Context, datasetID int64, scoreColumn, targetColumn string, fpCost, fnCost float64) (*CostThresholdReport, error) {
	frame, err := s.loadFrame(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if scoreColumn == "" {
		scoreColumn = "score"
	}
	if !frame.HasColumn(scoreColumn) {
		return nil, apperr.Validation("score column %q not found in dataset", scoreColumn)
	}
	target, err := encodedTarget(frame, targetColumn)
	if err != nil {
		return nil, err
	}
	if fpCost <= 0 {
		fpCost = 1
	}
	if fnCost <= 0 {
		fnCost = 5
	}

	scores := frame.NumericColumn(scoreColumn)
	report := &CostThresholdReport{ScoreColumn: scoreColumn, FPCost: fpCost, FNCost: fnCost}
	bestCost := math.Inf(1)

	for threshold := 0.05; threshold < 1.0; threshold += 0.05 {
		fp, fn := 0, 0
		for i, score := range scores {
			predicted := score >= threshold
			actual := target[i] >= 0.5
			if predicted && !actual {
				fp++
			}
			if !predicted && actual {
				fn++
			}
		}
		cost := float64(fp)*fpCost + float64(fn)*fnCost
		point := ThresholdCost{
			Threshold:      math.Round(threshold*100) / 100,
			FalsePositives: fp,
			FalseNegatives: fn,
			Cost:           cost,
		}
		report.Sweep = append(report.Sweep, point)
		if cost < bestCost {
			bestCost = cost
			report.BestThreshold = point.Threshold
		}
	}
	return report, nil
}

// encodedTarget maps the target column to floats: numeric columns pass
// through, binary string columns map the lexically larger value to 1.
func encodedTarget(frame *dataframe.Frame, targetColumn string) ([]float64, error) {
	if targetColumn == "" {
		targetColumn = frame.Columns[len(frame.Columns)-1]
	}
	if !frame.HasColumn(targetColumn) {
		return nil, apperr.Validation("target column %q not found in dataset", targetColumn)
	}
	if frame.IsNumeric(targetColumn) {
		return frame.NumericColumn(targetColumn), nil
	}

	raw := frame.Column(targetColumn)
	unique := make(map[string]struct{})
	for _, v := range raw {
		unique[v] = struct{}{}
	}
	if len(unique) != 2 {
		return nil, apperr.Data("target column %q must be numeric or binary, found %d distinct values",
			targetColumn, len(unique))
	}
	values := make([]string, 0, 2)
	for v := range unique {
		values = append(values, v)
	}
	sort.Strings(values)

	encoded := make([]float64, len(raw))
	for i, v := range raw {
		if v == values[1] {
			encoded[i] = 1
		}
	}
	return encoded, nil
}
