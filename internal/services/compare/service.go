// Package compare aggregates per-use-case pipeline metrics into
// portfolio, department and business-case views.
package compare

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/models"
)

// UseCaseMetrics is the flattened metric row of one use case.
type UseCaseMetrics struct {
	UseCaseKey       string   `json:"use_case_key"`
	Label            string   `json:"label"`
	Category         string   `json:"category"`
	Domain           string   `json:"domain"`
	DataQualityScore *float64 `json:"data_quality_score,omitempty"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	F1               *float64 `json:"f1,omitempty"`
	HasArtifacts     bool     `json:"has_artifacts"`
}

// Portfolio is every use case's metric row plus portfolio-level means.
type Portfolio struct {
	UseCases     []UseCaseMetrics `json:"use_cases"`
	MeanQuality  *float64         `json:"mean_quality,omitempty"`
	MeanAccuracy *float64         `json:"mean_accuracy,omitempty"`
}

// DepartmentSummary averages metrics per use-case category.
type DepartmentSummary struct {
	Category     string   `json:"category"`
	UseCases     int      `json:"use_cases"`
	WithModels   int      `json:"with_models"`
	MeanQuality  *float64 `json:"mean_quality,omitempty"`
	MeanAccuracy *float64 `json:"mean_accuracy,omitempty"`
}

// BusinessCase is a deterministic value estimate for one use case,
// derived from its accuracy against the domain's annual exposure
// assumption.
type BusinessCase struct {
	UseCaseKey         string   `json:"use_case_key"`
	Label              string   `json:"label"`
	Domain             string   `json:"domain"`
	Accuracy           *float64 `json:"accuracy,omitempty"`
	AnnualExposure     float64  `json:"annual_exposure"`
	EstimatedSavings   float64  `json:"estimated_savings"`
	ImplementationCost float64  `json:"implementation_cost"`
	NetBenefit         float64  `json:"net_benefit"`
	Narrative          string   `json:"narrative"`
}

// domainExposure is the assumed annual loss pool a model of that domain
// acts on, in dollars. Used only for relative business-case ranking.
var domainExposure = map[string]float64{
	"fraud":       12_000_000,
	"credit":      25_000_000,
	"aml":         8_000_000,
	"collections": 6_000_000,
	"customer":    4_000_000,
}

const implementationCost = 250_000

type Service struct {
	cfg    *common.Config
	logger arbor.ILogger
}

func NewService(cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// Portfolio builds the metric row of every registered use case.
func (s *Service) Portfolio(ctx context.Context) (*Portfolio, error) {
	portfolio := &Portfolio{}
	var qualitySum, accuracySum float64
	var qualityN, accuracyN int

	for _, uc := range models.DefaultUseCases {
		row := s.metricsFor(uc)
		portfolio.UseCases = append(portfolio.UseCases, row)
		if row.DataQualityScore != nil {
			qualitySum += *row.DataQualityScore
			qualityN++
		}
		if row.Accuracy != nil {
			accuracySum += *row.Accuracy
			accuracyN++
		}
	}
	if qualityN > 0 {
		mean := qualitySum / float64(qualityN)
		portfolio.MeanQuality = &mean
	}
	if accuracyN > 0 {
		mean := accuracySum / float64(accuracyN)
		portfolio.MeanAccuracy = &mean
	}
	return portfolio, nil
}

// SideBySide returns metric rows for the requested use cases, preserving
// request order. Unknown keys refuse.
func (s *Service) SideBySide(ctx context.Context, useCaseKeys []string) ([]UseCaseMetrics, error) {
	if len(useCaseKeys) < 2 {
		return nil, apperr.Validation("side-by-side comparison needs at least two use cases")
	}
	rows := make([]UseCaseMetrics, 0, len(useCaseKeys))
	for _, key := range useCaseKeys {
		uc, ok := models.FindUseCase(key)
		if !ok {
			return nil, apperr.NotFound("unknown use case %q", key)
		}
		rows = append(rows, s.metricsFor(*uc))
	}
	return rows, nil
}

// Departments aggregates the portfolio by category.
func (s *Service) Departments(ctx context.Context) ([]DepartmentSummary, error) {
	type bucket struct {
		count, withModels int
		qualitySum        float64
		qualityN          int
		accuracySum       float64
		accuracyN         int
	}
	buckets := make(map[string]*bucket)

	for _, uc := range models.DefaultUseCases {
		row := s.metricsFor(uc)
		b := buckets[uc.Category]
		if b == nil {
			b = &bucket{}
			buckets[uc.Category] = b
		}
		b.count++
		if row.Accuracy != nil {
			b.withModels++
			b.accuracySum += *row.Accuracy
			b.accuracyN++
		}
		if row.DataQualityScore != nil {
			b.qualitySum += *row.DataQualityScore
			b.qualityN++
		}
	}

	categories := make([]string, 0, len(buckets))
	for category := range buckets {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	out := make([]DepartmentSummary, 0, len(categories))
	for _, category := range categories {
		b := buckets[category]
		summary := DepartmentSummary{
			Category:   category,
			UseCases:   b.count,
			WithModels: b.withModels,
		}
		if b.qualityN > 0 {
			mean := b.qualitySum / float64(b.qualityN)
			summary.MeanQuality = &mean
		}
		if b.accuracyN > 0 {
			mean := b.accuracySum / float64(b.accuracyN)
			summary.MeanAccuracy = &mean
		}
		out = append(out, summary)
	}
	return out, nil
}

// BusinessCaseFor estimates net benefit: savings scale with the model's
// lift over a 0.5 coin-flip baseline applied to the domain exposure.
func (s *Service) BusinessCaseFor(ctx context.Context, useCaseKey string) (*BusinessCase, error) {
	uc, ok := models.FindUseCase(useCaseKey)
	if !ok {
		return nil, apperr.NotFound("unknown use case %q", useCaseKey)
	}
	row := s.metricsFor(*uc)

	exposure := domainExposure[uc.Domain]
	if exposure == 0 {
		exposure = 5_000_000
	}
	bc := &BusinessCase{
		UseCaseKey:         uc.Key,
		Label:              uc.Label,
		Domain:             uc.Domain,
		Accuracy:           row.Accuracy,
		AnnualExposure:     exposure,
		ImplementationCost: implementationCost,
	}
	if row.Accuracy == nil {
		bc.Narrative = "No trained model yet; run the pipeline to quantify the business case."
		bc.NetBenefit = -implementationCost
		return bc, nil
	}

	lift := *row.Accuracy - 0.5
	if lift < 0 {
		lift = 0
	}
	// a model acting on 10% of the exposure pool, scaled by its lift
	bc.EstimatedSavings = exposure * 0.1 * lift * 2
	bc.NetBenefit = bc.EstimatedSavings - implementationCost
	if bc.NetBenefit > 0 {
		bc.Narrative = "Model lift over baseline supports deployment."
	} else {
		bc.Narrative = "Model lift does not yet cover implementation cost."
	}
	return bc, nil
}

func (s *Service) metricsFor(uc models.UseCase) UseCaseMetrics {
	row := UseCaseMetrics{
		UseCaseKey: uc.Key,
		Label:      uc.Label,
		Category:   uc.Category,
		Domain:     uc.Domain,
	}
	dir := filepath.Join(s.cfg.PreprocessingOutputDir(), uc.Key)

	var summary struct {
		DataQualityScore *float64 `json:"data_quality_score"`
	}
	if readJSON(filepath.Join(dir, "summary.json"), &summary) {
		row.DataQualityScore = summary.DataQualityScore
		row.HasArtifacts = true
	}

	var training struct {
		Accuracy *float64 `json:"accuracy"`
		F1       *float64 `json:"f1"`
	}
	if readJSON(filepath.Join(dir, "training_results.json"), &training) {
		row.Accuracy = training.Accuracy
		row.F1 = training.F1
		row.HasArtifacts = true
	}
	return row
}

func readJSON(path string, out interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
