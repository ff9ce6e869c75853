// Package regulatory derives SR 11-7 style model risk ratings from the
// pipeline's quality and training artifacts.
package regulatory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/models"
)

const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// Assessment is the SR 11-7 risk rating for one use case, with the
// factors that produced it.
type Assessment struct {
	UseCaseKey       string   `json:"use_case_key"`
	Label            string   `json:"label"`
	Domain           string   `json:"domain"`
	RiskTier         string   `json:"risk_tier"`
	Factors          []string `json:"factors"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	DataQualityScore *float64 `json:"data_quality_score,omitempty"`
}

// InventoryEntry is one row of the model inventory.
type InventoryEntry struct {
	UseCaseKey string `json:"use_case_key"`
	Label      string `json:"label"`
	Category   string `json:"category"`
	Domain     string `json:"domain"`
	RiskTier   string `json:"risk_tier"`
	HasModel   bool   `json:"has_model"`
}

// ComplianceSummary aggregates the inventory by tier.
type ComplianceSummary struct {
	TotalModels int            `json:"total_models"`
	ByTier      map[string]int `json:"by_tier"`
	HighRisk    []string       `json:"high_risk_use_cases"`
}

// sensitiveDomains always rate high under SR 11-7 regardless of metrics.
var sensitiveDomains = map[string]bool{"fraud": true, "aml": true}

type Service struct {
	cfg    *common.Config
	logger arbor.ILogger
}

func NewService(cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// Assess rates one use case. Domain sensitivity dominates; metric
// thresholds escalate the remainder.
func (s *Service) Assess(ctx context.Context, useCaseKey string) (*Assessment, error) {
	uc, ok := models.FindUseCase(useCaseKey)
	if !ok {
		return nil, apperr.NotFound("unknown use case %q", useCaseKey)
	}

	assessment := &Assessment{
		UseCaseKey: uc.Key,
		Label:      uc.Label,
		Domain:     uc.Domain,
		RiskTier:   RiskLow,
	}
	s.loadMetrics(uc.Key, assessment)

	if sensitiveDomains[uc.Domain] {
		assessment.RiskTier = RiskHigh
		assessment.Factors = append(assessment.Factors, "domain "+uc.Domain+" is regulatorily sensitive")
	}

	if assessment.Accuracy != nil {
		switch {
		case *assessment.Accuracy < 0.85:
			assessment.escalate(RiskHigh, "accuracy below 0.85")
		case *assessment.Accuracy < 0.92:
			assessment.escalate(RiskMedium, "accuracy below 0.92")
		}
	}
	if assessment.DataQualityScore != nil {
		switch {
		case *assessment.DataQualityScore < 80:
			assessment.escalate(RiskHigh, "data quality score below 80")
		case *assessment.DataQualityScore < 90:
			assessment.escalate(RiskMedium, "data quality score below 90")
		}
	}
	return assessment, nil
}

// Inventory rates every registered use case.
func (s *Service) Inventory(ctx context.Context) ([]InventoryEntry, error) {
	entries := make([]InventoryEntry, 0, len(models.DefaultUseCases))
	for _, uc := range models.DefaultUseCases {
		assessment, err := s.Assess(ctx, uc.Key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, InventoryEntry{
			UseCaseKey: uc.Key,
			Label:      uc.Label,
			Category:   uc.Category,
			Domain:     uc.Domain,
			RiskTier:   assessment.RiskTier,
			HasModel:   assessment.Accuracy != nil,
		})
	}
	return entries, nil
}

// Compliance aggregates the inventory into tier counts.
func (s *Service) Compliance(ctx context.Context) (*ComplianceSummary, error) {
	inventory, err := s.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	summary := &ComplianceSummary{
		TotalModels: len(inventory),
		ByTier:      map[string]int{RiskHigh: 0, RiskMedium: 0, RiskLow: 0},
	}
	for _, entry := range inventory {
		summary.ByTier[entry.RiskTier]++
		if entry.RiskTier == RiskHigh {
			summary.HighRisk = append(summary.HighRisk, entry.UseCaseKey)
		}
	}
	return summary, nil
}

func (s *Service) loadMetrics(useCaseKey string, assessment *Assessment) {
	dir := filepath.Join(s.cfg.PreprocessingOutputDir(), useCaseKey)

	var summary struct {
		DataQualityScore *float64 `json:"data_quality_score"`
	}
	if readJSON(filepath.Join(dir, "summary.json"), &summary) {
		assessment.DataQualityScore = summary.DataQualityScore
	}

	var training struct {
		Accuracy *float64 `json:"accuracy"`
	}
	if readJSON(filepath.Join(dir, "training_results.json"), &training) {
		assessment.Accuracy = training.Accuracy
	}
}

// escalate raises the tier, never lowers it.
func (a *Assessment) escalate(tier, factor string) {
	rank := map[string]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	if rank[tier] > rank[a.RiskTier] {
		a.RiskTier = tier
	}
	a.Factors = append(a.Factors, factor)
}

func readJSON(path string, out interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
