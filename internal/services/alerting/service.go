// Package alerting evaluates threshold rules against the metric artifacts
// the pipeline writes under preprocessing_output.
package alerting

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

// Firing is one matched alert rule with the value that tripped it.
type Firing struct {
	AlertID   int64   `json:"alert_id"`
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Operator  string  `json:"operator"`
	UseCase   string  `json:"uc_id"`
	Severity  string  `json:"severity"`
}

type Service struct {
	alerts interfaces.AlertStorage
	audit  interfaces.AuditStorage
	cfg    *common.Config
	logger arbor.ILogger
}

func NewService(alerts interfaces.AlertStorage, audit interfaces.AuditStorage, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{alerts: alerts, audit: audit, cfg: cfg, logger: logger}
}

// Check walks every use-case directory under preprocessing_output, loads
// its metric artifacts and evaluates the enabled rules. Firing rules get
// last_triggered stamped and an audit entry appended.
func (s *Service) Check(ctx context.Context) ([]Firing, error) {
	rules, err := s.alerts.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	metricsByUseCase := s.collectMetrics()
	now := time.Now().UTC()

	var firings []Firing
	for _, rule := range rules {
		for useCase, metrics := range metricsByUseCase {
			if rule.UseCase != "all" && rule.UseCase != useCase {
				continue
			}
			value, present := metrics[rule.Metric]
			if !present {
				continue
			}
			if !rule.Matches(value) {
				continue
			}

			firings = append(firings, Firing{
				AlertID:   rule.ID,
				Name:      rule.Name,
				Metric:    rule.Metric,
				Value:     value,
				Threshold: rule.Threshold,
				Operator:  rule.Operator,
				UseCase:   useCase,
				Severity:  rule.Severity,
			})
			if err := s.alerts.MarkTriggered(ctx, rule.ID, now); err != nil {
				s.logger.Warn().Int64("alert_id", rule.ID).Err(err).Msg("Failed to stamp last_triggered")
			}
			if s.audit != nil {
				entry := &models.AuditEntry{
					EntryType: models.AuditWarning,
					User:      "system",
					Action:    "alert_triggered",
					Detail:    rule.Name + " fired for " + useCase,
				}
				if err := s.audit.Append(ctx, entry); err != nil {
					s.logger.Warn().Err(err).Msg("Failed to audit alert firing")
				}
			}
			s.logger.Warn().Str("alert", rule.Name).Str("use_case", useCase).
				Str("metric", rule.Metric).Float64("value", value).
				Float64("threshold", rule.Threshold).Msg("Alert rule fired")
		}
	}
	return firings, nil
}

// collectMetrics merges summary.json and training_results.json per use
// case into a flat metric map. Unreadable files are skipped.
func (s *Service) collectMetrics() map[string]map[string]float64 {
	root := s.cfg.PreprocessingOutputDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		s.logger.Debug().Err(err).Msg("No preprocessing output to evaluate alerts against")
		return nil
	}

	out := make(map[string]map[string]float64)
	for _, entry := range entries {
		if !entry.IsDir() || !models.ValidUseCaseKey(entry.Name()) {
			continue
		}
		metrics := make(map[string]float64)
		dir := filepath.Join(root, entry.Name())

		var summary struct {
			DataQualityScore *float64 `json:"data_quality_score"`
		}
		if readJSON(filepath.Join(dir, "summary.json"), &summary) && summary.DataQualityScore != nil {
			metrics["data_quality_score"] = *summary.DataQualityScore
		}

		var training struct {
			Accuracy  *float64 `json:"accuracy"`
			Precision *float64 `json:"precision"`
			Recall    *float64 `json:"recall"`
			F1        *float64 `json:"f1"`
			ROCAUC    *float64 `json:"roc_auc"`
			PSI       *float64 `json:"psi"`
		}
		if readJSON(filepath.Join(dir, "training_results.json"), &training) {
			putMetric(metrics, "accuracy", training.Accuracy)
			putMetric(metrics, "precision", training.Precision)
			putMetric(metrics, "recall", training.Recall)
			putMetric(metrics, "f1_score", training.F1)
			putMetric(metrics, "roc_auc", training.ROCAUC)
			putMetric(metrics, "psi", training.PSI)
		}

		if len(metrics) > 0 {
			out[entry.Name()] = metrics
		}
	}
	return out
}

func putMetric(metrics map[string]float64, name string, value *float64) {
	if value != nil {
		metrics[name] = *value
	}
}

func readJSON(path string, out interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
