package models

import (
	"fmt"
	"time"
)

// AlertOperators are the comparison operators allowed in alert rules.
var AlertOperators = map[string]bool{
	">": true, "<": true, "=": true, ">=": true, "<=": true, "!=": true,
}

// AlertMetrics is the whitelist of metrics an alert rule may reference.
var AlertMetrics = map[string]bool{
	"accuracy":           true,
	"precision":          true,
	"recall":             true,
	"f1_score":           true,
	"data_quality_score": true,
	"roc_auc":            true,
	"psi":                true,
}

// AlertSeverities are the allowed severities.
var AlertSeverities = map[string]bool{
	"critical": true, "warning": true, "info": true,
}

// Alert is a threshold rule evaluated against preprocessing and training
// artifacts. UseCase is "all" or a specific use-case key.
type Alert struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Metric        string     `json:"metric"`
	Threshold     float64    `json:"threshold"`
	Operator      string     `json:"operator"`
	UseCase       string     `json:"uc_id"`
	Severity      string     `json:"severity"`
	Enabled       bool       `json:"enabled"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Validate checks the rule against the metric/operator/severity whitelists.
func (a *Alert) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("alert name is required")
	}
	if !AlertMetrics[a.Metric] {
		return fmt.Errorf("metric %q is not in the allowed set", a.Metric)
	}
	if !AlertOperators[a.Operator] {
		return fmt.Errorf("operator %q is not one of >, <, =, >=, <=, !=", a.Operator)
	}
	if !AlertSeverities[a.Severity] {
		return fmt.Errorf("severity %q must be critical, warning or info", a.Severity)
	}
	if a.UseCase != "all" && !ValidUseCaseKey(a.UseCase) {
		return fmt.Errorf("uc_id must be \"all\" or a valid use case key")
	}
	return nil
}

// Matches evaluates the rule against a metric value.
func (a *Alert) Matches(value float64) bool {
	switch a.Operator {
	case ">":
		return value > a.Threshold
	case "<":
		return value < a.Threshold
	case "=":
		return value == a.Threshold
	case ">=":
		return value >= a.Threshold
	case "<=":
		return value <= a.Threshold
	case "!=":
		return value != a.Threshold
	}
	return false
}
