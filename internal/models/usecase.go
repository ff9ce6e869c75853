package models

import (
	"fmt"
	"regexp"
)

// useCaseKeyPattern is enforced wherever a use-case key enters a filesystem
// path or SQL identifier.
var useCaseKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,120}$`)

// UseCase is a named ML scenario with a dataset, a target and a pipeline.
// Use cases are registered statically at program start and never destroyed.
type UseCase struct {
	Key          string   `json:"key"`
	Label        string   `json:"label"`
	Category     string   `json:"category"`
	Domain       string   `json:"domain"`
	TargetColumn string   `json:"target_column,omitempty"`
	NumericHints []string `json:"numeric_hints,omitempty"`
}

// Validate checks the use-case key against the allowed pattern.
func (u *UseCase) Validate() error {
	if !useCaseKeyPattern.MatchString(u.Key) {
		return fmt.Errorf("invalid use case key %q: must match %s", u.Key, useCaseKeyPattern.String())
	}
	return nil
}

// ValidUseCaseKey reports whether key is safe for paths and SQL identifiers.
func ValidUseCaseKey(key string) bool {
	return useCaseKeyPattern.MatchString(key)
}

// DefaultUseCases is the static registry of banking use cases. The scheduler
// runs the twelve-stage pipeline for each of these.
var DefaultUseCases = []UseCase{
	{Key: "fraud_detection", Label: "Card Fraud Detection", Category: "risk", Domain: "fraud", TargetColumn: "is_fraud"},
	{Key: "credit_scoring", Label: "Retail Credit Scoring", Category: "lending", Domain: "credit", TargetColumn: "default_flag"},
	{Key: "aml_monitoring", Label: "AML Transaction Monitoring", Category: "compliance", Domain: "aml", TargetColumn: "suspicious"},
	{Key: "collections_priority", Label: "Collections Prioritisation", Category: "operations", Domain: "collections", TargetColumn: "recovered"},
	{Key: "churn_prediction", Label: "Customer Churn Prediction", Category: "retention", Domain: "customer", TargetColumn: "churned"},
	{Key: "loan_approval", Label: "Loan Approval Assist", Category: "lending", Domain: "credit", TargetColumn: "approved"},
}

// FindUseCase looks up a registered use case by key.
func FindUseCase(key string) (*UseCase, bool) {
	for i := range DefaultUseCases {
		if DefaultUseCases[i].Key == key {
			return &DefaultUseCases[i], true
		}
	}
	return nil, false
}
