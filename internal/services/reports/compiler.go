// Package reports compiles per-use-case pipeline artifacts into
// exportable documents.
package reports

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

// sectionOrder fixes the artifact read order and the section order of
// every rendered report.
var sectionOrder = []string{
	"summary",
	"full_report",
	"column_profiles",
	"feature_engineering",
	"outliers",
	"target_distribution",
	"correlations",
	"training_results",
}

// sectionTitles maps artifact names to human headings.
var sectionTitles = map[string]string{
	"summary":             "Summary",
	"full_report":         "Full Report",
	"column_profiles":     "Column Profiles",
	"feature_engineering": "Feature Engineering",
	"outliers":            "Outliers",
	"target_distribution": "Target Distribution",
	"correlations":        "Correlations",
	"training_results":    "Training Results",
}

// Compiled is the merged artifact structure for one use case. Sections
// holds only the artifacts that existed on disk.
type Compiled struct {
	UseCaseKey string                     `json:"use_case_key"`
	Label      string                     `json:"label"`
	Sections   map[string]json.RawMessage `json:"sections"`
	Present    []string                   `json:"present"`
}

// compile reads the artifact files of one use-case directory in order.
// Missing or unreadable files are tolerated; a use case with no artifacts
// at all is NotFound.
func (s *Service) compile(useCaseKey string) (*Compiled, error) {
	if !models.ValidUseCaseKey(useCaseKey) {
		return nil, apperr.Validation("invalid use case key")
	}
	dir := filepath.Join(s.cfg.PreprocessingOutputDir(), useCaseKey)

	compiled := &Compiled{
		UseCaseKey: useCaseKey,
		Label:      useCaseKey,
		Sections:   make(map[string]json.RawMessage),
	}
	if uc, ok := models.FindUseCase(useCaseKey); ok {
		compiled.Label = uc.Label
	}

	for _, section := range sectionOrder {
		data, err := os.ReadFile(filepath.Join(dir, section+".json"))
		if err != nil {
			continue
		}
		if !json.Valid(data) {
			s.logger.Warn().Str("use_case", useCaseKey).Str("section", section).
				Msg("Skipping malformed artifact file")
			continue
		}
		compiled.Sections[section] = json.RawMessage(data)
		compiled.Present = append(compiled.Present, section)
	}

	if len(compiled.Present) == 0 {
		return nil, apperr.NotFound("no report artifacts for use case %s", useCaseKey)
	}
	return compiled, nil
}
