package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/models"
)

// Export is one rendered report document.
type Export struct {
	UseCaseKey  string `json:"use_case_key"`
	Format      string `json:"format"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

type Service struct {
	cfg    *common.Config
	logger arbor.ILogger
}

func NewService(cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// Compile exposes the merged artifact structure for one use case.
func (s *Service) Compile(ctx context.Context, useCaseKey string) (*Compiled, error) {
	return s.compile(useCaseKey)
}

// Render produces one report in the requested format. Office formats are
// not supported by this build and refuse with a validation error.
func (s *Service) Render(ctx context.Context, format, useCaseKey string) (*Export, error) {
	compiled, err := s.compile(useCaseKey)
	if err != nil {
		return nil, err
	}
	return s.renderCompiled(format, compiled)
}

func (s *Service) renderCompiled(format string, compiled *Compiled) (*Export, error) {
	export := &Export{UseCaseKey: compiled.UseCaseKey, Format: format}
	stamp := time.Now().UTC().Format("20060102")

	switch format {
	case "markdown":
		export.Data = []byte(renderMarkdown(compiled))
		export.ContentType = "text/markdown; charset=utf-8"
		export.FileName = fmt.Sprintf("%s_report_%s.md", compiled.UseCaseKey, stamp)
	case "html":
		html, err := renderHTML(compiled)
		if err != nil {
			return nil, err
		}
		export.Data = []byte(html)
		export.ContentType = "text/html; charset=utf-8"
		export.FileName = fmt.Sprintf("%s_report_%s.html", compiled.UseCaseKey, stamp)
	case "pdf":
		data, err := renderPDF(compiled)
		if err != nil {
			return nil, err
		}
		export.Data = data
		export.ContentType = "application/pdf"
		export.FileName = fmt.Sprintf("%s_report_%s.pdf", compiled.UseCaseKey, stamp)
	case "excel", "word", "pptx":
		return nil, apperr.Validation("format %s is not supported", format)
	default:
		return nil, apperr.Validation("unknown report format %q", format)
	}
	return export, nil
}

// ExecutiveSummary renders a cross-use-case overview from the summary and
// training artifacts of every use case that has them.
func (s *Service) ExecutiveSummary(ctx context.Context, format string) (*Export, error) {
	overview := &Compiled{
		UseCaseKey: "executive_summary",
		Label:      "Executive Summary",
		Sections:   make(map[string]json.RawMessage),
	}

	type line struct {
		UseCase          string   `json:"use_case"`
		DataQualityScore *float64 `json:"data_quality_score,omitempty"`
		Accuracy         *float64 `json:"accuracy,omitempty"`
		F1               *float64 `json:"f1,omitempty"`
	}
	var lines []line

	for _, uc := range models.DefaultUseCases {
		compiled, err := s.compile(uc.Key)
		if err != nil {
			continue
		}
		entry := line{UseCase: uc.Label}
		if raw, ok := compiled.Sections["summary"]; ok {
			var summary struct {
				DataQualityScore *float64 `json:"data_quality_score"`
			}
			if json.Unmarshal(raw, &summary) == nil {
				entry.DataQualityScore = summary.DataQualityScore
			}
		}
		if raw, ok := compiled.Sections["training_results"]; ok {
			var training struct {
				Accuracy *float64 `json:"accuracy"`
				F1       *float64 `json:"f1"`
			}
			if json.Unmarshal(raw, &training) == nil {
				entry.Accuracy = training.Accuracy
				entry.F1 = training.F1
			}
		}
		lines = append(lines, entry)
	}
	if len(lines) == 0 {
		return nil, apperr.NotFound("no use case has report artifacts yet")
	}

	encoded, err := json.Marshal(map[string]interface{}{"use_cases": lines})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindModel, "failed to build executive summary")
	}
	overview.Sections["summary"] = encoded
	overview.Present = []string{"summary"}
	return s.renderCompiled(format, overview)
}

// Batch renders every use case with artifacts and returns the exports.
func (s *Service) Batch(ctx context.Context, format string) ([]*Export, error) {
	if format != "markdown" && format != "html" && format != "pdf" {
		return nil, apperr.Validation("format %s is not supported", format)
	}

	var exports []*Export
	for _, uc := range models.DefaultUseCases {
		export, err := s.Render(ctx, format, uc.Key)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue
			}
			return nil, err
		}
		exports = append(exports, export)
	}
	if len(exports) == 0 {
		return nil, apperr.NotFound("no use case has report artifacts yet")
	}
	return exports, nil
}

// Available lists the use cases that currently have artifacts, with the
// sections each can render.
func (s *Service) Available(ctx context.Context) map[string][]string {
	out := make(map[string][]string)
	entries, err := os.ReadDir(s.cfg.PreprocessingOutputDir())
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key := entry.Name()
		if !models.ValidUseCaseKey(key) || strings.HasPrefix(key, ".") {
			continue
		}
		if compiled, err := s.compile(key); err == nil {
			out[key] = compiled.Present
		}
	}
	return out
}
