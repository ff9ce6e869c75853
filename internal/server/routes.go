package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/trutina/internal/handlers"
)

// setupRoutes registers the full admin surface. Collection endpoints and
// item endpoints register separately because ServeMux treats a trailing
// slash as a subtree match.
func (s *Server) setupRoutes() {
	mux := s.router
	a := s.app

	// public
	mux.HandleFunc("/api/health", a.SystemHandler.Health)
	mux.HandleFunc("/api/version", a.SystemHandler.Version)
	mux.HandleFunc("/api/departments", a.CompareHandler.Departments)

	// datasets
	mux.HandleFunc("/api/admin/upload", a.DatasetHandler.Upload)
	mux.HandleFunc("/api/admin/datasets", a.DatasetHandler.List)
	mux.HandleFunc("/api/admin/datasets/", a.DatasetHandler.Item)

	// on-demand analyses
	mux.HandleFunc("/api/admin/stats/", a.StatsHandler.Handle)

	// scoring
	mux.HandleFunc("/api/admin/scoring/score", a.ScoringHandler.Score)
	mux.HandleFunc("/api/admin/scoring/batch", a.ScoringHandler.Batch)
	mux.HandleFunc("/api/admin/scoring/models", a.ScoringHandler.Models)

	// training
	mux.HandleFunc("/api/admin/training/start", a.TrainingHandler.Start)
	mux.HandleFunc("/api/admin/training/jobs", a.TrainingHandler.Jobs)
	mux.HandleFunc("/api/admin/training/jobs/", a.TrainingHandler.Jobs)

	// integrations
	mux.HandleFunc("/api/admin/integrations", a.IntegrationHandler.Collection)
	mux.HandleFunc("/api/admin/integrations/", a.IntegrationHandler.Item)

	// monitoring
	mux.HandleFunc("/api/admin/monitoring/system", a.MonitorHandler.System)
	mux.HandleFunc("/api/admin/monitoring/models", a.MonitorHandler.Models)
	mux.HandleFunc("/api/admin/monitoring/databases", a.MonitorHandler.Databases)

	// jobs, vector store and chunking info
	mux.HandleFunc("/api/admin/jobs", a.JobHandler.List)
	mux.HandleFunc("/api/admin/jobs/", a.JobHandler.Item)

	// text2sql
	mux.HandleFunc("/api/admin/text2sql/schema", a.Text2SQLHandler.Schema)
	mux.HandleFunc("/api/admin/text2sql/generate", a.Text2SQLHandler.Generate)
	mux.HandleFunc("/api/admin/text2sql/execute", a.Text2SQLHandler.Execute)

	// logs
	mux.HandleFunc("/api/admin/logs", a.LogsHandler.Handle)

	// alerts
	mux.HandleFunc("/api/admin/alerts", a.AlertHandler.Collection)
	mux.HandleFunc("/api/admin/alerts/", a.AlertHandler.Item)

	// pipeline
	mux.HandleFunc("/api/admin/process/run", a.ProcessHandler.Run)

	// exports
	mux.HandleFunc("/api/admin/export/", a.ReportHandler.Export)

	// oversight
	mux.HandleFunc("/api/admin/regulatory/", a.RegulatoryHandler.Handle)
	mux.HandleFunc("/api/admin/compare/", a.CompareHandler.Handle)

	// retrieval
	mux.HandleFunc("/api/admin/rag/query", a.RAGHandler.Query)

	// unknown API paths return a JSON 404 instead of the mux default
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteDetail(w, http.StatusNotFound, "Not found: "+strings.TrimSuffix(r.URL.Path, "/"))
	})
}
